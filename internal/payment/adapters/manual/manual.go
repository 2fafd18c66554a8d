// Package manual presents bank transfer instructions. There is no provider
// callback; an operator confirms receipt through a manual transition.
package manual

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderManual
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	decoded, err := paymentdomain.DecodeConfig(paymentdomain.ProviderManual, cfg.Config)
	if err != nil {
		return nil, err
	}
	return &Adapter{organizerID: cfg.OrganizerID, conf: *decoded.(*paymentdomain.ManualConfig)}, nil
}

type Adapter struct {
	organizerID uuid.UUID
	conf        paymentdomain.ManualConfig
}

// Initiate returns transfer instructions. The buyer quotes the order number
// as the transfer reference.
func (a *Adapter) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (*paymentdomain.InitiateResult, error) {
	display := map[string]any{
		"bank_name":      a.conf.BankName,
		"account_name":   a.conf.AccountName,
		"account_number": a.conf.AccountNumber,
		"amount":         req.Amount,
		"currency":       req.Currency,
		"reference":      req.OrderNumber,
	}
	if a.conf.Instructions != "" {
		display["instructions"] = a.conf.Instructions
	}
	return &paymentdomain.InitiateResult{
		ProviderReference: "manual:" + req.OrderNumber,
		Display:           display,
		ExpiresAt:         req.ExpiresAt,
	}, nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return paymentdomain.ErrCallbackUnsupported
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	return nil, paymentdomain.ErrCallbackUnsupported
}
