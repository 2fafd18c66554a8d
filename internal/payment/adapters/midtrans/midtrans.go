package midtrans

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
)

const (
	defaultAPIBase = "https://api.midtrans.com"
	timeLayout     = "2006-01-02 15:04:05"
	defaultExpiry  = 24 * time.Hour
)

// Midtrans reports local times in WIB.
var wib = time.FixedZone("WIB", 7*60*60)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderMidtrans
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	decoded, err := paymentdomain.DecodeConfig(paymentdomain.ProviderMidtrans, cfg.Config)
	if err != nil {
		return nil, err
	}
	conf := decoded.(*paymentdomain.MidtransConfig)

	apiBase := strings.TrimRight(strings.TrimSpace(conf.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return &Adapter{
		organizerID: cfg.OrganizerID,
		serverKey:   conf.ServerKey,
		bank:        strings.ToLower(conf.Bank),
		apiBase:     apiBase,
		client:      cfg.HTTPClient,
		clock:       clk,
	}, nil
}

type Adapter struct {
	organizerID uuid.UUID
	serverKey   string
	bank        string
	apiBase     string
	client      *http.Client
	clock       clock.Clock
}

// Initiate charges a bank transfer and returns the virtual account number the
// buyer pays into. The order number doubles as the Midtrans order_id.
func (a *Adapter) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (*paymentdomain.InitiateResult, error) {
	now := a.clock.Now()
	expiresAt := req.ExpiresAt
	if !expiresAt.After(now) {
		expiresAt = now.Add(defaultExpiry)
	}

	charge := chargeRequest{
		PaymentType:  bankTransferType,
		BankTransfer: bankTransfer{Bank: a.bank},
		TransactionDetails: transactionDetails{
			OrderID:     req.OrderNumber,
			GrossAmount: req.Amount,
		},
		CustomerDetails: customerDetails{FirstName: req.BuyerName, Email: req.BuyerEmail},
		CustomExpiry: customExpiry{
			OrderTime:      now.In(wib).Format(timeLayout) + " +0700",
			ExpiryDuration: int64(expiresAt.Sub(now).Round(time.Minute) / time.Minute),
			Unit:           "minute",
		},
	}
	reqBuff, err := json.Marshal(charge)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, a.apiBase+"/v2/charge", bytes.NewReader(reqBuff))
	if err != nil {
		return nil, err
	}
	a.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := adapters.Do(ctx, a.client, httpReq)
	if err != nil {
		return nil, err
	}

	var resp transactionStatus
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed charge response", paymentdomain.ErrProviderUnavailable)
	}
	// Midtrans answers 200 with the real outcome in status_code.
	if resp.StatusCode != chargeAccepted {
		if strings.HasPrefix(resp.StatusCode, "5") {
			return nil, fmt.Errorf("%w: status_code %s", paymentdomain.ErrProviderUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status_code %s: %s", paymentdomain.ErrPaymentRejected, resp.StatusCode, resp.StatusMessage)
	}

	display := map[string]any{"bank": a.bank}
	if len(resp.VaNumbers) > 0 {
		display["bank"] = resp.VaNumbers[0].Bank
		display["va_number"] = resp.VaNumbers[0].VaNumber
	} else if resp.PermataVaNumber != "" {
		display["bank"] = "permata"
		display["va_number"] = resp.PermataVaNumber
	}

	if parsed, err := time.ParseInLocation(timeLayout, resp.ExpiryTime, wib); err == nil {
		expiresAt = parsed.UTC()
	}
	display["expires_at"] = expiresAt.Format(time.RFC3339)

	return &paymentdomain.InitiateResult{
		ProviderReference: resp.TransactionID,
		Display:           display,
		ExpiresAt:         expiresAt,
	}, nil
}

// Verify checks the notification signature_key:
// SHA512(order_id + status_code + gross_amount + server_key).
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	var notification transactionStatus
	if err := json.Unmarshal(payload, &notification); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if notification.SignatureKey == "" {
		return paymentdomain.ErrInvalidSignature
	}
	expected := Signature(notification.OrderID, notification.StatusCode, notification.GrossAmount, a.serverKey)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(notification.SignatureKey)), []byte(expected)) != 1 {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var notification transactionStatus
	if err := json.Unmarshal(payload, &notification); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return a.toEvent(notification, payload)
}

// PollStatus asks Midtrans for the transaction state. Pending transactions
// yield a nil event.
func (a *Adapter) PollStatus(ctx context.Context, reference string) (*paymentdomain.PaymentEvent, error) {
	httpReq, err := http.NewRequest(http.MethodGet, a.apiBase+"/v2/"+url.PathEscape(reference)+"/status", nil)
	if err != nil {
		return nil, err
	}
	a.authorize(httpReq)

	body, err := adapters.Do(ctx, a.client, httpReq)
	if err != nil {
		return nil, err
	}
	var status transactionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.HasPrefix(status.StatusCode, "5") {
		return nil, fmt.Errorf("%w: status_code %s", paymentdomain.ErrProviderUnavailable, status.StatusCode)
	}

	event, err := a.toEvent(status, body)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil, nil
		}
		return nil, err
	}
	event.ProviderEventID = "poll:" + event.ProviderEventID
	return event, nil
}

func (a *Adapter) toEvent(n transactionStatus, payload []byte) (*paymentdomain.PaymentEvent, error) {
	if n.TransactionID == "" || n.OrderID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var outcome paymentdomain.Outcome
	switch strings.ToLower(n.TransactionStatus) {
	case "settlement":
		outcome = paymentdomain.OutcomeSucceeded
	case "capture":
		if n.FraudStatus != "" && n.FraudStatus != "accept" {
			return nil, paymentdomain.ErrEventIgnored
		}
		outcome = paymentdomain.OutcomeSucceeded
	case "expire":
		outcome = paymentdomain.OutcomeExpired
	case "deny", "cancel", "failure":
		outcome = paymentdomain.OutcomeFailed
	case "refund", "partial_refund":
		outcome = paymentdomain.OutcomeRefunded
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(n.GrossAmount))
	if err != nil || !amount.IsInteger() {
		return nil, paymentdomain.ErrInvalidPayload
	}
	currency := strings.ToUpper(strings.TrimSpace(n.Currency))
	if currency == "" {
		currency = "IDR"
	}

	occurredAt := a.clock.Now()
	for _, raw := range []string{n.SettlementTime, n.TransactionTime} {
		if parsed, err := time.ParseInLocation(timeLayout, raw, wib); err == nil {
			occurredAt = parsed.UTC()
			break
		}
	}

	return &paymentdomain.PaymentEvent{
		Provider:          paymentdomain.ProviderMidtrans,
		ProviderEventID:   n.TransactionID + ":" + strings.ToLower(n.TransactionStatus),
		ProviderReference: n.TransactionID,
		OrderNumber:       n.OrderID,
		OrganizerID:       a.organizerID,
		Outcome:           outcome,
		Amount:            amount.IntPart(),
		Currency:          currency,
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

func (a *Adapter) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(a.serverKey+":")))
}

// Signature computes the notification signature_key.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}
