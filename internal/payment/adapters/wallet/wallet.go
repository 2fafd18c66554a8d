// Package wallet adapts a mobile-wallet aggregator: the buyer scans a QR
// string or follows a deeplink, and the aggregator calls back with an
// X-Signature HMAC over the body.
package wallet

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const signatureHeader = "X-Signature"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderWallet
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	decoded, err := paymentdomain.DecodeConfig(paymentdomain.ProviderWallet, cfg.Config)
	if err != nil {
		return nil, err
	}
	conf := decoded.(*paymentdomain.WalletConfig)

	apiBase := strings.TrimRight(strings.TrimSpace(conf.APIBase), "/")
	clk := cfg.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return &Adapter{
		organizerID:    cfg.OrganizerID,
		callbackSecret: conf.CallbackSecret,
		apiBase:        apiBase,
		client:         cfg.HTTPClient,
		clock:          clk,
		credentials: &clientcredentials.Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			TokenURL:     apiBase + "/oauth/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
	}, nil
}

type Adapter struct {
	organizerID    uuid.UUID
	callbackSecret string
	apiBase        string
	client         *http.Client
	clock          clock.Clock
	credentials    *clientcredentials.Config
}

type createPaymentRequest struct {
	Reference string         `json:"reference"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency"`
	ExpiresAt string         `json:"expires_at"`
	Customer  map[string]any `json:"customer,omitempty"`
}

type walletPayment struct {
	EventID     string `json:"event_id"`
	PaymentID   string `json:"payment_id"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	QRString    string `json:"qr_string"`
	DeeplinkURL string `json:"deeplink_url"`
	ExpiresAt   string `json:"expires_at"`
	OccurredAt  string `json:"occurred_at"`
}

func (a *Adapter) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (*paymentdomain.InitiateResult, error) {
	body, err := json.Marshal(createPaymentRequest{
		Reference: req.OrderNumber,
		Amount:    req.Amount,
		Currency:  strings.ToUpper(req.Currency),
		ExpiresAt: req.ExpiresAt.UTC().Format(time.RFC3339),
		Customer:  map[string]any{"name": req.BuyerName, "email": req.BuyerEmail},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, a.apiBase+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.OrderNumber)
	if err := a.authorize(ctx, httpReq); err != nil {
		return nil, err
	}

	respBody, err := adapters.Do(ctx, a.client, httpReq)
	if err != nil {
		return nil, err
	}
	var payment walletPayment
	if err := json.Unmarshal(respBody, &payment); err != nil || payment.PaymentID == "" {
		return nil, fmt.Errorf("%w: malformed payment response", paymentdomain.ErrProviderUnavailable)
	}

	result := &paymentdomain.InitiateResult{
		ProviderReference: payment.PaymentID,
		ExpiresAt:         req.ExpiresAt,
		Display: map[string]any{
			"qr_string": payment.QRString,
		},
	}
	if payment.DeeplinkURL != "" {
		deeplink := payment.DeeplinkURL
		result.RedirectURL = &deeplink
		result.Display["deeplink_url"] = deeplink
	}
	if parsed, err := time.Parse(time.RFC3339, payment.ExpiresAt); err == nil {
		result.ExpiresAt = parsed.UTC()
	}
	return result, nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(Sign(a.callbackSecret, payload))) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var payment walletPayment
	if err := json.Unmarshal(payload, &payment); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if payment.EventID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return a.toEvent(payment.EventID, payment, payload)
}

func (a *Adapter) PollStatus(ctx context.Context, reference string) (*paymentdomain.PaymentEvent, error) {
	httpReq, err := http.NewRequest(http.MethodGet, a.apiBase+"/v1/payments/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	if err := a.authorize(ctx, httpReq); err != nil {
		return nil, err
	}

	body, err := adapters.Do(ctx, a.client, httpReq)
	if err != nil {
		return nil, err
	}
	var payment walletPayment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	event, err := a.toEvent(fmt.Sprintf("poll:%s:%s", payment.PaymentID, strings.ToLower(payment.Status)), payment, body)
	if errors.Is(err, paymentdomain.ErrEventIgnored) {
		return nil, nil
	}
	return event, err
}

func (a *Adapter) toEvent(eventID string, payment walletPayment, payload []byte) (*paymentdomain.PaymentEvent, error) {
	if payment.PaymentID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var outcome paymentdomain.Outcome
	switch strings.ToUpper(payment.Status) {
	case "PAID", "SUCCESS":
		outcome = paymentdomain.OutcomeSucceeded
	case "FAILED":
		outcome = paymentdomain.OutcomeFailed
	case "EXPIRED":
		outcome = paymentdomain.OutcomeExpired
	case "REFUNDED":
		outcome = paymentdomain.OutcomeRefunded
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	occurredAt := a.clock.Now()
	if parsed, err := time.Parse(time.RFC3339, payment.OccurredAt); err == nil {
		occurredAt = parsed.UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:          paymentdomain.ProviderWallet,
		ProviderEventID:   eventID,
		ProviderReference: payment.PaymentID,
		OrderNumber:       payment.Reference,
		OrganizerID:       a.organizerID,
		Outcome:           outcome,
		Amount:            payment.Amount,
		Currency:          strings.ToUpper(payment.Currency),
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

// authorize fetches a client-credentials token and sets the bearer header.
func (a *Adapter) authorize(ctx context.Context, req *http.Request) error {
	client := a.client
	if client == nil {
		client = adapters.DefaultHTTPClient
	}
	token, err := a.credentials.Token(context.WithValue(ctx, oauth2.HTTPClient, client))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return fmt.Errorf("%w: token rejected: %v", paymentdomain.ErrPaymentRejected, err)
		}
		return fmt.Errorf("%w: token: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	token.SetAuthHeader(req)
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
