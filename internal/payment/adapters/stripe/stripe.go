package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
)

const (
	defaultAPIBase     = "https://api.stripe.com"
	signatureTolerance = 5 * time.Minute
	// Checkout Sessions expire between 30 minutes and 24 hours after creation.
	minSessionLifetime = 30 * time.Minute
	maxSessionLifetime = 24 * time.Hour
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderStripe
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	decoded, err := paymentdomain.DecodeConfig(paymentdomain.ProviderStripe, cfg.Config)
	if err != nil {
		return nil, err
	}
	conf := decoded.(*paymentdomain.StripeConfig)

	apiBase := strings.TrimRight(strings.TrimSpace(conf.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return &Adapter{
		organizerID:   cfg.OrganizerID,
		secretKey:     conf.SecretKey,
		webhookSecret: conf.WebhookSecret,
		successURL:    conf.SuccessURL,
		cancelURL:     conf.CancelURL,
		apiBase:       apiBase,
		client:        cfg.HTTPClient,
		clock:         clk,
	}, nil
}

type Adapter struct {
	organizerID   uuid.UUID
	secretKey     string
	webhookSecret string
	successURL    string
	cancelURL     string
	apiBase       string
	client        *http.Client
	clock         clock.Clock
}

// Initiate creates a hosted Checkout Session for the order.
func (a *Adapter) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (*paymentdomain.InitiateResult, error) {
	expiresAt := clampExpiry(a.clock.Now(), req.ExpiresAt)

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.OrderNumber)
	form.Set("success_url", a.successURL)
	if a.cancelURL != "" {
		form.Set("cancel_url", a.cancelURL)
	}
	if req.BuyerEmail != "" {
		form.Set("customer_email", req.BuyerEmail)
	}
	form.Set("expires_at", strconv.FormatInt(expiresAt.Unix(), 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", description(req))
	form.Set("metadata[order_number]", req.OrderNumber)
	form.Set("metadata[order_id]", req.OrderID.String())
	form.Set("payment_intent_data[metadata][order_number]", req.OrderNumber)

	httpReq, err := http.NewRequest(http.MethodPost, a.apiBase+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", "checkout-"+req.OrderNumber)

	body, err := adapters.Do(ctx, a.client, httpReq)
	if err != nil {
		return nil, err
	}

	var session stripeSession
	if err := json.Unmarshal(body, &session); err != nil || session.ID == "" {
		return nil, fmt.Errorf("%w: malformed session response", paymentdomain.ErrProviderUnavailable)
	}

	result := &paymentdomain.InitiateResult{
		ProviderReference: session.ID,
		ExpiresAt:         expiresAt,
		Display:           map[string]any{"checkout_url": session.URL},
	}
	if session.URL != "" {
		redirect := session.URL
		result.RedirectURL = &redirect
	}
	if session.ExpiresAt > 0 {
		result.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return result, nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	if age := a.clock.Now().Sub(time.Unix(unix, 0)); age > signatureTolerance || age < -signatureTolerance {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseSession(event, payload, true)
	case "checkout.session.async_payment_succeeded":
		return a.parseSessionOutcome(event, payload, paymentdomain.OutcomeSucceeded)
	case "checkout.session.async_payment_failed":
		return a.parseSessionOutcome(event, payload, paymentdomain.OutcomeFailed)
	case "checkout.session.expired":
		return a.parseSessionOutcome(event, payload, paymentdomain.OutcomeExpired)
	case "charge.refunded":
		return a.parseRefund(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

// PollStatus reads the Checkout Session and reports a terminal outcome, or
// nil while the buyer has not paid.
func (a *Adapter) PollStatus(ctx context.Context, reference string) (*paymentdomain.PaymentEvent, error) {
	httpReq, err := http.NewRequest(http.MethodGet, a.apiBase+"/v1/checkout/sessions/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.secretKey)

	body, err := adapters.Do(ctx, a.client, httpReq)
	if err != nil {
		return nil, err
	}
	var session stripeSession
	if err := json.Unmarshal(body, &session); err != nil || session.ID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var outcome paymentdomain.Outcome
	switch {
	case session.Status == "complete" && session.PaymentStatus == "paid":
		outcome = paymentdomain.OutcomeSucceeded
	case session.Status == "expired":
		outcome = paymentdomain.OutcomeExpired
	default:
		return nil, nil
	}
	return &paymentdomain.PaymentEvent{
		Provider:          paymentdomain.ProviderStripe,
		ProviderEventID:   fmt.Sprintf("poll:%s:%s", session.ID, outcome),
		ProviderReference: session.ID,
		OrderNumber:       session.orderNumber(),
		OrganizerID:       a.organizerID,
		Outcome:           outcome,
		Amount:            session.AmountTotal,
		Currency:          strings.ToUpper(session.Currency),
		OccurredAt:        a.clock.Now(),
		RawPayload:        body,
	}, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	ClientReferenceID string            `json:"client_reference_id"`
	ExpiresAt         int64             `json:"expires_at"`
	Created           int64             `json:"created"`
	Metadata          map[string]string `json:"metadata"`
}

func (s stripeSession) orderNumber() string {
	if s.ClientReferenceID != "" {
		return s.ClientReferenceID
	}
	return strings.TrimSpace(s.Metadata["order_number"])
}

type stripeCharge struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Currency       string            `json:"currency"`
	Created        int64             `json:"created"`
	Metadata       map[string]string `json:"metadata"`
}

func (a *Adapter) parseSession(event stripeEvent, payload []byte, requirePaid bool) (*paymentdomain.PaymentEvent, error) {
	var session stripeSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	// Delayed methods complete the session before funds arrive; the
	// async_payment_succeeded event settles those.
	if requirePaid && session.PaymentStatus != "paid" {
		return nil, paymentdomain.ErrEventIgnored
	}
	return a.sessionEvent(event, session, payload, paymentdomain.OutcomeSucceeded)
}

func (a *Adapter) parseSessionOutcome(event stripeEvent, payload []byte, outcome paymentdomain.Outcome) (*paymentdomain.PaymentEvent, error) {
	var session stripeSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return a.sessionEvent(event, session, payload, outcome)
}

func (a *Adapter) sessionEvent(event stripeEvent, session stripeSession, payload []byte, outcome paymentdomain.Outcome) (*paymentdomain.PaymentEvent, error) {
	if session.ID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return &paymentdomain.PaymentEvent{
		Provider:          paymentdomain.ProviderStripe,
		ProviderEventID:   event.ID,
		ProviderReference: session.ID,
		OrderNumber:       session.orderNumber(),
		OrganizerID:       a.organizerID,
		Outcome:           outcome,
		Amount:            session.AmountTotal,
		Currency:          strings.ToUpper(strings.TrimSpace(session.Currency)),
		OccurredAt:        timestamp(event.Created, session.Created),
		RawPayload:        payload,
	}, nil
}

func (a *Adapter) parseRefund(event stripeEvent, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var charge stripeCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	orderNumber := strings.TrimSpace(charge.Metadata["order_number"])
	if orderNumber == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := charge.Amount
	if charge.AmountRefunded > 0 {
		amount = charge.AmountRefunded
	}
	return &paymentdomain.PaymentEvent{
		Provider:        paymentdomain.ProviderStripe,
		ProviderEventID: event.ID,
		OrderNumber:     orderNumber,
		OrganizerID:     a.organizerID,
		Outcome:         paymentdomain.OutcomeRefunded,
		Amount:          amount,
		Currency:        strings.ToUpper(strings.TrimSpace(charge.Currency)),
		OccurredAt:      timestamp(event.Created, charge.Created),
		RawPayload:      payload,
	}, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func clampExpiry(now time.Time, want time.Time) time.Time {
	if want.Before(now.Add(minSessionLifetime)) {
		return now.Add(minSessionLifetime)
	}
	if want.After(now.Add(maxSessionLifetime)) {
		return now.Add(maxSessionLifetime)
	}
	return want
}

func description(req paymentdomain.InitiateRequest) string {
	if req.Description != "" {
		return req.Description
	}
	return "Order " + req.OrderNumber
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
