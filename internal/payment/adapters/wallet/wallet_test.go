package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/clock"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestAdapter(t *testing.T, apiBase string) *Adapter {
	t.Helper()
	gw, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		OrganizerID: uuid.New(),
		Provider:    "wallet",
		Config: map[string]any{
			"client_id":       "client",
			"client_secret":   "secret",
			"callback_secret": "cb_secret",
			"api_base":        apiBase,
		},
		Clock: clock.NewFakeClock(now),
	})
	require.NoError(t, err)
	return gw.(*Adapter)
}

func walletServer(t *testing.T, payments http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/payments", payments)
	mux.HandleFunc("/v1/payments/", payments)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestInitiateUsesClientCredentials(t *testing.T) {
	var auth string
	var created createPaymentRequest
	server := walletServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&created)
		_, _ = w.Write([]byte(`{"payment_id":"wp_1","qr_string":"000201010212","deeplink_url":"wallet://pay/wp_1","expires_at":"2025-06-01T12:15:00Z"}`))
	})

	adapter := newTestAdapter(t, server.URL)
	result, err := adapter.Initiate(context.Background(), paymentdomain.InitiateRequest{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-250601-WWWW",
		Amount:      5000,
		Currency:    "idr",
		ExpiresAt:   now.Add(15 * time.Minute),
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-1", auth)
	assert.Equal(t, "ORD-250601-WWWW", created.Reference)
	assert.Equal(t, "IDR", created.Currency)
	assert.Equal(t, "wp_1", result.ProviderReference)
	assert.Equal(t, "000201010212", result.Display["qr_string"])
	require.NotNil(t, result.RedirectURL)
	assert.Equal(t, now.Add(15*time.Minute), result.ExpiresAt)
}

func TestVerifyAndParseCallback(t *testing.T) {
	adapter := newTestAdapter(t, "http://unused")
	payload := []byte(`{"event_id":"we_1","payment_id":"wp_1","reference":"ORD-1","status":"PAID","amount":5000,"currency":"idr","occurred_at":"2025-06-01T12:05:00Z"}`)

	headers := http.Header{}
	headers.Set("X-Signature", Sign("cb_secret", payload))
	require.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set("X-Signature", Sign("other", payload))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeSucceeded, event.Outcome)
	assert.Equal(t, "we_1", event.ProviderEventID)
	assert.Equal(t, "wp_1", event.ProviderReference)
	assert.Equal(t, "ORD-1", event.OrderNumber)
	assert.Equal(t, "IDR", event.Currency)
	assert.Equal(t, now.Add(5*time.Minute), event.OccurredAt)
}

func TestPollStatusPendingIsNil(t *testing.T) {
	server := walletServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payment_id":"wp_1","reference":"ORD-1","status":"PENDING","amount":5000,"currency":"IDR"}`))
	})

	adapter := newTestAdapter(t, server.URL)
	event, err := adapter.PollStatus(context.Background(), "wp_1")
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestTokenFailureMapsToRejected(t *testing.T) {
	server := walletServer(t, func(w http.ResponseWriter, r *http.Request) {})
	gw, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Provider: "wallet",
		Config: map[string]any{
			"client_id": "client", "client_secret": "wrong", "callback_secret": "cb", "api_base": server.URL,
		},
	})
	require.NoError(t, err)

	_, err = gw.Initiate(context.Background(), paymentdomain.InitiateRequest{OrderNumber: "ORD-1", Amount: 1, Currency: "IDR", ExpiresAt: now})
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentRejected)
}
