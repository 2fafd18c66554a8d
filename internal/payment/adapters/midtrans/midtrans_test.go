package midtrans

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

const serverKey = "SB-Mid-server-test"

var now = time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

func newTestAdapter(t *testing.T, apiBase string) *Adapter {
	t.Helper()
	gw, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		OrganizerID: uuid.New(),
		Provider:    "midtrans",
		Config:      map[string]any{"server_key": serverKey, "bank": "BCA", "api_base": apiBase},
		Clock:       clock.NewFakeClock(now),
	})
	require.NoError(t, err)
	return gw.(*Adapter)
}

func notification(t *testing.T, status string, gross string, key string) []byte {
	t.Helper()
	body := map[string]any{
		"transaction_id":     "tx-123",
		"order_id":           "ORD-250601-AAAA",
		"status_code":        "200",
		"gross_amount":       gross,
		"currency":           "IDR",
		"transaction_status": status,
		"transaction_time":   "2025-06-01 10:00:00",
		"signature_key":      Signature("ORD-250601-AAAA", "200", gross, key),
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return payload
}

func TestVerifySignature(t *testing.T) {
	adapter := newTestAdapter(t, "")

	require.NoError(t, adapter.Verify(context.Background(), notification(t, "settlement", "150000.00", serverKey), nil))

	err := adapter.Verify(context.Background(), notification(t, "settlement", "150000.00", "other-key"), nil)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	err = adapter.Verify(context.Background(), []byte(`{"order_id":"x"}`), nil)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestParseNotificationOutcomes(t *testing.T) {
	adapter := newTestAdapter(t, "")

	cases := map[string]paymentdomain.Outcome{
		"settlement": paymentdomain.OutcomeSucceeded,
		"capture":    paymentdomain.OutcomeSucceeded,
		"expire":     paymentdomain.OutcomeExpired,
		"cancel":     paymentdomain.OutcomeFailed,
		"deny":       paymentdomain.OutcomeFailed,
		"refund":     paymentdomain.OutcomeRefunded,
	}
	for status, want := range cases {
		t.Run(status, func(t *testing.T) {
			event, err := adapter.Parse(context.Background(), notification(t, status, "150000.00", serverKey))
			require.NoError(t, err)
			assert.Equal(t, want, event.Outcome)
			assert.Equal(t, int64(150000), event.Amount)
			assert.Equal(t, "IDR", event.Currency)
			assert.Equal(t, "ORD-250601-AAAA", event.OrderNumber)
			assert.Equal(t, "tx-123", event.ProviderReference)
			assert.Equal(t, "tx-123:"+status, event.ProviderEventID)
			assert.Equal(t, time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC), event.OccurredAt)
		})
	}

	_, err := adapter.Parse(context.Background(), notification(t, "pending", "150000.00", serverKey))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestParseRejectsFractionalGrossAmount(t *testing.T) {
	adapter := newTestAdapter(t, "")

	_, err := adapter.Parse(context.Background(), notification(t, "settlement", "149999.60", serverKey))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = adapter.Parse(context.Background(), notification(t, "settlement", "abc", serverKey))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestInitiateChargesBankTransfer(t *testing.T) {
	var charge chargeRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&charge)
		_, _ = w.Write([]byte(`{
			"status_code":"201","transaction_id":"tx-777","order_id":"ORD-250601-BBBB",
			"gross_amount":"250000.00","transaction_status":"pending",
			"va_numbers":[{"bank":"bca","va_number":"12345678901"}],
			"expiry_time":"2025-06-02 10:00:00"
		}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	result, err := adapter.Initiate(context.Background(), paymentdomain.InitiateRequest{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-250601-BBBB",
		Amount:      250000,
		Currency:    "IDR",
		ExpiresAt:   now.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, "tx-777", result.ProviderReference)
	assert.Nil(t, result.RedirectURL)
	assert.Equal(t, "12345678901", result.Display["va_number"])
	assert.Equal(t, now.Add(24*time.Hour), result.ExpiresAt)

	assert.Equal(t, "bank_transfer", charge.PaymentType)
	assert.Equal(t, "bca", charge.BankTransfer.Bank)
	assert.Equal(t, int64(250000), charge.TransactionDetails.GrossAmount)
	assert.Equal(t, int64(24*60), charge.CustomExpiry.ExpiryDuration)
	assert.Contains(t, auth, "Basic ")
}

func TestInitiateMapsStatusCodes(t *testing.T) {
	code := "505"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":"` + code + `","status_message":"unable"}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	req := paymentdomain.InitiateRequest{OrderNumber: "ORD-1", Amount: 1000, Currency: "IDR", ExpiresAt: now.Add(time.Hour)}

	_, err := adapter.Initiate(context.Background(), req)
	assert.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)

	code = "406"
	_, err = adapter.Initiate(context.Background(), req)
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentRejected)
}

func TestPollStatus(t *testing.T) {
	status := "pending"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/tx-123/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"status_code":"200","transaction_id":"tx-123","order_id":"ORD-1","gross_amount":"5000.00","transaction_status":"` + status + `"}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	event, err := adapter.PollStatus(context.Background(), "tx-123")
	require.NoError(t, err)
	assert.Nil(t, event)

	status = "expire"
	event, err = adapter.PollStatus(context.Background(), "tx-123")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, paymentdomain.OutcomeExpired, event.Outcome)
	assert.Equal(t, "poll:tx-123:expire", event.ProviderEventID)
}
