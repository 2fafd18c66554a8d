package manual

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualAdapter(t *testing.T) {
	gw, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		OrganizerID: uuid.New(),
		Config: map[string]any{
			"bank_name":      "BCA",
			"account_name":   "Race Org",
			"account_number": "0011223344",
		},
	})
	require.NoError(t, err)

	expires := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	result, err := gw.Initiate(context.Background(), paymentdomain.InitiateRequest{
		OrderNumber: "ORD-250601-MMMM",
		Amount:      120000,
		Currency:    "IDR",
		ExpiresAt:   expires,
	})
	require.NoError(t, err)
	assert.Equal(t, "manual:ORD-250601-MMMM", result.ProviderReference)
	assert.Equal(t, "0011223344", result.Display["account_number"])
	assert.Equal(t, expires, result.ExpiresAt)

	assert.ErrorIs(t, gw.Verify(context.Background(), []byte(`{}`), nil), paymentdomain.ErrCallbackUnsupported)
	_, err = gw.Parse(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, paymentdomain.ErrCallbackUnsupported)
}

func TestManualAdapterRequiresBankDetails(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"bank_name": "BCA"}})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}
