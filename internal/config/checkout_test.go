package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadCheckoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkout.yml")
	content := `checkout:
  platformCommission:
    type: percentage
    value: "7.5"
  passFeesToBuyer: true
  paymentExpiry:
    midtrans: 12h
  maxTicketsPerOrder: 4
  orderNumberPrefix: REG
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	holder, err := LoadCheckoutConfigFile(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "percentage", cfg.PlatformCommission.Type)
	assert.Equal(t, "7.5", cfg.PlatformCommission.Decimal().String())
	assert.True(t, cfg.PassFeesToBuyer)
	assert.Equal(t, 12*time.Hour, cfg.ExpiryFor("midtrans"))
	assert.Equal(t, 4, cfg.MaxTicketsPerOrder)
	assert.Equal(t, "REG", cfg.OrderNumberPrefix)
}

func TestValidateCheckoutConfig(t *testing.T) {
	cfg := DefaultCheckoutConfig()
	require.NoError(t, ValidateCheckoutConfig(cfg))

	bad := cfg
	bad.PlatformCommission = CommissionPolicy{Type: "percentage", Value: "120"}
	assert.Error(t, ValidateCheckoutConfig(bad))

	bad = cfg
	bad.PlatformCommission = CommissionPolicy{Type: "tiered", Value: "1"}
	assert.Error(t, ValidateCheckoutConfig(bad))

	bad = cfg
	bad.MaxTicketsPerOrder = 0
	assert.Error(t, ValidateCheckoutConfig(bad))
}

func TestExpiryForFallsBackToDefault(t *testing.T) {
	cfg := DefaultCheckoutConfig()
	assert.Equal(t, 24*time.Hour, cfg.ExpiryFor("midtrans"))
	assert.Equal(t, 24*time.Hour, cfg.ExpiryFor("unknown"))
	assert.Equal(t, time.Hour, cfg.ExpiryFor(" Stripe "))
}
