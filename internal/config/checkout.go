package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	CommissionTypePercentage = "percentage"
	CommissionTypeFixed      = "fixed"
)

// CheckoutConfig is the operator-tunable checkout policy. It is re-read on
// file change and handed to services per request.
type CheckoutConfig struct {
	PlatformCommission   CommissionPolicy         `mapstructure:"platformCommission"`
	PassFeesToBuyer      bool                     `mapstructure:"passFeesToBuyer"`
	DefaultPaymentExpiry time.Duration            `mapstructure:"defaultPaymentExpiry"`
	PaymentExpiry        map[string]time.Duration `mapstructure:"paymentExpiry"`
	MaxTicketsPerOrder   int                      `mapstructure:"maxTicketsPerOrder"`
	OrderNumberPrefix    string                   `mapstructure:"orderNumberPrefix"`
}

// CommissionPolicy is the platform default commission. Value is a decimal
// string: a percentage for "percentage", minor units per ticket for "fixed".
type CommissionPolicy struct {
	Type  string `mapstructure:"type"`
	Value string `mapstructure:"value"`
}

func (p CommissionPolicy) Decimal() decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(p.Value))
	if err != nil {
		return decimal.Zero
	}
	return value
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		PlatformCommission: CommissionPolicy{
			Type:  CommissionTypePercentage,
			Value: "5",
		},
		PassFeesToBuyer:      false,
		DefaultPaymentExpiry: 24 * time.Hour,
		PaymentExpiry: map[string]time.Duration{
			"stripe":   time.Hour,
			"midtrans": 24 * time.Hour,
			"wallet":   15 * time.Minute,
			"manual":   72 * time.Hour,
		},
		MaxTicketsPerOrder: 10,
		OrderNumberPrefix:  "ORD",
	}
}

// ExpiryFor returns the payment window for the provider.
func (c CheckoutConfig) ExpiryFor(provider string) time.Duration {
	if window, ok := c.PaymentExpiry[strings.ToLower(strings.TrimSpace(provider))]; ok && window > 0 {
		return window
	}
	if c.DefaultPaymentExpiry > 0 {
		return c.DefaultPaymentExpiry
	}
	return 24 * time.Hour
}

type CheckoutConfigHolder struct {
	current atomic.Value // holds CheckoutConfig
}

// NewStaticCheckoutConfigHolder wraps a fixed config without file watching.
func NewStaticCheckoutConfigHolder(cfg CheckoutConfig) *CheckoutConfigHolder {
	holder := &CheckoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewCheckoutConfigHolder(log *zap.Logger) (*CheckoutConfigHolder, error) {
	v := viper.New()
	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/eventreg")
	v.AddConfigPath(".")
	return newCheckoutConfigHolder(v, log)
}

// LoadCheckoutConfigFile loads and watches a specific checkout config file.
func LoadCheckoutConfigFile(path string, log *zap.Logger) (*CheckoutConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return newCheckoutConfigHolder(v, log)
}

func newCheckoutConfigHolder(v *viper.Viper, log *zap.Logger) (*CheckoutConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("checkout.config")

	v.SetEnvPrefix("EVENTREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCheckoutConfig()
	v.SetDefault("checkout.platformCommission.type", defaults.PlatformCommission.Type)
	v.SetDefault("checkout.platformCommission.value", defaults.PlatformCommission.Value)
	v.SetDefault("checkout.passFeesToBuyer", defaults.PassFeesToBuyer)
	v.SetDefault("checkout.defaultPaymentExpiry", defaults.DefaultPaymentExpiry)
	v.SetDefault("checkout.paymentExpiry", defaults.PaymentExpiry)
	v.SetDefault("checkout.maxTicketsPerOrder", defaults.MaxTicketsPerOrder)
	v.SetDefault("checkout.orderNumberPrefix", defaults.OrderNumberPrefix)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
		log.Info("checkout config file not found, using defaults")
	}

	cfg, err := unmarshalCheckoutConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &CheckoutConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := unmarshalCheckoutConfig(v)
			if err != nil {
				log.Warn("checkout config reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("checkout config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func unmarshalCheckoutConfig(v *viper.Viper) (CheckoutConfig, error) {
	var cfg CheckoutConfig
	if err := v.UnmarshalKey("checkout", &cfg); err != nil {
		return CheckoutConfig{}, err
	}
	if err := ValidateCheckoutConfig(cfg); err != nil {
		return CheckoutConfig{}, err
	}
	return cfg, nil
}

func (h *CheckoutConfigHolder) Get() CheckoutConfig {
	return h.current.Load().(CheckoutConfig)
}

func ValidateCheckoutConfig(cfg CheckoutConfig) error {
	switch strings.ToLower(strings.TrimSpace(cfg.PlatformCommission.Type)) {
	case CommissionTypePercentage, CommissionTypeFixed:
	default:
		return fmt.Errorf("checkout.platformCommission.type %q is not supported", cfg.PlatformCommission.Type)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(cfg.PlatformCommission.Value))
	if err != nil {
		return fmt.Errorf("checkout.platformCommission.value: %w", err)
	}
	if value.IsNegative() {
		return errors.New("checkout.platformCommission.value cannot be negative")
	}
	if strings.EqualFold(cfg.PlatformCommission.Type, CommissionTypePercentage) && value.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("checkout.platformCommission.value cannot exceed 100 percent")
	}
	if cfg.MaxTicketsPerOrder <= 0 {
		return errors.New("checkout.maxTicketsPerOrder must be positive")
	}
	if strings.TrimSpace(cfg.OrderNumberPrefix) == "" {
		return errors.New("checkout.orderNumberPrefix cannot be empty")
	}
	return nil
}
