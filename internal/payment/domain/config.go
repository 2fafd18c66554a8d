package domain

import (
	"encoding/json"
	"strings"
)

// ProviderConfig is the decrypted credential set of one provider variant.
type ProviderConfig interface {
	ProviderName() string
	Validate() error
}

type StripeConfig struct {
	SecretKey     string `json:"secret_key"`
	WebhookSecret string `json:"webhook_secret"`
	APIBase       string `json:"api_base,omitempty"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
}

func (StripeConfig) ProviderName() string { return ProviderStripe }

func (c StripeConfig) Validate() error {
	if c.SecretKey == "" || c.WebhookSecret == "" || c.SuccessURL == "" {
		return ErrInvalidConfig
	}
	return nil
}

type MidtransConfig struct {
	ServerKey string `json:"server_key"`
	APIBase   string `json:"api_base,omitempty"`
	Bank      string `json:"bank"`
}

func (MidtransConfig) ProviderName() string { return ProviderMidtrans }

func (c MidtransConfig) Validate() error {
	if c.ServerKey == "" || c.Bank == "" {
		return ErrInvalidConfig
	}
	return nil
}

type WalletConfig struct {
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	CallbackSecret string `json:"callback_secret"`
	APIBase        string `json:"api_base"`
}

func (WalletConfig) ProviderName() string { return ProviderWallet }

func (c WalletConfig) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.CallbackSecret == "" || c.APIBase == "" {
		return ErrInvalidConfig
	}
	return nil
}

type ManualConfig struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	Instructions  string `json:"instructions,omitempty"`
}

func (ManualConfig) ProviderName() string { return ProviderManual }

func (c ManualConfig) Validate() error {
	if c.BankName == "" || c.AccountName == "" || c.AccountNumber == "" {
		return ErrInvalidConfig
	}
	return nil
}

// DecodeConfig maps a decrypted config document onto the variant for provider.
func DecodeConfig(provider string, raw map[string]any) (ProviderConfig, error) {
	var target ProviderConfig
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderStripe:
		target = &StripeConfig{}
	case ProviderMidtrans:
		target = &MidtransConfig{}
	case ProviderWallet:
		target = &WalletConfig{}
	case ProviderManual:
		target = &ManualConfig{}
	default:
		return nil, ErrProviderNotFound
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, ErrInvalidConfig
	}
	if err := json.Unmarshal(encoded, target); err != nil {
		return nil, ErrInvalidConfig
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return target, nil
}
