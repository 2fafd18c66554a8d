package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/eventreg/internal/notification/domain"
	"github.com/smallbiznis/eventreg/internal/providers/email"
)

// Email mails the buyer a receipt, a closure notice or a refund notice.
type Email struct {
	provider email.Provider
	baseURL  string
}

func NewEmail(provider email.Provider, baseURL string) *Email {
	return &Email{provider: provider, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Email) Name() string { return "email" }

func (c *Email) Deliver(ctx context.Context, evt domain.SettledEvent) error {
	to := strings.TrimSpace(evt.Email)
	if to == "" {
		return nil
	}

	data := map[string]any{
		"buyer_name":   evt.BuyerName,
		"order_number": evt.OrderNumber,
		"outcome":      evt.Outcome,
		"total":        FormatAmount(evt.Total, evt.Currency),
		"tickets_url":  fmt.Sprintf("%s/orders/%s/tickets", c.baseURL, evt.OrderID),
	}
	return c.provider.SendTemplate(ctx, []string{to}, templateFor(evt.Outcome), data)
}

func templateFor(outcome string) string {
	switch outcome {
	case "paid":
		return "order_paid"
	case "refunded":
		return "order_refunded"
	default:
		return "order_closed"
	}
}

// FormatAmount renders minor units with the currency's decimal places.
func FormatAmount(minor int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	places := int32(2)
	switch currency {
	case "IDR", "JPY", "KRW", "VND":
		places = 0
	}
	return fmt.Sprintf("%s %s", currency, decimal.New(minor, -places).StringFixed(places))
}
