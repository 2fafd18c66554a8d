package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTemplateRendersAndSends(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	p := NewSMTP(Config{Host: "smtp.test", Port: 2525, From: "tickets@example.com"})
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"buyer@example.com"}, "order_paid", map[string]any{
		"buyer_name":   "Ayu",
		"order_number": "ORD-250601-ABCDEFGH",
		"total":        "IDR 210000",
		"tickets_url":  "https://tickets.example/orders/1",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, []string{"buyer@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your tickets for order ORD-250601-ABCDEFGH")
	assert.Contains(t, gotMsg, "Hi Ayu,")
	assert.True(t, strings.Contains(gotMsg, "https://tickets.example/orders/1"))
}

func TestSendTemplateUnknown(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.test", Port: 25})
	err := p.SendTemplate(context.Background(), []string{"a@example.com"}, "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	err = p.Send(context.Background(), nil, "s", "b")
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestNewFromConfigFallsBackToNoOp(t *testing.T) {
	_, ok := NewFromConfig(config.Config{}).(*NoOpProvider)
	assert.True(t, ok)

	_, ok = NewFromConfig(config.Config{SMTP: config.SMTPConfig{Host: "smtp.test", Port: 25}}).(*SMTPProvider)
	assert.True(t, ok)
}
