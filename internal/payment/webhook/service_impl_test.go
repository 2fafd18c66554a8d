package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/payment"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/wallet"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/payment/webhook"
	paymentproviderdomain "github.com/smallbiznis/eventreg/internal/paymentprovider/domain"
	ppRepo "github.com/smallbiznis/eventreg/internal/paymentprovider/repository"
	ppService "github.com/smallbiznis/eventreg/internal/paymentprovider/service"
	"github.com/smallbiznis/eventreg/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProcessor struct {
	events []*paymentdomain.PaymentEvent
}

func (p *recordingProcessor) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	p.events = append(p.events, event)
	return nil
}

func setup(t *testing.T) (paymentdomain.Service, paymentproviderdomain.Service, *recordingProcessor) {
	t.Helper()
	db := testdb.Open(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	registry := payment.NewRegistry()
	providers := ppService.New(ppService.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    ppRepo.Provide(),
		Cfg:     config.Config{PaymentProviderConfigSecret: "config_secret"},
		Catalog: registry,
	})
	processor := &recordingProcessor{}
	svc := webhook.NewService(webhook.Params{
		Log:       zap.NewNop(),
		Adapters:  registry,
		Providers: providers,
		Processor: processor,
	})
	return svc, providers, processor
}

func walletConfig(secret string) map[string]any {
	return map[string]any{
		"client_id":       "client",
		"client_secret":   "secret",
		"callback_secret": secret,
		"api_base":        "https://wallet.example",
	}
}

func TestIngestWebhookMatchesOrganizerBySignature(t *testing.T) {
	ctx := context.Background()
	svc, providers, processor := setup(t)

	first := uuid.New()
	second := uuid.New()
	_, err := providers.UpsertConfig(ctx, first, paymentproviderdomain.UpsertRequest{Provider: "wallet", Config: walletConfig("first_secret")})
	require.NoError(t, err)
	_, err = providers.UpsertConfig(ctx, second, paymentproviderdomain.UpsertRequest{Provider: "wallet", Config: walletConfig("second_secret")})
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{
		"event_id": "we_1", "payment_id": "wp_1", "reference": "ORD-1",
		"status": "PAID", "amount": 5000, "currency": "IDR",
	})
	require.NoError(t, err)
	headers := http.Header{}
	headers.Set("X-Signature", wallet.Sign("second_secret", payload))

	require.NoError(t, svc.IngestWebhook(ctx, "Wallet", payload, headers))
	require.Len(t, processor.events, 1)
	assert.Equal(t, second, processor.events[0].OrganizerID)
	assert.Equal(t, paymentdomain.OutcomeSucceeded, processor.events[0].Outcome)
}

func TestIngestWebhookRejections(t *testing.T) {
	ctx := context.Background()
	svc, providers, processor := setup(t)

	_, err := providers.UpsertConfig(ctx, uuid.New(), paymentproviderdomain.UpsertRequest{Provider: "wallet", Config: walletConfig("s")})
	require.NoError(t, err)

	payload := []byte(`{"event_id":"we_1","payment_id":"wp_1","status":"PAID"}`)
	headers := http.Header{}
	headers.Set("X-Signature", wallet.Sign("forged", payload))
	assert.ErrorIs(t, svc.IngestWebhook(ctx, "wallet", payload, headers), paymentdomain.ErrInvalidSignature)

	assert.ErrorIs(t, svc.IngestWebhook(ctx, "paypal", payload, headers), paymentdomain.ErrProviderNotFound)
	assert.ErrorIs(t, svc.IngestWebhook(ctx, "manual", payload, headers), paymentdomain.ErrCallbackUnsupported)
	assert.ErrorIs(t, svc.IngestWebhook(ctx, "stripe", payload, headers), paymentdomain.ErrProviderNotFound)
	assert.ErrorIs(t, svc.IngestWebhook(ctx, "wallet", []byte("nope"), headers), paymentdomain.ErrInvalidPayload)

	pending := []byte(`{"event_id":"we_2","payment_id":"wp_1","status":"PENDING"}`)
	headers.Set("X-Signature", wallet.Sign("s", pending))
	require.NoError(t, svc.IngestWebhook(ctx, "wallet", pending, headers))
	assert.Empty(t, processor.events)
}
