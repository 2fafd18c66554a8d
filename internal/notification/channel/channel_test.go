package channel

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/notification/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMail struct {
	to       []string
	template string
	data     map[string]any
}

type fakeProvider struct {
	sent []capturedMail
	err  error
}

func (f *fakeProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return f.err
}

func (f *fakeProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	f.sent = append(f.sent, capturedMail{to: to, template: templateName, data: data})
	return f.err
}

func settled(outcome string) domain.SettledEvent {
	return domain.SettledEvent{
		OrderID:     uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		OrderNumber: "ORD-250601-ABCDEFGH",
		OrganizerID: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		EventID:     uuid.New(),
		Outcome:     outcome,
		Email:       "buyer@example.com",
		BuyerName:   "Ayu",
		Total:       210000,
		Currency:    "IDR",
		OccurredAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEmailChannelPicksTemplate(t *testing.T) {
	provider := &fakeProvider{}
	ch := NewEmail(provider, "https://tickets.example/")

	require.NoError(t, ch.Deliver(context.Background(), settled("paid")))
	require.NoError(t, ch.Deliver(context.Background(), settled("expired")))
	require.NoError(t, ch.Deliver(context.Background(), settled("refunded")))

	require.Len(t, provider.sent, 3)
	assert.Equal(t, "order_paid", provider.sent[0].template)
	assert.Equal(t, "order_closed", provider.sent[1].template)
	assert.Equal(t, "order_refunded", provider.sent[2].template)
	assert.Equal(t, []string{"buyer@example.com"}, provider.sent[0].to)
	assert.Equal(t, "IDR 210000", provider.sent[0].data["total"])
	assert.Equal(t, "https://tickets.example/orders/11111111-1111-1111-1111-111111111111/tickets", provider.sent[0].data["tickets_url"])
}

func TestEmailChannelSkipsMissingAddress(t *testing.T) {
	provider := &fakeProvider{}
	evt := settled("paid")
	evt.Email = " "
	require.NoError(t, NewEmail(provider, "").Deliver(context.Background(), evt))
	assert.Empty(t, provider.sent)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "IDR 150000", FormatAmount(150000, "idr"))
	assert.Equal(t, "EUR 42.50", FormatAmount(4250, "EUR"))
	assert.Equal(t, "USD 0.05", FormatAmount(5, "usd"))
}

func TestRedisPublisherPublishesToBothChannels(t *testing.T) {
	client, mock := redismock.NewClientMock()
	evt := settled("paid")
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	mock.ExpectPublish(SettledChannel, payload).SetVal(1)
	mock.ExpectPublish("eventreg:orders:settled:22222222-2222-2222-2222-222222222222", payload).SetVal(0)

	require.NoError(t, NewRedisPublisher(client).Deliver(context.Background(), evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisherSurfacesErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	evt := settled("cancelled")
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	mock.ExpectPublish(SettledChannel, payload).SetErr(errors.New("connection reset"))

	err = NewRedisPublisher(client).Deliver(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish settled event")
}
