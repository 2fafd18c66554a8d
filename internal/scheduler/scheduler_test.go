package scheduler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/cache"
	"github.com/smallbiznis/eventreg/internal/clock"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSettlement struct {
	settlementdomain.Service

	backlog    int
	expireErr  error
	expireCall []int
	pending    []orderdomain.Order
	polled     []*paymentdomain.PaymentEvent
	polledErr  error
}

func (f *fakeSettlement) ExpireOverdue(_ context.Context, _ time.Time, limit int) (int, error) {
	f.expireCall = append(f.expireCall, limit)
	if f.expireErr != nil {
		return 0, f.expireErr
	}
	n := limit
	if f.backlog < n {
		n = f.backlog
	}
	f.backlog -= n
	return n, nil
}

func (f *fakeSettlement) PendingForPoll(context.Context, int) ([]orderdomain.Order, error) {
	return f.pending, nil
}

func (f *fakeSettlement) ProcessPolledEvent(_ context.Context, event *paymentdomain.PaymentEvent) error {
	f.polled = append(f.polled, event)
	return f.polledErr
}

type pollingGateway struct {
	events map[string]*paymentdomain.PaymentEvent
	err    error
}

func (g *pollingGateway) Initiate(context.Context, paymentdomain.InitiateRequest) (*paymentdomain.InitiateResult, error) {
	return nil, errors.New("not implemented")
}

func (g *pollingGateway) Verify(context.Context, []byte, http.Header) error { return nil }

func (g *pollingGateway) Parse(context.Context, []byte) (*paymentdomain.PaymentEvent, error) {
	return nil, errors.New("not implemented")
}

func (g *pollingGateway) PollStatus(_ context.Context, reference string) (*paymentdomain.PaymentEvent, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.events[reference], nil
}

// webhookOnlyGateway has no status endpoint.
type webhookOnlyGateway struct{}

func (webhookOnlyGateway) Initiate(context.Context, paymentdomain.InitiateRequest) (*paymentdomain.InitiateResult, error) {
	return nil, errors.New("not implemented")
}

func (webhookOnlyGateway) Verify(context.Context, []byte, http.Header) error { return nil }

func (webhookOnlyGateway) Parse(context.Context, []byte) (*paymentdomain.PaymentEvent, error) {
	return nil, errors.New("not implemented")
}

type fakeGateways struct {
	byProvider map[string]paymentdomain.Gateway
}

func (f *fakeGateways) ProviderExists(provider string) bool {
	_, ok := f.byProvider[provider]
	return ok
}

func (f *fakeGateways) Gateway(_ context.Context, _ uuid.UUID, provider string) (paymentdomain.Gateway, error) {
	gw, ok := f.byProvider[provider]
	if !ok {
		return nil, paymentdomain.ErrProviderNotFound
	}
	return gw, nil
}

func newTestScheduler(t *testing.T, settlement *fakeSettlement, gateways *fakeGateways, cfg Config, locker *cache.Locker) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	if gateways == nil {
		gateways = &fakeGateways{}
	}
	s, err := New(Params{
		Log:        zap.NewNop(),
		GenID:      node,
		Settlement: settlement,
		Gateways:   gateways,
		Clock:      clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		Locker:     locker,
		Config:     cfg,
	})
	require.NoError(t, err)
	return s
}

func strPtr(v string) *string { return &v }

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestExpireOrdersJobDrainsBacklog(t *testing.T) {
	settlement := &fakeSettlement{backlog: 25}
	s := newTestScheduler(t, settlement, nil, Config{BatchSize: 10}, nil)

	require.NoError(t, s.ExpireOrdersJob(context.Background()))
	assert.Equal(t, []int{10, 10, 10}, settlement.expireCall)
	assert.Equal(t, 0, settlement.backlog)
}

func TestExpireOrdersJobStopsOnError(t *testing.T) {
	settlement := &fakeSettlement{backlog: 25, expireErr: errors.New("db down")}
	s := newTestScheduler(t, settlement, nil, Config{BatchSize: 10}, nil)

	err := s.ExpireOrdersJob(context.Background())
	require.Error(t, err)
	assert.Len(t, settlement.expireCall, 1)
}

func TestPollPendingJobAppliesProviderStatus(t *testing.T) {
	orgID := uuid.New()
	settlement := &fakeSettlement{
		pending: []orderdomain.Order{
			{OrderNumber: "EVT-0001", OrganizerID: orgID, Provider: "midtrans", ProviderReference: strPtr("ref-paid")},
			{OrderNumber: "EVT-0002", OrganizerID: orgID, Provider: "midtrans", ProviderReference: strPtr("ref-pending")},
			{OrderNumber: "EVT-0003", OrganizerID: orgID, Provider: "stripe", ProviderReference: strPtr("ref-stripe")},
			{OrderNumber: "EVT-0004", OrganizerID: orgID, Provider: "wallet", ProviderReference: strPtr("ref-wallet")},
			{OrderNumber: "EVT-0005", OrganizerID: orgID, Provider: "midtrans"},
		},
	}
	gateways := &fakeGateways{byProvider: map[string]paymentdomain.Gateway{
		"midtrans": &pollingGateway{events: map[string]*paymentdomain.PaymentEvent{
			"ref-paid": {ProviderEventID: "tx-1", Outcome: paymentdomain.OutcomeSucceeded, Amount: 150000, Currency: "IDR"},
		}},
		"stripe": webhookOnlyGateway{},
	}}
	s := newTestScheduler(t, settlement, gateways, Config{BatchSize: 10}, nil)

	require.NoError(t, s.PollPendingJob(context.Background()))
	require.Len(t, settlement.polled, 1)
	event := settlement.polled[0]
	assert.Equal(t, "midtrans", event.Provider)
	assert.Equal(t, orgID, event.OrganizerID)
	assert.Equal(t, "EVT-0001", event.OrderNumber)
	assert.Equal(t, "ref-paid", event.ProviderReference)
}

func TestPollPendingJobToleratesUnavailableProviderAndMismatch(t *testing.T) {
	orgID := uuid.New()
	settlement := &fakeSettlement{
		pending: []orderdomain.Order{
			{OrderNumber: "EVT-0001", OrganizerID: orgID, Provider: "midtrans", ProviderReference: strPtr("ref-1")},
		},
		polledErr: settlementdomain.ErrReconciliationMismatch,
	}
	gateways := &fakeGateways{byProvider: map[string]paymentdomain.Gateway{
		"midtrans": &pollingGateway{events: map[string]*paymentdomain.PaymentEvent{
			"ref-1": {ProviderEventID: "tx-1", Outcome: paymentdomain.OutcomeSucceeded, Amount: 1, Currency: "IDR"},
		}},
	}}
	s := newTestScheduler(t, settlement, gateways, Config{BatchSize: 10}, nil)
	require.NoError(t, s.PollPendingJob(context.Background()))

	gateways.byProvider["midtrans"] = &pollingGateway{err: paymentdomain.ErrProviderUnavailable}
	settlement.polled = nil
	require.NoError(t, s.PollPendingJob(context.Background()))
	assert.Empty(t, settlement.polled)
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	settlement := &fakeSettlement{backlog: 3}
	s := newTestScheduler(t, settlement, nil, Config{BatchSize: 10, EnabledJobs: []string{"POLL_PENDING"}}, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, settlement.expireCall)
	assert.True(t, s.isJobEnabled(JobPollPending))
	assert.False(t, s.isJobEnabled(JobExpireOrders))
}

func TestRunOnceSkipsJobsHeldElsewhere(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cfg := Config{BatchSize: 10, EnabledJobs: []string{JobExpireOrders}}.withDefaults()
	mock.Regexp().ExpectSetNX(lockKeyPrefix+JobExpireOrders, `.+`, cfg.LockTTL).SetVal(false)

	settlement := &fakeSettlement{backlog: 3}
	s := newTestScheduler(t, settlement, nil, cfg, cache.NewLocker(client))

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, settlement.expireCall)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceReleasesLockAfterJob(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(true)
	cfg := Config{BatchSize: 10, EnabledJobs: []string{JobExpireOrders}}.withDefaults()
	key := lockKeyPrefix + JobExpireOrders
	mock.Regexp().ExpectSetNX(key, `.+`, cfg.LockTTL).SetVal(true)
	mock.Regexp().ExpectEvalSha(`.+`, []string{key}, `.+`).SetVal(int64(1))

	settlement := &fakeSettlement{backlog: 3}
	s := newTestScheduler(t, settlement, nil, cfg, cache.NewLocker(client))

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []int{10}, settlement.expireCall)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)

	cfg = Config{RunInterval: 5 * time.Second, BatchSize: 7}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.RunInterval)
	assert.Equal(t, 7, cfg.BatchSize)
}
