package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/notification/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	seen []domain.SettledEvent
	ctxs []error
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(ctx context.Context, evt domain.SettledEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, evt)
	c.ctxs = append(c.ctxs, ctx.Err())
	return c.err
}

type panickingChannel struct{}

func (panickingChannel) Name() string { return "broken" }

func (panickingChannel) Deliver(ctx context.Context, evt domain.SettledEvent) error {
	panic("boom")
}

func TestDispatcherFansOutDetachedFromCaller(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ok := &recordingChannel{name: "ok"}
	failing := &recordingChannel{name: "failing", err: errors.New("smtp down")}
	d := NewDispatcher(zap.New(core), ok, failing, panickingChannel{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.OrderSettled(ctx, domain.SettledEvent{OrderID: uuid.New(), OrderNumber: "ORD-1", Outcome: "paid"})

	waitCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	d.Wait(waitCtx)

	assert.Len(t, ok.seen, 1)
	assert.Len(t, failing.seen, 1)
	assert.NoError(t, ok.ctxs[0])

	assert.Equal(t, 1, logs.FilterMessage("failed to deliver settlement notification").Len())
	assert.Equal(t, 1, logs.FilterMessage("notification channel panicked").Len())
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.OrderSettled(context.Background(), domain.SettledEvent{})
}
