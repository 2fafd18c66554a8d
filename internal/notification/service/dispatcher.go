package service

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/notification/channel"
	"github.com/smallbiznis/eventreg/internal/notification/domain"
	"github.com/smallbiznis/eventreg/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const deliveryTimeout = 30 * time.Second

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Log       *zap.Logger
	Config    config.Config
	Email     email.Provider `optional:"true"`
	Redis     *redis.Client  `optional:"true"`
}

// Dispatcher delivers every settled event on each channel in its own
// goroutine, detached from the caller's cancellation.
type Dispatcher struct {
	log      *zap.Logger
	channels []domain.Channel
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, channels ...domain.Channel) *Dispatcher {
	return &Dispatcher{
		log:      log.Named("notification.dispatcher"),
		channels: channels,
		timeout:  deliveryTimeout,
	}
}

func NewService(p Params) domain.Dispatcher {
	var channels []domain.Channel
	if p.Email != nil {
		channels = append(channels, channel.NewEmail(p.Email, p.Config.PublicBaseURL))
	}
	if p.Redis != nil {
		channels = append(channels, channel.NewRedisPublisher(p.Redis))
	}

	d := NewDispatcher(p.Log, channels...)
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				d.Wait(ctx)
				return nil
			},
		})
	}
	return d
}

func (d *Dispatcher) OrderSettled(ctx context.Context, evt domain.SettledEvent) {
	if d == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, ch := range d.channels {
		d.wg.Add(1)
		go func(ch domain.Channel) {
			defer d.wg.Done()
			d.deliver(base, ch, evt)
		}(ch)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ch domain.Channel, evt domain.SettledEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notification channel panicked",
				zap.String("channel", ch.Name()),
				zap.Any("panic", r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := ch.Deliver(ctx, evt); err != nil {
		d.log.Warn("failed to deliver settlement notification",
			zap.String("channel", ch.Name()),
			zap.String("order_number", evt.OrderNumber),
			zap.String("outcome", evt.Outcome),
			zap.Error(err),
		)
		return
	}
	d.log.Debug("settlement notification delivered",
		zap.String("channel", ch.Name()),
		zap.String("order_number", evt.OrderNumber),
	)
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
