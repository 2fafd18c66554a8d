package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"go.uber.org/zap"
)

// ExpireOrdersJob expires overdue pending orders batch by batch until the
// backlog is drained.
func (s *Scheduler) ExpireOrdersJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpireOrders, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	now := s.clock.Now()
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		expired, err := s.settlement.ExpireOverdue(ctx, now, s.cfg.BatchSize)
		run.AddProcessed(expired)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.expire.failed", err)
			jobErr = errors.Join(jobErr, err)
			// a batch with failures would be reclaimed forever; leave it to
			// the next tick
			break
		}
		if expired < s.cfg.BatchSize {
			break
		}
	}
	return jobErr
}

// PollPendingJob asks providers that support it for the status of pending
// payments whose webhook has not arrived.
func (s *Scheduler) PollPendingJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPollPending, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	orders, err := s.settlement.PendingForPoll(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logJobError(ctx, run, "scheduler.poll.fetch.failed", err)
		return err
	}

	var jobErr error
	for _, order := range orders {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		settled, err := s.pollOrder(ctx, order)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.poll.order.failed", err,
				zap.String("order_number", order.OrderNumber),
				zap.String("provider", order.Provider),
			)
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if settled {
			run.AddProcessed(1)
		}
	}
	return jobErr
}

func (s *Scheduler) pollOrder(ctx context.Context, order orderdomain.Order) (bool, error) {
	if order.ProviderReference == nil || strings.TrimSpace(*order.ProviderReference) == "" {
		return false, nil
	}
	gateway, err := s.gateways.Gateway(ctx, order.OrganizerID, order.Provider)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrProviderNotFound) {
			return false, nil
		}
		return false, err
	}
	poller, ok := gateway.(paymentdomain.StatusPoller)
	if !ok {
		return false, nil
	}

	event, err := poller.PollStatus(ctx, *order.ProviderReference)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrProviderUnavailable) {
			s.logger(ctx).Debug("provider unavailable while polling",
				zap.String("provider", order.Provider),
				zap.String("order_number", order.OrderNumber),
			)
			return false, nil
		}
		return false, fmt.Errorf("poll %s: %w", order.OrderNumber, err)
	}
	if event == nil {
		return false, nil
	}

	event.Provider = order.Provider
	event.OrganizerID = order.OrganizerID
	if event.OrderNumber == "" {
		event.OrderNumber = order.OrderNumber
	}
	if event.ProviderReference == "" {
		event.ProviderReference = *order.ProviderReference
	}
	if err := s.settlement.ProcessPolledEvent(ctx, event); err != nil {
		if errors.Is(err, settlementdomain.ErrReconciliationMismatch) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
