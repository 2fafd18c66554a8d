package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSweepLimit = 100

// ExpireOverdue claims overdue pending orders and expires each one in its own
// savepoint, so a failing order does not roll back the rest of the batch.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}

	var (
		settled []outcome
		errs    []error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		ids, err := s.repo.ClaimOverdue(ctx, tx, now.UTC(), limit)
		s.ops.ObserveDBLockWait(obsmetrics.LockResourceOrdersForExpiry, time.Since(lockStart))
		if err != nil {
			return err
		}

		for _, id := range ids {
			orderID := id
			req := settlementdomain.TransitionRequest{
				OrderID: &orderID,
				Target:  orderdomain.OrderStatusExpired,
				Source:  settlementdomain.SourceSweep,
				Actor:   "system:expiry_sweep",
				Reason:  "payment window elapsed",
			}
			var out outcome
			err := tx.Transaction(func(sp *gorm.DB) error {
				var err error
				out, err = s.transitionTx(ctx, sp, req)
				return err
			})
			switch {
			case err == nil:
				settled = append(settled, out)
			case errors.Is(err, settlementdomain.ErrAlreadyTerminal):
			default:
				errs = append(errs, fmt.Errorf("expire order %s: %w", orderID, err))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	req := settlementdomain.TransitionRequest{Target: orderdomain.OrderStatusExpired, Source: settlementdomain.SourceSweep}
	for _, out := range settled {
		s.afterCommit(ctx, req, out)
	}
	if len(settled) > 0 {
		s.log.Info("expired overdue orders", zap.Int("count", len(settled)))
	}
	return len(settled), errors.Join(errs...)
}

// PendingForPoll lists pending orders that have a provider handle and are
// still inside their payment window.
func (s *Service) PendingForPoll(ctx context.Context, limit int) ([]orderdomain.Order, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	lockStart := time.Now()
	orders, err := s.repo.ListPendingWithReference(ctx, s.db, s.clock.Now().UTC(), limit)
	s.ops.ObserveDBLockWait(obsmetrics.LockResourceOrdersForPoll, time.Since(lockStart))
	return orders, err
}
