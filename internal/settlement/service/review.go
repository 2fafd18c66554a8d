package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"go.uber.org/zap"
)

func (s *Service) ListReviewQueue(ctx context.Context, filter settlementdomain.ReviewFilter) ([]settlementdomain.ReviewItem, error) {
	return s.repo.ListReviewItems(ctx, s.db, filter)
}

// ResolveReview closes an open review item. The resolution is free text
// describing what the operator did, such as "refunded via dashboard".
func (s *Service) ResolveReview(ctx context.Context, id snowflake.ID, resolution string, actor string) (*settlementdomain.ReviewItem, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		resolution = "resolved"
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = string(auditdomain.ActorTypeAdmin)
	}

	item, err := s.repo.FindReviewItem(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, settlementdomain.ErrReviewItemNotFound
	}
	if item.Status != settlementdomain.ReviewStatusOpen {
		return nil, settlementdomain.ErrReviewAlreadyResolved
	}

	now := s.clock.Now().UTC()
	ok, err := s.repo.ResolveReviewItem(ctx, s.db, id, resolution, actor, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, settlementdomain.ErrReviewAlreadyResolved
	}

	item.Status = settlementdomain.ReviewStatusResolved
	item.Resolution = &resolution
	item.ResolvedBy = &actor
	item.ResolvedAt = &now

	if s.auditSvc != nil {
		actorType, actorID := splitActor(actor)
		targetID := id.String()
		if err := s.auditSvc.AuditLog(ctx, item.OrganizerID, actorType, actorID,
			"review_item.resolve", "settlement_review_item", &targetID,
			map[string]any{"reason": string(item.Reason), "resolution": resolution},
		); err != nil {
			s.log.Warn("failed to audit review resolution", zap.Error(err))
		}
	}
	return item, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter settlementdomain.TransactionFilter) ([]settlementdomain.Transaction, error) {
	filter.Currency = settlementdomain.NormalizeCurrency(filter.Currency)
	filter.Unassigned = false
	return s.repo.ListTransactions(ctx, s.db, filter)
}
