package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/eventreg/internal/ledger/domain"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errPayoutRace = errors.New("payout_transactions_changed")

// CreatePayout nets the organizer's unassigned sales and refunds in
// [periodStart, periodEnd) into one payout and settles the payable balance.
func (s *Service) CreatePayout(ctx context.Context, organizerID uuid.UUID, currency string, periodStart, periodEnd time.Time) (*settlementdomain.Payout, error) {
	currency = settlementdomain.NormalizeCurrency(currency)
	if organizerID == uuid.Nil || currency == "" || !periodEnd.After(periodStart) {
		return nil, settlementdomain.ErrInvalidPayoutPeriod
	}
	start, end := periodStart.UTC(), periodEnd.UTC()

	var payout *settlementdomain.Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txns, err := s.repo.ListTransactions(ctx, tx, settlementdomain.TransactionFilter{
			OrganizerID: organizerID,
			Currency:    currency,
			From:        &start,
			To:          &end,
			Unassigned:  true,
		})
		if err != nil {
			return err
		}
		if len(txns) == 0 {
			return settlementdomain.ErrNoTransactionsForPayout
		}

		p := &settlementdomain.Payout{
			ID:               s.genID.Generate(),
			OrganizerID:      organizerID,
			Currency:         currency,
			PeriodStart:      start,
			PeriodEnd:        end,
			TransactionCount: len(txns),
			Status:           settlementdomain.PayoutStatusPending,
			CreatedAt:        s.clock.Now().UTC(),
		}
		ids := make([]snowflake.ID, 0, len(txns))
		for _, txn := range txns {
			p.Gross += txn.Sign() * txn.Gross
			p.PlatformFee += txn.Sign() * txn.PlatformFee
			p.Net += txn.Sign() * txn.Net
			ids = append(ids, txn.ID)
		}

		if err := s.repo.InsertPayout(ctx, tx, p); err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}
		assigned, err := s.repo.AssignPayout(ctx, tx, p.ID, ids)
		if err != nil {
			return err
		}
		if assigned != int64(len(ids)) {
			return errPayoutRace
		}

		if p.Net > 0 {
			if _, err := s.ledger.CreateEntry(ctx, tx, ledgerdomain.EntryRequest{
				OrganizerID: organizerID,
				SourceType:  ledgerdomain.SourceTypePayout,
				SourceID:    p.ID.String(),
				Currency:    currency,
				OccurredAt:  p.CreatedAt,
				Postings:    ledgerdomain.PayoutPostings(p.Net),
			}); err != nil {
				return fmt.Errorf("post payout ledger entry: %w", err)
			}
		}

		if s.auditSvc != nil {
			targetID := p.ID.String()
			if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
				OrganizerID: &organizerID,
				ActorType:   string(auditdomain.ActorTypeSystem),
				Action:      "payout.create",
				TargetType:  "payout",
				TargetID:    &targetID,
				Metadata: map[string]any{
					"currency":          currency,
					"net":               p.Net,
					"transaction_count": p.TransactionCount,
				},
			}); err != nil {
				return err
			}
		}

		payout = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payout created",
		zap.String("organizer_id", organizerID.String()),
		zap.String("payout_id", payout.ID.String()),
		zap.Int64("net", payout.Net),
	)
	return payout, nil
}

func (s *Service) ListPayouts(ctx context.Context, organizerID uuid.UUID) ([]settlementdomain.Payout, error) {
	return s.repo.ListPayouts(ctx, s.db, organizerID)
}
