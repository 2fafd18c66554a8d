package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/clock"
	ledgerdomain "github.com/smallbiznis/eventreg/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	AuditSvc   auditdomain.Service `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	auditSvc   auditdomain.Service
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		auditSvc:   p.AuditSvc,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateEntry(ctx context.Context, tx *gorm.DB, req ledgerdomain.EntryRequest) (bool, error) {
	if req.OrganizerID == uuid.Nil {
		return false, ledgerdomain.ErrInvalidOrganization
	}

	sourceType := ledgerdomain.LedgerSourceType(strings.TrimSpace(string(req.SourceType)))
	if sourceType == "" {
		return false, ledgerdomain.ErrInvalidSourceType
	}
	sourceID := strings.TrimSpace(req.SourceID)
	if sourceID == "" {
		return false, ledgerdomain.ErrInvalidSourceID
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return false, ledgerdomain.ErrInvalidCurrency
	}
	if req.OccurredAt.IsZero() {
		return false, ledgerdomain.ErrInvalidOccurredAt
	}

	normalized := make([]ledgerdomain.Posting, 0, len(req.Postings))
	for _, line := range req.Postings {
		if strings.TrimSpace(string(line.AccountCode)) == "" {
			return false, ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return false, err
		}
		if line.Amount < 0 {
			return false, ledgerdomain.ErrInvalidLineAmount
		}
		// Zero lines carry no information; a fee-free sale has no revenue line.
		if line.Amount == 0 {
			continue
		}
		normalized = append(normalized, ledgerdomain.Posting{
			AccountCode: line.AccountCode,
			Direction:   direction,
			Amount:      line.Amount,
		})
	}
	if len(normalized) < 2 {
		return false, ledgerdomain.ErrInvalidEntryLines
	}
	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return false, err
	}

	if tx == nil {
		tx = s.db
	}

	entryID := s.genID.Generate()
	now := s.clock.Now().UTC()
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, organizer_id, source_type, source_id, currency, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (organizer_id, source_type, source_id) DO NOTHING`,
		entryID,
		req.OrganizerID,
		string(sourceType),
		sourceID,
		currency,
		req.OccurredAt.UTC(),
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		s.log.Info("ledger entry already posted",
			zap.String("source_type", string(sourceType)),
			zap.String("source_id", sourceID),
		)
		return false, nil
	}

	for _, line := range normalized {
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_entry_lines (
				id, ledger_entry_id, account_code, direction, amount, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			entryID,
			string(line.AccountCode),
			string(line.Direction),
			line.Amount,
			now,
		).Error; err != nil {
			return false, err
		}
	}

	if s.auditSvc != nil {
		entryIDStr := entryID.String()
		organizerID := req.OrganizerID
		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			OrganizerID: &organizerID,
			ActorType:   string(auditdomain.ActorTypeSystem),
			Action:      "ledger.entry_created",
			TargetType:  "ledger_entry",
			TargetID:    &entryIDStr,
			Metadata: map[string]any{
				"source_type": string(sourceType),
				"source_id":   sourceID,
			},
		}); err != nil {
			return false, err
		}
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(sourceType))
	return true, nil
}

func (s *Service) Balance(ctx context.Context, organizerID uuid.UUID, currency string, account ledgerdomain.LedgerAccountCode) (int64, error) {
	var balance struct {
		Total int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN l.direction = 'debit' THEN l.amount ELSE -l.amount END), 0) AS total
		 FROM ledger_entry_lines l
		 JOIN ledger_entries e ON e.id = l.ledger_entry_id
		 WHERE e.organizer_id = ? AND e.currency = ? AND l.account_code = ?`,
		organizerID,
		strings.ToUpper(strings.TrimSpace(currency)),
		string(account),
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance.Total, nil
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
