package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	eventdomain "github.com/smallbiznis/eventreg/internal/event/domain"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	"github.com/smallbiznis/eventreg/internal/settlement/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LockOrderByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*orderdomain.Order, error) {
	return lockOrder(ctx, tx, "id = ?", id)
}

func (r *repo) LockOrderByNumber(ctx context.Context, tx *gorm.DB, orderNumber string) (*orderdomain.Order, error) {
	return lockOrder(ctx, tx, "order_number = ?", orderNumber)
}

func lockOrder(ctx context.Context, tx *gorm.DB, query string, args ...any) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(query, args...).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) UpdateOrderStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from orderdomain.OrderStatus, update domain.OrderUpdate) (bool, error) {
	values := map[string]any{
		"status":         update.Status,
		"payment_status": update.PaymentStatus,
		"updated_at":     update.UpdatedAt,
	}
	if update.PaymentDate != nil {
		values["payment_date"] = *update.PaymentDate
	}
	if update.CancelledAt != nil {
		values["cancelled_at"] = *update.CancelledAt
	}
	if update.RefundedAt != nil {
		values["refunded_at"] = *update.RefundedAt
	}
	if update.ReviewRequired {
		values["review_required"] = true
	}

	query := tx.WithContext(ctx).Model(&orderdomain.Order{}).Where("id = ? AND status = ?", id, from)
	switch from {
	case orderdomain.OrderStatusPending:
		query = query.Where("payment_status = ?", orderdomain.PaymentStatusPending)
	case orderdomain.OrderStatusCancelled:
		query = query.Where("payment_status = ?", orderdomain.PaymentStatusPaid)
	}
	res := query.Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateRegistrations(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from orderdomain.RegistrationStatus, to orderdomain.RegistrationStatus, paymentStatus orderdomain.PaymentStatus, skipCheckedIn bool, updatedAt time.Time) (int64, error) {
	query := tx.WithContext(ctx).
		Model(&orderdomain.Registration{}).
		Where("order_id = ? AND status = ?", orderID, from)
	if skipCheckedIn {
		query = query.Where("check_in_status = ?", orderdomain.CheckInStatusNotCheckedIn)
	}
	res := query.Updates(map[string]any{
		"status":         to,
		"payment_status": paymentStatus,
		"updated_at":     updatedAt,
	})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) LockTicketCapacity(ctx context.Context, tx *gorm.DB, ticketTypeIDs []uuid.UUID) (map[uuid.UUID]*int, error) {
	caps := make(map[uuid.UUID]*int, len(ticketTypeIDs))
	if len(ticketTypeIDs) == 0 {
		return caps, nil
	}
	var rows []eventdomain.TicketType
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ticketTypeIDs).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		caps[row.ID] = row.Quantity
	}
	return caps, nil
}

func (r *repo) ClaimOverdue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]uuid.UUID, error) {
	query := tx.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("status = ? AND payment_status = ? AND expires_at <= ?",
			orderdomain.OrderStatusPending,
			orderdomain.PaymentStatusPending,
			now,
		).
		Order("expires_at ASC, id ASC").
		Limit(limit)
	// sqlite has no row locks; its single writer already serializes sweeps.
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var ids []uuid.UUID
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListPendingWithReference(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).
		Where("status = ? AND payment_status = ?", orderdomain.OrderStatusPending, orderdomain.PaymentStatusPending).
		Where("provider_reference IS NOT NULL AND expires_at > ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) InsertTransaction(ctx context.Context, tx *gorm.DB, txn *domain.Transaction) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO transactions (
			id, order_id, organizer_id, event_id, kind, gross, platform_fee, net, currency, payout_id, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT (order_id, kind) DO NOTHING`,
		txn.ID,
		txn.OrderID,
		txn.OrganizerID,
		txn.EventID,
		string(txn.Kind),
		txn.Gross,
		txn.PlatformFee,
		txn.Net,
		txn.Currency,
		txn.OccurredAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	query := db.WithContext(ctx).Model(&domain.Transaction{}).Where("organizer_id = ?", filter.OrganizerID)
	if filter.Currency != "" {
		query = query.Where("currency = ?", filter.Currency)
	}
	if filter.From != nil {
		query = query.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("occurred_at < ?", *filter.To)
	}
	if filter.Unassigned {
		query = query.Where("payout_id IS NULL").Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var items []domain.Transaction
	if err := query.Order("occurred_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) AssignPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID, transactionIDs []snowflake.ID) (int64, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}
	res := tx.WithContext(ctx).Exec(
		`UPDATE transactions SET payout_id = ? WHERE id IN ? AND payout_id IS NULL`,
		payoutID,
		transactionIDs,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) InsertPayout(ctx context.Context, tx *gorm.DB, payout *domain.Payout) error {
	return tx.WithContext(ctx).Create(payout).Error
}

func (r *repo) ListPayouts(ctx context.Context, db *gorm.DB, organizerID uuid.UUID) ([]domain.Payout, error) {
	var items []domain.Payout
	err := db.WithContext(ctx).
		Where("organizer_id = ?", organizerID).
		Order("period_start DESC, id DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertReviewItem(ctx context.Context, db *gorm.DB, item *domain.ReviewItem) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) ListReviewItems(ctx context.Context, db *gorm.DB, filter domain.ReviewFilter) ([]domain.ReviewItem, error) {
	query := db.WithContext(ctx).Model(&domain.ReviewItem{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OrganizerID != nil {
		query = query.Where("organizer_id = ?", *filter.OrganizerID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var items []domain.ReviewItem
	if err := query.Order("created_at ASC, id ASC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ResolveReviewItem(ctx context.Context, db *gorm.DB, id snowflake.ID, resolution string, resolvedBy string, resolvedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.ReviewItem{}).
		Where("id = ? AND status = ?", id, domain.ReviewStatusOpen).
		Updates(map[string]any{
			"status":      domain.ReviewStatusResolved,
			"resolution":  resolution,
			"resolved_by": resolvedBy,
			"resolved_at": resolvedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindReviewItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ReviewItem, error) {
	var item domain.ReviewItem
	err := db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
