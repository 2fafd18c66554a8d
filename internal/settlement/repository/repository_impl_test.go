package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"github.com/smallbiznis/eventreg/internal/settlement/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// openOrders opens a bare sqlite database without any query rewriting.
func openOrders(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		review_required BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at TIMESTAMP NOT NULL,
		refunded_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	)`).Error)
	return db
}

func insertOrder(t *testing.T, db *gorm.DB, status orderdomain.OrderStatus, payment orderdomain.PaymentStatus, expiresAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO orders (id, status, payment_status, expires_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), status, payment, expiresAt, now,
	).Error)
	return id
}

func TestClaimOverdueOnSqlite(t *testing.T) {
	db := openOrders(t)
	repo := repository.Provide()

	oldest := insertOrder(t, db, orderdomain.OrderStatusPending, orderdomain.PaymentStatusPending, now.Add(-2*time.Hour))
	older := insertOrder(t, db, orderdomain.OrderStatusPending, orderdomain.PaymentStatusPending, now.Add(-time.Hour))
	insertOrder(t, db, orderdomain.OrderStatusPending, orderdomain.PaymentStatusPending, now.Add(time.Hour))
	insertOrder(t, db, orderdomain.OrderStatusPaid, orderdomain.PaymentStatusPaid, now.Add(-3*time.Hour))

	var ids []uuid.UUID
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		ids, err = repo.ClaimOverdue(context.Background(), tx, now, 10)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldest, older}, ids)

	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		ids, err = repo.ClaimOverdue(context.Background(), tx, now, 1)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldest}, ids)
}

func TestUpdateOrderStatusFromCancelledRequiresCapturedPayment(t *testing.T) {
	db := openOrders(t)
	repo := repository.Provide()
	ctx := context.Background()
	update := settlementdomain.OrderUpdate{
		Status:        orderdomain.OrderStatusRefunded,
		PaymentStatus: orderdomain.PaymentStatusRefunded,
		RefundedAt:    &now,
		UpdatedAt:     now,
	}

	failed := insertOrder(t, db, orderdomain.OrderStatusCancelled, orderdomain.PaymentStatusFailed, now)
	ok, err := repo.UpdateOrderStatus(ctx, db, failed, orderdomain.OrderStatusCancelled, update)
	require.NoError(t, err)
	assert.False(t, ok)

	captured := insertOrder(t, db, orderdomain.OrderStatusCancelled, orderdomain.PaymentStatusPaid, now)
	ok, err = repo.UpdateOrderStatus(ctx, db, captured, orderdomain.OrderStatusCancelled, update)
	require.NoError(t, err)
	assert.True(t, ok)

	var status string
	require.NoError(t, db.Raw(`SELECT status FROM orders WHERE id = ?`, captured.String()).Scan(&status).Error)
	assert.Equal(t, string(orderdomain.OrderStatusRefunded), status)
}
