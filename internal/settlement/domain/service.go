package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"gorm.io/gorm"
)

type Repository interface {
	LockOrderByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*orderdomain.Order, error)
	LockOrderByNumber(ctx context.Context, tx *gorm.DB, orderNumber string) (*orderdomain.Order, error)
	// UpdateOrderStatus changes the order only while it is still in from and
	// reports whether it did.
	UpdateOrderStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from orderdomain.OrderStatus, update OrderUpdate) (bool, error)
	UpdateRegistrations(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from orderdomain.RegistrationStatus, to orderdomain.RegistrationStatus, paymentStatus orderdomain.PaymentStatus, skipCheckedIn bool, updatedAt time.Time) (int64, error)
	// LockTicketCapacity locks the ticket type rows and returns their caps.
	LockTicketCapacity(ctx context.Context, tx *gorm.DB, ticketTypeIDs []uuid.UUID) (map[uuid.UUID]*int, error)
	// ClaimOverdue returns ids of pending orders whose expiry passed, skipping
	// rows locked by another sweeper.
	ClaimOverdue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]uuid.UUID, error)
	ListPendingWithReference(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]orderdomain.Order, error)

	InsertTransaction(ctx context.Context, tx *gorm.DB, txn *Transaction) (bool, error)
	ListTransactions(ctx context.Context, db *gorm.DB, filter TransactionFilter) ([]Transaction, error)
	AssignPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID, transactionIDs []snowflake.ID) (int64, error)
	InsertPayout(ctx context.Context, tx *gorm.DB, payout *Payout) error
	ListPayouts(ctx context.Context, db *gorm.DB, organizerID uuid.UUID) ([]Payout, error)

	InsertReviewItem(ctx context.Context, db *gorm.DB, item *ReviewItem) error
	ListReviewItems(ctx context.Context, db *gorm.DB, filter ReviewFilter) ([]ReviewItem, error)
	ResolveReviewItem(ctx context.Context, db *gorm.DB, id snowflake.ID, resolution string, resolvedBy string, resolvedAt time.Time) (bool, error)
	FindReviewItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ReviewItem, error)
}

// OrderUpdate is the column set written by a transition.
type OrderUpdate struct {
	Status         orderdomain.OrderStatus
	PaymentStatus  orderdomain.PaymentStatus
	PaymentDate    *time.Time
	CancelledAt    *time.Time
	RefundedAt     *time.Time
	ReviewRequired bool
	UpdatedAt      time.Time
}

// Service is the single authority over order payment state.
type Service interface {
	Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	// ProcessEvent applies a verified provider callback.
	ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error
	// ProcessPolledEvent applies a status obtained by polling the provider.
	ProcessPolledEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error
	// ExpireOverdue expires at most limit pending orders past their expiry.
	ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error)
	PendingForPoll(ctx context.Context, limit int) ([]orderdomain.Order, error)
	ListReviewQueue(ctx context.Context, filter ReviewFilter) ([]ReviewItem, error)
	ResolveReview(ctx context.Context, id snowflake.ID, resolution string, actor string) (*ReviewItem, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

type PayoutService interface {
	// CreatePayout groups the organizer's unassigned transactions in the
	// period into one payout.
	CreatePayout(ctx context.Context, organizerID uuid.UUID, currency string, periodStart, periodEnd time.Time) (*Payout, error)
	ListPayouts(ctx context.Context, organizerID uuid.UUID) ([]Payout, error)
}

var (
	ErrAlreadyTerminal         = errors.New("already_terminal")
	ErrReconciliationMismatch  = errors.New("reconciliation_mismatch")
	ErrInvalidTransition       = errors.New("invalid_transition")
	ErrInvalidSource           = errors.New("invalid_source")
	ErrRefundRequiresManual    = errors.New("refund_requires_manual")
	ErrReviewItemNotFound      = errors.New("review_item_not_found")
	ErrReviewAlreadyResolved   = errors.New("review_already_resolved")
	ErrInvalidPayoutPeriod     = errors.New("invalid_payout_period")
	ErrNoTransactionsForPayout = errors.New("no_transactions_for_payout")
)
