package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	"gorm.io/datatypes"
)

type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceSweep   Source = "sweep"
	SourceManual  Source = "manual"
)

func (s Source) Valid() bool {
	switch s {
	case SourceWebhook, SourcePoll, SourceSweep, SourceManual:
		return true
	}
	return false
}

// TransitionRequest asks for one order state change. Exactly one of OrderID
// and OrderNumber identifies the order.
type TransitionRequest struct {
	OrderID         *uuid.UUID
	OrderNumber     string
	Target          orderdomain.OrderStatus
	Source          Source
	Amount          *int64
	Currency        *string
	Actor           string
	Reason          string
	Provider        string
	ProviderEventID string
}

type TransitionResult struct {
	Order orderdomain.Order
	From  orderdomain.OrderStatus
}

type ReviewReason string

const (
	ReviewReasonMismatch       ReviewReason = "reconciliation_mismatch"
	ReviewReasonLatePayment    ReviewReason = "late_payment"
	ReviewReasonRefundRequired ReviewReason = "refund_required"
	ReviewReasonUnknownOrder   ReviewReason = "unknown_order"
	ReviewReasonProviderRefund ReviewReason = "provider_refund"
	ReviewReasonDoublePayment  ReviewReason = "double_payment"
)

type ReviewStatus string

const (
	ReviewStatusOpen     ReviewStatus = "open"
	ReviewStatusResolved ReviewStatus = "resolved"
)

// ReviewItem is a settlement anomaly awaiting an operator.
type ReviewItem struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrderID         *uuid.UUID        `gorm:"type:uuid" json:"order_id,omitempty"`
	OrderNumber     *string           `gorm:"type:text" json:"order_number,omitempty"`
	OrganizerID     *uuid.UUID        `gorm:"type:uuid" json:"organizer_id,omitempty"`
	Provider        *string           `gorm:"type:text" json:"provider,omitempty"`
	ProviderEventID *string           `gorm:"type:text" json:"provider_event_id,omitempty"`
	Reason          ReviewReason      `gorm:"type:text;not null" json:"reason"`
	Detail          datatypes.JSONMap `gorm:"type:jsonb" json:"detail,omitempty"`
	Status          ReviewStatus      `gorm:"type:text;not null" json:"status"`
	Resolution      *string           `gorm:"type:text" json:"resolution,omitempty"`
	ResolvedBy      *string           `gorm:"type:text" json:"resolved_by,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
}

func (ReviewItem) TableName() string { return "settlement_review_items" }

type TransactionKind string

const (
	TransactionKindSale   TransactionKind = "sale"
	TransactionKindRefund TransactionKind = "refund"
)

// Transaction books the commission split of a paid or refunded order. Amounts
// are positive; Kind carries the sign.
type Transaction struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null" json:"order_id"`
	OrganizerID uuid.UUID       `gorm:"type:uuid;not null" json:"organizer_id"`
	EventID     uuid.UUID       `gorm:"type:uuid;not null" json:"event_id"`
	Kind        TransactionKind `gorm:"type:text;not null" json:"kind"`
	Gross       int64           `gorm:"not null" json:"gross"`
	PlatformFee int64           `gorm:"not null" json:"platform_fee"`
	Net         int64           `gorm:"not null" json:"net"`
	Currency    string          `gorm:"type:text;not null" json:"currency"`
	PayoutID    *snowflake.ID   `json:"payout_id,omitempty"`
	OccurredAt  time.Time       `gorm:"not null" json:"occurred_at"`
}

func (Transaction) TableName() string { return "transactions" }

// Sign returns +1 for sales and -1 for refunds.
func (t Transaction) Sign() int64 {
	if t.Kind == TransactionKindRefund {
		return -1
	}
	return 1
}

type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
)

type Payout struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizerID      uuid.UUID    `gorm:"type:uuid;not null" json:"organizer_id"`
	Currency         string       `gorm:"type:text;not null" json:"currency"`
	PeriodStart      time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd        time.Time    `gorm:"not null" json:"period_end"`
	Gross            int64        `gorm:"not null" json:"gross"`
	PlatformFee      int64        `gorm:"not null" json:"platform_fee"`
	Net              int64        `gorm:"not null" json:"net"`
	TransactionCount int          `gorm:"not null" json:"transaction_count"`
	Status           PayoutStatus `gorm:"type:text;not null" json:"status"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
}

func (Payout) TableName() string { return "payouts" }

type ReviewFilter struct {
	Status      ReviewStatus
	OrganizerID *uuid.UUID
	Limit       int
}

type TransactionFilter struct {
	OrganizerID uuid.UUID
	Currency    string
	From        *time.Time
	To          *time.Time
	Unassigned  bool
}

// NormalizeCurrency upper-cases an ISO-4217 code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
