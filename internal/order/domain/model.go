package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// IsTerminal reports whether no further payment transition is allowed,
// refunds of paid orders aside.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusPending
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "pending"
	RegistrationStatusActive    RegistrationStatus = "active"
	RegistrationStatusCancelled RegistrationStatus = "cancelled"
	RegistrationStatusRefunded  RegistrationStatus = "refunded"
)

type CheckInStatus string

const (
	CheckInStatusNotCheckedIn CheckInStatus = "not_checked_in"
	CheckInStatusCheckedIn    CheckInStatus = "checked_in"
)

// Order is one checkout. Total always equals Subtotal - Discount + Fees + Tax
// where Subtotal is the gross before discount.
type Order struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber       string            `gorm:"type:text;not null" json:"order_number"`
	OrganizerID       uuid.UUID         `gorm:"type:uuid;not null" json:"organizer_id"`
	EventID           uuid.UUID         `gorm:"type:uuid;not null" json:"event_id"`
	BuyerName         string            `gorm:"type:text;not null" json:"buyer_name"`
	BuyerEmail        string            `gorm:"type:text;not null" json:"buyer_email"`
	Subtotal          int64             `gorm:"not null" json:"subtotal"`
	Discount          int64             `gorm:"not null" json:"discount"`
	Fees              int64             `gorm:"not null" json:"fees"`
	Tax               int64             `gorm:"not null" json:"tax"`
	Total             int64             `gorm:"not null" json:"total"`
	Currency          string            `gorm:"type:text;not null" json:"currency"`
	Status            OrderStatus       `gorm:"type:text;not null" json:"status"`
	PaymentStatus     PaymentStatus     `gorm:"type:text;not null" json:"payment_status"`
	PaymentMethod     string            `gorm:"type:text;not null" json:"payment_method"`
	Provider          string            `gorm:"type:text;not null" json:"provider"`
	ProviderReference *string           `gorm:"type:text" json:"provider_reference,omitempty"`
	PaymentPayload    datatypes.JSONMap `gorm:"type:jsonb" json:"payment_payload,omitempty"`
	VoucherID         *uuid.UUID        `gorm:"type:uuid" json:"voucher_id,omitempty"`
	ExpiresAt         time.Time         `gorm:"not null" json:"expires_at"`
	PaymentDate       *time.Time        `json:"payment_date,omitempty"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty"`
	RefundedAt        *time.Time        `json:"refunded_at,omitempty"`
	ReviewRequired    bool              `gorm:"not null" json:"review_required"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Registration is one ticket of an order, held by one participant.
type Registration struct {
	ID                 uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID            uuid.UUID          `gorm:"type:uuid;not null" json:"order_id"`
	EventID            uuid.UUID          `gorm:"type:uuid;not null" json:"event_id"`
	TicketTypeID       uuid.UUID          `gorm:"type:uuid;not null" json:"ticket_type_id"`
	RegistrationNumber string             `gorm:"type:text;not null" json:"registration_number"`
	ParticipantName    string             `gorm:"type:text;not null" json:"participant_name"`
	ParticipantEmail   string             `gorm:"type:text;not null" json:"participant_email"`
	ParticipantPhone   *string            `gorm:"type:text" json:"participant_phone,omitempty"`
	Gender             *string            `gorm:"type:text" json:"gender,omitempty"`
	BirthDate          *time.Time         `json:"birth_date,omitempty"`
	UnitPrice          int64              `gorm:"not null" json:"unit_price"`
	AmountPaid         int64              `gorm:"not null" json:"amount_paid"`
	DiscountAmount     int64              `gorm:"not null" json:"discount_amount"`
	PlatformFee        int64              `gorm:"not null" json:"platform_fee"`
	VoucherCode        *string            `gorm:"type:text" json:"voucher_code,omitempty"`
	Status             RegistrationStatus `gorm:"type:text;not null" json:"status"`
	PaymentStatus      PaymentStatus      `gorm:"type:text;not null" json:"payment_status"`
	CheckInStatus      CheckInStatus      `gorm:"type:text;not null" json:"check_in_status"`
	CheckInTime        *time.Time         `json:"check_in_time,omitempty"`
	CreatedAt          time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"not null" json:"updated_at"`
}

func (Registration) TableName() string { return "registrations" }
