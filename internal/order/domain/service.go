package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) error
	InsertRegistrations(ctx context.Context, db *gorm.DB, regs []Registration) error
	OrderNumberExists(ctx context.Context, db *gorm.DB, orderNumber string) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Order, error)
	FindByNumber(ctx context.Context, db *gorm.DB, orderNumber string) (*Order, error)
	FindByProviderReference(ctx context.Context, db *gorm.DB, provider string, reference string) (*Order, error)
	ListRegistrations(ctx context.Context, db *gorm.DB, orderID uuid.UUID) ([]Registration, error)
	FindRegistration(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Registration, error)
	// SetPaymentReference stores the provider handle while the order is
	// still pending and reports whether it did.
	SetPaymentReference(ctx context.Context, db *gorm.DB, id uuid.UUID, reference string, payload datatypes.JSONMap, expiresAt time.Time, updatedAt time.Time) (bool, error)
}

type Service interface {
	// Checkout persists the order before contacting the provider. When the
	// provider cannot be reached the persisted order is returned together
	// with ErrProviderUnavailable.
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	// RetryPayment re-initiates payment for a pending order whose first
	// initiation never produced a provider reference.
	RetryPayment(ctx context.Context, orderID uuid.UUID) (*CheckoutResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, []Registration, error)
}

var (
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderNotPending      = errors.New("order_not_pending")
	ErrOrderNumberExhausted = errors.New("order_number_exhausted")
	ErrPaymentInProgress    = errors.New("payment_in_progress")
)
