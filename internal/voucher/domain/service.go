package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, organizerID uuid.UUID, code string) (*Voucher, error)
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Voucher, error)
	// IncrementUses bumps current_uses only while it is below max_uses and
	// reports whether the row was updated.
	IncrementUses(ctx context.Context, db *gorm.DB, id uuid.UUID) (bool, error)
}

type Service interface {
	Lookup(ctx context.Context, organizerID uuid.UUID, code string) (*Voucher, error)
	// Consume must be called with the transaction that marks the order paid.
	Consume(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

var (
	ErrVoucherNotFound  = errors.New("voucher_not_found")
	ErrVoucherExhausted = errors.New("voucher_exhausted")
)
