package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	GetActiveTaxDefinition(ctx context.Context, db *gorm.DB, organizerID uuid.UUID) (*TaxDefinition, error)
	Create(ctx context.Context, db *gorm.DB, def *TaxDefinition) error
}

// TaxResolver computes the tax owed on an order base amount.
type TaxResolver interface {
	Resolve(ctx context.Context, organizerID uuid.UUID) (*TaxDefinition, error)
	Compute(ctx context.Context, organizerID uuid.UUID, base int64) (Breakdown, error)
}

var (
	ErrInvalidTaxCode = errors.New("invalid_tax_code")
	ErrInvalidTaxMode = errors.New("invalid_tax_mode")
	ErrInvalidTaxRate = errors.New("invalid_tax_rate")
)
