package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/config"
	"gorm.io/gorm"
)

type Repository interface {
	// ListActive returns active rows for the event plus platform-wide rows,
	// ordered by created_at then id.
	ListActive(ctx context.Context, db *gorm.DB, eventID uuid.UUID) ([]Commission, error)
}

type Resolver interface {
	Resolve(ctx context.Context, eventID uuid.UUID, ticketTypeID uuid.UUID, platformDefault config.CommissionPolicy) (Resolution, error)
}

var ErrInvalidPolicy = errors.New("invalid_commission_policy")
