package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	commissiondomain "github.com/smallbiznis/eventreg/internal/commission/domain"
	"github.com/smallbiznis/eventreg/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo commissiondomain.Repository
}

type Resolver struct {
	db   *gorm.DB
	log  *zap.Logger
	repo commissiondomain.Repository
}

func NewResolver(p Params) commissiondomain.Resolver {
	return &Resolver{
		db:   p.DB,
		log:  p.Log.Named("commission.resolver"),
		repo: p.Repo,
	}
}

// Resolve picks the commission for one ticket type. Event overrides beat
// platform rows, explicit ticket-type overrides beat blanket ones, and the
// earliest created row wins a tie. With no row the configured default applies.
func (r *Resolver) Resolve(ctx context.Context, eventID uuid.UUID, ticketTypeID uuid.UUID, platformDefault config.CommissionPolicy) (commissiondomain.Resolution, error) {
	rows, err := r.repo.ListActive(ctx, r.db, eventID)
	if err != nil {
		return commissiondomain.Resolution{}, err
	}

	if best := pick(rows, ticketTypeID, true); best != nil {
		return fromRow(*best, commissiondomain.SourceEvent), nil
	}
	if best := pick(rows, ticketTypeID, false); best != nil {
		return fromRow(*best, commissiondomain.SourcePlatform), nil
	}

	switch commissiondomain.CommissionType(platformDefault.Type) {
	case commissiondomain.CommissionTypePercentage, commissiondomain.CommissionTypeFixed:
	default:
		return commissiondomain.Resolution{}, fmt.Errorf("%w: type %q", commissiondomain.ErrInvalidPolicy, platformDefault.Type)
	}
	return commissiondomain.Resolution{
		Source: commissiondomain.SourceConfig,
		Type:   commissiondomain.CommissionType(platformDefault.Type),
		Value:  platformDefault.Decimal(),
	}, nil
}

// pick expects rows ordered by created_at then id.
func pick(rows []commissiondomain.Commission, ticketTypeID uuid.UUID, eventScoped bool) *commissiondomain.Commission {
	var blanket *commissiondomain.Commission
	for i := range rows {
		row := &rows[i]
		if (row.EventID != nil) != eventScoped {
			continue
		}
		covers, explicit := row.Covers(ticketTypeID)
		if !covers {
			continue
		}
		if explicit {
			return row
		}
		if blanket == nil {
			blanket = row
		}
	}
	return blanket
}

func fromRow(row commissiondomain.Commission, source commissiondomain.ResolutionSource) commissiondomain.Resolution {
	id := row.ID
	return commissiondomain.Resolution{
		Source:       source,
		CommissionID: &id,
		Type:         row.Type,
		Value:        row.Value,
	}
}
