package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/eventreg/internal/tax/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type ResolverParams struct {
	fx.In

	DB         *gorm.DB
	Repository taxdomain.Repository
}

type resolver struct {
	db   *gorm.DB
	repo taxdomain.Repository
}

func NewResolver(p ResolverParams) taxdomain.TaxResolver {
	return &resolver{db: p.DB, repo: p.Repository}
}

func (r *resolver) Resolve(ctx context.Context, organizerID uuid.UUID) (*taxdomain.TaxDefinition, error) {
	def, err := r.repo.GetActiveTaxDefinition(ctx, r.db, organizerID)
	if err != nil {
		return nil, err
	}
	if def == nil || !def.Rate.IsPositive() {
		return nil, nil
	}
	return def, nil
}

func (r *resolver) Compute(ctx context.Context, organizerID uuid.UUID, base int64) (taxdomain.Breakdown, error) {
	def, err := r.Resolve(ctx, organizerID)
	if err != nil {
		return taxdomain.Breakdown{}, err
	}
	return Breakdown(def, base), nil
}

// Breakdown applies def to base. A nil definition yields zero tax.
func Breakdown(def *taxdomain.TaxDefinition, base int64) taxdomain.Breakdown {
	if def == nil {
		return taxdomain.Breakdown{Rate: decimal.Zero}
	}
	id := def.ID
	out := taxdomain.Breakdown{DefinitionID: &id, Mode: def.TaxMode, Rate: def.Rate}
	switch def.TaxMode {
	case taxdomain.TaxModeInclusive:
		out.Included = ComputeTaxInclusive(base, def.Rate)
	default:
		out.Tax = ComputeTaxExclusive(base, def.Rate)
	}
	return out
}

// ComputeTaxExclusive calculates tax added on top of base.
// Rounding happens only here to keep stored values integer-safe.
func ComputeTaxExclusive(base int64, rate decimal.Decimal) int64 {
	if base <= 0 || !rate.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(base).Mul(rate).Round(0).IntPart()
}

// ComputeTaxInclusive calculates the tax portion already included in base.
func ComputeTaxInclusive(base int64, rate decimal.Decimal) int64 {
	if base <= 0 || !rate.IsPositive() {
		return 0
	}
	portion := rate.Div(decimal.NewFromInt(1).Add(rate))
	return decimal.NewFromInt(base).Mul(portion).Round(0).IntPart()
}
