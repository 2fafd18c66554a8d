package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/eventreg/internal/tax/domain"
	"github.com/smallbiznis/eventreg/internal/tax/repository"
	"github.com/smallbiznis/eventreg/internal/tax/service"
	"github.com/smallbiznis/eventreg/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTax(t *testing.T) {
	rate := decimal.RequireFromString("0.11")

	assert.Equal(t, int64(1100), service.ComputeTaxExclusive(10000, rate))
	assert.Equal(t, int64(991), service.ComputeTaxInclusive(10000, rate))
	assert.Equal(t, int64(0), service.ComputeTaxExclusive(0, rate))
	assert.Equal(t, int64(0), service.ComputeTaxExclusive(10000, decimal.Zero))
}

func TestResolverCompute(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	repo := repository.NewRepository()
	resolver := service.NewResolver(service.ResolverParams{DB: db, Repository: repo})

	organizerID := uuid.New()
	breakdown, err := resolver.Compute(ctx, organizerID, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), breakdown.Tax)
	assert.Nil(t, breakdown.DefinitionID)

	now := time.Now().UTC()
	def := &taxdomain.TaxDefinition{
		ID:          uuid.New(),
		OrganizerID: organizerID,
		Name:        "VAT",
		Code:        "VAT_STANDARD",
		TaxMode:     taxdomain.TaxModeExclusive,
		Rate:        decimal.RequireFromString("0.2"),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, def.Validate())
	require.NoError(t, repo.Create(ctx, db, def))

	breakdown, err = resolver.Compute(ctx, organizerID, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), breakdown.Tax)
	assert.Equal(t, int64(0), breakdown.Included)
	require.NotNil(t, breakdown.DefinitionID)
	assert.Equal(t, def.ID, *breakdown.DefinitionID)
}

func TestTaxDefinitionValidate(t *testing.T) {
	def := taxdomain.TaxDefinition{Code: "X", TaxMode: "gross", Rate: decimal.Zero}
	assert.ErrorIs(t, def.Validate(), taxdomain.ErrInvalidTaxMode)

	def.TaxMode = taxdomain.TaxModeInclusive
	def.Rate = decimal.NewFromInt(-1)
	assert.ErrorIs(t, def.Validate(), taxdomain.ErrInvalidTaxRate)

	def.Code = ""
	assert.ErrorIs(t, def.Validate(), taxdomain.ErrInvalidTaxCode)
}
