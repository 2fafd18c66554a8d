package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	commissiondomain "github.com/smallbiznis/eventreg/internal/commission/domain"
	"github.com/smallbiznis/eventreg/internal/commission/repository"
	"github.com/smallbiznis/eventreg/internal/commission/service"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	base            = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	platformDefault = config.CommissionPolicy{Type: "percentage", Value: "5"}
)

func newResolver(t *testing.T) (commissiondomain.Resolver, *gorm.DB) {
	db := testdb.Open(t)
	return service.NewResolver(service.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: repository.Provide(),
	}), db
}

func seedCommission(t *testing.T, db *gorm.DB, eventID *uuid.UUID, value int64, createdAt time.Time, tiers ...uuid.UUID) commissiondomain.Commission {
	t.Helper()
	row := commissiondomain.Commission{
		ID:            uuid.New(),
		EventID:       eventID,
		Type:          commissiondomain.CommissionTypePercentage,
		Value:         decimal.NewFromInt(value),
		TicketTypeIDs: tiers,
		IsActive:      true,
		CreatedAt:     createdAt,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestResolveFallsBackToConfiguredDefault(t *testing.T) {
	resolver, _ := newResolver(t)

	res, err := resolver.Resolve(context.Background(), uuid.New(), uuid.New(), platformDefault)
	require.NoError(t, err)
	assert.Equal(t, commissiondomain.SourceConfig, res.Source)
	assert.Nil(t, res.CommissionID)
	assert.True(t, res.Value.Equal(decimal.NewFromInt(5)))
}

func TestResolveRejectsUnknownDefaultType(t *testing.T) {
	resolver, _ := newResolver(t)

	_, err := resolver.Resolve(context.Background(), uuid.New(), uuid.New(), config.CommissionPolicy{Type: "tiered", Value: "1"})
	assert.ErrorIs(t, err, commissiondomain.ErrInvalidPolicy)
}

func TestResolvePrefersExplicitEventOverride(t *testing.T) {
	resolver, db := newResolver(t)
	eventID := uuid.New()
	vip := uuid.New()
	general := uuid.New()

	seedCommission(t, db, nil, 9, base)
	blanket := seedCommission(t, db, &eventID, 4, base)
	explicit := seedCommission(t, db, &eventID, 2, base.Add(time.Hour), vip)

	res, err := resolver.Resolve(context.Background(), eventID, vip, platformDefault)
	require.NoError(t, err)
	assert.Equal(t, commissiondomain.SourceEvent, res.Source)
	assert.Equal(t, explicit.ID, *res.CommissionID)

	res, err = resolver.Resolve(context.Background(), eventID, general, platformDefault)
	require.NoError(t, err)
	assert.Equal(t, blanket.ID, *res.CommissionID)
}

func TestResolveEarliestCreatedWinsTie(t *testing.T) {
	resolver, db := newResolver(t)
	eventID := uuid.New()
	tier := uuid.New()

	seedCommission(t, db, &eventID, 3, base.Add(2*time.Hour), tier)
	first := seedCommission(t, db, &eventID, 7, base, tier)

	res, err := resolver.Resolve(context.Background(), eventID, tier, platformDefault)
	require.NoError(t, err)
	assert.Equal(t, first.ID, *res.CommissionID)
}

func TestResolveIgnoresOtherEventsAndInactiveRows(t *testing.T) {
	resolver, db := newResolver(t)
	eventID := uuid.New()
	other := uuid.New()
	tier := uuid.New()

	seedCommission(t, db, &other, 1, base)
	inactive := seedCommission(t, db, &eventID, 1, base)
	require.NoError(t, db.Model(&commissiondomain.Commission{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)
	platform := seedCommission(t, db, nil, 8, base)

	res, err := resolver.Resolve(context.Background(), eventID, tier, platformDefault)
	require.NoError(t, err)
	assert.Equal(t, commissiondomain.SourcePlatform, res.Source)
	assert.Equal(t, platform.ID, *res.CommissionID)
}
