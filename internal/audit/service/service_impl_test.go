package service_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/audit/repository"
	"github.com/smallbiznis/eventreg/internal/audit/service"
	"github.com/smallbiznis/eventreg/internal/clock"
	obscontext "github.com/smallbiznis/eventreg/internal/observability/context"
	"github.com/smallbiznis/eventreg/internal/testutil/fixtures"
	"github.com/smallbiznis/eventreg/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAudit(t *testing.T) auditdomain.Service {
	t.Helper()
	db := testdb.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return service.NewService(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(fixtures.Now),
	})
}

func TestRecordTakesActorFromContext(t *testing.T) {
	svc := newAudit(t)
	organizerID := uuid.New()
	orderID := uuid.NewString()

	ctx := obscontext.WithActor(context.Background(), "admin", "7")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	require.NoError(t, svc.Record(ctx, nil, auditdomain.Entry{
		OrganizerID: &organizerID,
		Action:      "order.paid",
		TargetType:  "order",
		TargetID:    &orderID,
		Metadata:    map[string]any{"reason": "bank transfer", "": "dropped"},
	}))

	logs, err := svc.List(context.Background(), auditdomain.ListFilter{OrganizerID: &organizerID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	entry := logs[0]
	assert.Equal(t, "admin", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "7", *entry.ActorID)
	assert.Equal(t, "order.paid", entry.Action)
	assert.Equal(t, "bank transfer", entry.Metadata["reason"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.NotContains(t, entry.Metadata, "")
	assert.True(t, entry.CreatedAt.Equal(fixtures.Now))
}

func TestRecordDefaults(t *testing.T) {
	svc := newAudit(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Record(ctx, nil, auditdomain.Entry{Action: "  "}), auditdomain.ErrInvalidAction)

	blank := "  "
	require.NoError(t, svc.AuditLog(ctx, nil, "", &blank, "payment.duplicate", "", nil, nil))

	logs, err := svc.List(ctx, auditdomain.ListFilter{Action: "payment.duplicate"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), logs[0].ActorType)
	assert.Nil(t, logs[0].ActorID)
	assert.Equal(t, "unknown", logs[0].TargetType)
}
