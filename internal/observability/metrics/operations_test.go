package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/eventreg/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "forbidden", err: authorization.ErrForbidden, want: JobReasonForbidden},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestOrderTransitionCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newOperationsMetrics(registry, Config{ServiceName: "eventreg", Environment: "test"})

	m.IncOrderTransition("pending", "paid", "webhook")
	m.IncOrderTransition("pending", "paid", "webhook")
	m.IncReviewItem("amount_mismatch")

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("pending", "paid", "webhook")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.reviewItems.WithLabelValues("amount_mismatch")); got != 1 {
		t.Fatalf("expected 1 review item, got %v", got)
	}
}

func TestAddBatchProcessedIgnoresEmptyBatches(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newOperationsMetrics(registry, Config{})

	m.AddBatchProcessed("expire_orders", 0)
	m.AddBatchProcessed("expire_orders", 3)

	if got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("expire_orders")); got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}
