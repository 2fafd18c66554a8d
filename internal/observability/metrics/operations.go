package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/eventreg/internal/authorization"
	"github.com/smallbiznis/eventreg/pkg/db"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonForbidden            = "forbidden"
	JobReasonUnknown              = "unknown"
)

const (
	LockResourceOrdersForExpiry = "orders_for_expiry"
	LockResourceOrdersForPoll   = "orders_for_poll"
	LockResourceOrderByID       = "order_by_id"
	LockResourceTicketCapacity  = "ticket_capacity"
)

// OperationsMetrics captures settlement and scheduler health signals.
type OperationsMetrics struct {
	transitions      *prometheus.CounterVec
	reviewItems      *prometheus.CounterVec
	duplicates       *prometheus.CounterVec
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	batchProcessed   *prometheus.CounterVec
	runLoopLag       prometheus.Observer
	dbLockWait       *prometheus.HistogramVec
	lockWaitObserver map[string]prometheus.Observer
}

var (
	operationsMetricsOnce sync.Once
	operationsMetrics     *OperationsMetrics
)

// Operations returns the singleton registry.
func Operations() *OperationsMetrics {
	return OperationsWithConfig(Config{})
}

func OperationsWithConfig(cfg Config) *OperationsMetrics {
	operationsMetricsOnce.Do(func() {
		operationsMetrics = newOperationsMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return operationsMetrics
}

// ResetOperationsMetricsForTest resets the singleton for tests.
func ResetOperationsMetricsForTest() {
	operationsMetricsOnce = sync.Once{}
	operationsMetrics = nil
}

func newOperationsMetrics(registerer prometheus.Registerer, cfg Config) *OperationsMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "eventreg"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "eventreg_order_transitions_total",
		Help:        "Order state transitions by source.",
		ConstLabels: constLabels,
	}, []string{"from", "to", "source"})
	reviewItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "eventreg_settlement_review_items_total",
		Help:        "Settlement items queued for operator review.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "eventreg_payment_callbacks_duplicate_total",
		Help:        "Provider callbacks that arrived for an already-terminal order or an already-processed event.",
		ConstLabels: constLabels,
	}, []string{"provider"})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "eventreg_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "eventreg_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "eventreg_scheduler_job_timeouts_total",
		Help:        "Scheduler job timeouts.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "eventreg_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "eventreg_scheduler_batch_processed_total",
		Help:        "Items processed by scheduler jobs.",
		ConstLabels: constLabels,
	}, []string{"job"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "eventreg_scheduler_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "eventreg_db_lock_wait_seconds",
		Help:        "Row lock wait time for SELECT FOR UPDATE.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(
		transitions,
		reviewItems,
		duplicates,
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		runLoopLag,
		dbLockWait,
	)

	lockWaitObserver := map[string]prometheus.Observer{}
	for _, resource := range []string{
		LockResourceOrdersForExpiry,
		LockResourceOrdersForPoll,
		LockResourceOrderByID,
		LockResourceTicketCapacity,
	} {
		lockWaitObserver[resource] = dbLockWait.WithLabelValues(resource)
	}

	return &OperationsMetrics{
		transitions:      transitions,
		reviewItems:      reviewItems,
		duplicates:       duplicates,
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		batchProcessed:   batchProcessed,
		runLoopLag:       runLoopLag,
		dbLockWait:       dbLockWait,
		lockWaitObserver: lockWaitObserver,
	}
}

func (m *OperationsMetrics) IncOrderTransition(from, to, source string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, source).Inc()
}

func (m *OperationsMetrics) IncReviewItem(reason string) {
	if m == nil {
		return
	}
	m.reviewItems.WithLabelValues(reason).Inc()
}

func (m *OperationsMetrics) IncDuplicateCallback(provider string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(provider).Inc()
}

func (m *OperationsMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *OperationsMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *OperationsMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *OperationsMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *OperationsMetrics) AddBatchProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job).Add(float64(count))
}

func (m *OperationsMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// ObserveDBLockWait records lock wait time for SELECT FOR UPDATE work.
func (m *OperationsMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	case errors.Is(err, authorization.ErrForbidden):
		return JobReasonForbidden
	case db.IsLockTimeout(err):
		return JobReasonDBLockTimeout
	case db.IsSerializationFailure(err):
		return JobReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), db.IsDuplicateKeyErr(err):
		return JobReasonUniqueViolation
	default:
		return JobReasonUnknown
	}
}
