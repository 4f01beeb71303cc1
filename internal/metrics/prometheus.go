// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the choreboard ledger.
var (
	// Counters.
	TaskTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_transitions_total",
			Help: "Total number of task status transitions",
		},
		[]string{"type", "event", "status"},
	)

	PointsMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_mutations_total",
			Help: "Total number of point balance mutations",
		},
		[]string{"operation", "persisted"},
	)

	PointsMovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_moved_total",
			Help: "Total points added or subtracted across all balances",
		},
		[]string{"operation"},
	)

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_purchases_total",
			Help: "Total reward purchases by resulting status",
		},
		[]string{"status"},
	)

	PurchaseRefundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_purchase_refunds_total",
			Help: "Total compensating refunds after failed purchase writes",
		},
	)

	FeedEventsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_applied_total",
			Help: "Total change-feed events applied to in-memory collections",
		},
		[]string{"table", "type"},
	)

	FeedDuplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_duplicates_total",
			Help: "Total duplicate change-feed deliveries absorbed by upsert",
		},
		[]string{"table"},
	)

	// Gauges.
	OpenTasksCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "open_tasks_count",
			Help: "Current number of non-terminal tasks",
		},
		[]string{"type"},
	)

	SweepLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sweep_last_run_timestamp",
			Help: "Unix timestamp of the last overdue sweep",
		},
	)

	// Histograms.
	SweepDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Time taken to execute the overdue sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	SweepJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_jobs_run_total",
			Help: "Total overdue sweep executions",
		},
		[]string{"status"},
	)

	OverduePenaltiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overdue_penalties_total",
			Help: "Total penalties applied by the overdue sweep",
		},
	)
)

// RecordTaskTransition records a task status transition.
func RecordTaskTransition(taskType, event, status string) {
	TaskTransitionsTotal.WithLabelValues(taskType, event, status).Inc()
}

// RecordPointsMutation records one accumulator application.
func RecordPointsMutation(operation string, persisted bool, amount int) {
	p := "false"
	if persisted {
		p = "true"
	}
	PointsMutationsTotal.WithLabelValues(operation, p).Inc()
	if amount < 0 {
		amount = -amount
	}
	PointsMovedTotal.WithLabelValues(operation).Add(float64(amount))
}

// RecordPurchase records a purchase by resulting status.
func RecordPurchase(status string) {
	PurchasesTotal.WithLabelValues(status).Inc()
}

// RecordPurchaseRefund records a compensating refund.
func RecordPurchaseRefund() {
	PurchaseRefundsTotal.Inc()
}

// RecordFeedEvent records an applied change-feed event.
func RecordFeedEvent(table, eventType string) {
	FeedEventsAppliedTotal.WithLabelValues(table, eventType).Inc()
}

// RecordFeedDuplicate records a duplicate delivery absorbed by upsert.
func RecordFeedDuplicate(table string) {
	FeedDuplicatesTotal.WithLabelValues(table).Inc()
}

// SetOpenTasks sets the current number of open tasks of a type.
func SetOpenTasks(taskType string, count int) {
	OpenTasksCount.WithLabelValues(taskType).Set(float64(count))
}

// RecordSweepRun records an overdue sweep execution outcome.
func RecordSweepRun(status string) {
	SweepJobsRunTotal.WithLabelValues(status).Inc()
}

// ObserveSweepDuration records the overdue sweep duration in seconds.
func ObserveSweepDuration(seconds float64) {
	SweepDurationSeconds.Observe(seconds)
}

// SetSweepLastRun updates the last sweep run timestamp to now.
func SetSweepLastRun() {
	SweepLastRunTimestamp.Set(float64(time.Now().Unix()))
}

// RecordOverduePenalty records one penalty applied by the sweep.
func RecordOverduePenalty() {
	OverduePenaltiesTotal.Inc()
}
