// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job metrics track the fetch job lifecycle.
var (
	// JobTransitionsTotal counts jobs entering each status
	JobTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_job_transitions_total",
			Help: "Total number of job status transitions by target status",
		},
		[]string{"status"},
	)

	// JobsByStatus mirrors the job table grouped by status
	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "monitor_jobs",
			Help: "Number of jobs currently in each status",
		},
		[]string{"status"},
	)

	// JobDuration measures time from claim to terminal or retry state
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_job_duration_seconds",
			Help:    "Time taken to execute one job attempt",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"outcome"},
	)

	// RetriesScheduledTotal counts retries by failure kind
	RetriesScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_retries_scheduled_total",
			Help: "Total number of job retries scheduled",
		},
		[]string{"kind"},
	)

	// QueueDepth tracks jobs waiting for a worker
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_queue_depth",
			Help: "Number of pending jobs queued for workers",
		},
	)

	// SweepDuration measures one scheduler sweep
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_sweep_duration_seconds",
			Help:    "Time taken by a scheduler sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

// Source metrics track the registry.
var (
	// SourcesActive tracks active sources
	SourcesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_sources_active",
			Help: "Number of active sources in the registry",
		},
	)

	// SourcesDue tracks sources found due at the last sweep
	SourcesDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_sources_due",
			Help: "Number of sources due at the last sweep",
		},
	)
)

// Fetch and detection metrics.
var (
	// FetchDuration measures source fetch time by result
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_fetch_duration_seconds",
			Help:    "Time taken to fetch a source",
			Buckets: []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8, 25.6},
		},
		[]string{"result"},
	)

	// FetchSize measures normalized content size in bytes
	FetchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "monitor_fetch_size_bytes",
			Help: "Size of fetched content in bytes",
			Buckets: []float64{
				100, 400, 1600, 6400, 25600, 102400, 409600,
				1638400, 6553600, 10485760,
			},
		},
	)

	// ChangesDetectedTotal counts detector verdicts
	ChangesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_changes_detected_total",
			Help: "Total number of detector verdicts by kind",
		},
		[]string{"kind"},
	)

	// ReconciledChangesTotal counts change records recreated by reconciliation
	ReconciledChangesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_reconciled_changes_total",
			Help: "Total number of change records written by reconciliation",
		},
	)
)

// Classification metrics.
var (
	// ClassificationsTotal counts classification calls by outcome
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_classifications_total",
			Help: "Total number of classification attempts",
		},
		[]string{"provider", "outcome"},
	)

	// ClassificationDuration measures classifier latency
	ClassificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_classification_duration_seconds",
			Help:    "Time taken to classify a change",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"provider"},
	)

	// ClassificationRetriesTotal counts queued retry outcomes
	ClassificationRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_classification_retries_total",
			Help: "Total number of processed classification retries by outcome",
		},
		[]string{"outcome"},
	)

	// ClassificationsPending tracks queued classification tasks
	ClassificationsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_classifications_pending",
			Help: "Number of changes waiting for classification",
		},
	)
)

// Store metrics.
var (
	// StoreErrorsTotal counts failed store operations by operation
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_store_errors_total",
			Help: "Total number of store operation failures",
		},
		[]string{"operation"},
	)

	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
