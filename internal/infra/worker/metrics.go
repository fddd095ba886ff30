package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"regwatch/internal/pkg/config"
	"regwatch/internal/usecase/monitor"
)

// WorkerMetrics tracks scheduled runs of the daemon. Registration uses the
// default registry, so create it once per process.
type WorkerMetrics struct {
	*config.ConfigMetrics

	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds *prometheus.HistogramVec
	JobsCreatedTotal   prometheus.Counter
	LastSuccess        *prometheus.GaugeVec
}

func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_runs_total",
			Help: "Total number of scheduled runs by task (sweep/classify/reconcile) and status",
		}, []string{"task", "status"}),

		RunDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_cron_job_duration_seconds",
			Help:    "Duration of scheduled runs in seconds",
			Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900, 1800},
		}, []string{"task"}),

		JobsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_sweep_jobs_created_total",
			Help: "Total number of jobs created by scheduled sweeps",
		}),

		LastSuccess: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful scheduled run",
		}, []string{"task"}),
	}
}

// RecordRun records one scheduled run of task.
func (m *WorkerMetrics) RecordRun(task string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.RunsTotal.WithLabelValues(task, status).Inc()
	m.RunDurationSeconds.WithLabelValues(task).Observe(duration.Seconds())
	if err == nil {
		m.LastSuccess.WithLabelValues(task).SetToCurrentTime()
	}
}

func (m *WorkerMetrics) RecordSweep(stats *monitor.SweepStats) {
	if stats != nil {
		m.JobsCreatedTotal.Add(float64(stats.Created))
	}
}
