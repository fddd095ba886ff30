package metrics

import (
	"time"

	"regwatch/internal/domain/entity"
)

// RecordJobTransition counts a job entering status.
func RecordJobTransition(status entity.JobStatus) {
	JobTransitionsTotal.WithLabelValues(string(status)).Inc()
}

// RecordJobAttempt records how long one attempt took and how it ended.
// Outcome is the status the job moved to.
func RecordJobAttempt(outcome entity.JobStatus, duration time.Duration) {
	JobDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}

// RecordRetryScheduled counts a retry of the given failure kind.
func RecordRetryScheduled(kind entity.FailureKind) {
	RetriesScheduledTotal.WithLabelValues(string(kind)).Inc()
}

// UpdateJobCounts replaces the per-status job gauges. Statuses missing from
// counts are reset to zero.
func UpdateJobCounts(counts map[entity.JobStatus]int) {
	for _, st := range entity.JobStatuses {
		JobsByStatus.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}

// UpdateQueueDepth sets the number of jobs waiting for a worker.
func UpdateQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}

// RecordSweep records one scheduler sweep.
func RecordSweep(duration time.Duration, due int) {
	SweepDuration.Observe(duration.Seconds())
	SourcesDue.Set(float64(due))
}

// UpdateSourcesActive sets the number of active sources.
func UpdateSourcesActive(n int) {
	SourcesActive.Set(float64(n))
}

// RecordFetch records a fetch. size is ignored for failures.
//
// Example:
//
//	start := time.Now()
//	res, err := fetcher.Fetch(ctx, src.URL)
//	metrics.RecordFetch(err == nil, time.Since(start), len(res.Content))
func RecordFetch(success bool, duration time.Duration, size int) {
	result := "success"
	if !success {
		result = "failure"
	}
	FetchDuration.WithLabelValues(result).Observe(duration.Seconds())
	if success {
		FetchSize.Observe(float64(size))
	}
}

// RecordChangeDetected counts a detector verdict.
func RecordChangeDetected(kind entity.ChangeKind) {
	ChangesDetectedTotal.WithLabelValues(string(kind)).Inc()
}

// RecordReconciledChange counts a change record written by reconciliation.
func RecordReconciledChange() {
	ReconciledChangesTotal.Inc()
}

// RecordClassification records one classifier call. Outcome is "ok" or the
// failure kind.
func RecordClassification(provider string, res entity.ClassificationResult, duration time.Duration) {
	outcome := "ok"
	if !res.IsOK() && res.Err != nil {
		outcome = string(res.Err.Kind)
	}
	ClassificationsTotal.WithLabelValues(provider, outcome).Inc()
	ClassificationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordClassificationRetry counts a processed classification task.
// Outcome should be "classified", "requeued" or "gave_up".
func RecordClassificationRetry(outcome string) {
	ClassificationRetriesTotal.WithLabelValues(outcome).Inc()
}

// UpdateClassificationsPending sets the number of queued classification tasks.
func UpdateClassificationsPending(n int) {
	ClassificationsPending.Set(float64(n))
}

// RecordStoreError counts a failed store operation.
// Operation should name the call, e.g. "commit_snapshot" or "create_change".
func RecordStoreError(operation string) {
	StoreErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordDBQuery records the duration of a database query operation.
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
