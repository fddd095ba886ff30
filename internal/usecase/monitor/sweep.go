package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"regwatch/internal/domain/entity"
	"regwatch/internal/observability/logging"
	"regwatch/internal/observability/metrics"
	"regwatch/internal/observability/tracing"
)

// errWorkerLost is recorded on jobs recovered from a lost worker. It
// unwraps to context.DeadlineExceeded so the retry policy sees a timeout.
var errWorkerLost = fmt.Errorf("worker lost while job was in progress: %w", context.DeadlineExceeded)

// SweepStats summarizes one sweep.
type SweepStats struct {
	Recovered int // stale in_progress jobs settled
	Promoted  int // retry_scheduled jobs moved back to pending
	Due       int // sources found due
	Created   int // jobs created for due sources
	Enqueued  int // pending jobs handed to workers
}

// Sweep is the periodic scheduling pass: it recovers jobs abandoned by lost
// workers, promotes retries whose delay elapsed, creates jobs for due
// sources and enqueues every pending job. It never blocks on Fetch or
// Classify.
func (o *Orchestrator) Sweep(ctx context.Context) (*SweepStats, error) {
	return o.tracedSweep(ctx, &runStats{})
}

// tracedSweep runs one sweep under a span. Stale jobs the sweep settles are
// recorded in run like any other attempt.
func (o *Orchestrator) tracedSweep(ctx context.Context, run *runStats) (*SweepStats, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "monitor.sweep")
	start := time.Now()
	stats, err := o.sweep(ctx, run)
	if stats != nil {
		span.SetAttributes(
			attribute.Int("sweep.due", stats.Due),
			attribute.Int("sweep.created", stats.Created),
			attribute.Int("sweep.enqueued", stats.Enqueued),
		)
		metrics.RecordSweep(time.Since(start), stats.Due)
	}
	tracing.End(span, err)
	o.refreshGauges(ctx)
	return stats, err
}

func (o *Orchestrator) sweep(ctx context.Context, run *runStats) (*SweepStats, error) {
	now := o.now()
	stats := &SweepStats{}
	var err error

	if stats.Recovered, err = o.recoverStaleJobs(ctx, now, run); err != nil {
		return stats, err
	}
	if stats.Promoted, err = o.promoteRetries(ctx, now); err != nil {
		return stats, err
	}
	if stats.Due, stats.Created, err = o.createDueJobs(ctx, now); err != nil {
		return stats, err
	}
	if stats.Enqueued, err = o.enqueuePending(ctx); err != nil {
		return stats, err
	}

	o.logger.Info("sweep finished",
		slog.Int("recovered", stats.Recovered),
		slog.Int("promoted", stats.Promoted),
		slog.Int("due", stats.Due),
		slog.Int("created", stats.Created),
		slog.Int("enqueued", stats.Enqueued))
	return stats, nil
}

func (o *Orchestrator) recoverStaleJobs(ctx context.Context, now time.Time, run *runStats) (int, error) {
	stale, err := o.deps.Jobs.ListStale(ctx, now.Add(-o.cfg.StaleAfter), o.cfg.BatchSize)
	if err != nil {
		o.storeError("list_stale_jobs", err)
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}
	recovered := 0
	for _, job := range stale {
		if o.isInflight(job.ID) {
			continue
		}
		if o.recoverStale(ctx, job, run) {
			recovered++
		}
	}
	return recovered, nil
}

// promoteRetries moves retry_scheduled jobs whose delay elapsed back to
// pending, bumping their attempt.
func (o *Orchestrator) promoteRetries(ctx context.Context, now time.Time) (int, error) {
	retries, err := o.deps.Jobs.ListDueRetries(ctx, now, o.cfg.BatchSize)
	if err != nil {
		o.storeError("list_due_retries", err)
		return 0, fmt.Errorf("list due retries: %w", err)
	}
	promoted := 0
	for _, job := range retries {
		next := job.Clone()
		if err := next.Requeue(now); err != nil {
			continue
		}
		ok, err := o.deps.Jobs.Update(ctx, next, entity.JobRetryScheduled)
		if err != nil {
			o.storeError("requeue_job", err)
			return promoted, fmt.Errorf("requeue job %s: %w", job.ID, err)
		}
		if ok {
			metrics.RecordJobTransition(entity.JobPending)
			promoted++
		}
	}
	return promoted, nil
}

// createDueJobs creates a pending job for every due source. ListDue already
// leaves out sources with an active job; concurrent sweeps still race on
// CreateIfIdle, and losers create nothing.
func (o *Orchestrator) createDueJobs(ctx context.Context, now time.Time) (due, created int, err error) {
	sources, err := o.deps.Sources.ListDue(ctx, now, o.cfg.BatchSize)
	if err != nil {
		o.storeError("list_due_sources", err)
		return 0, 0, fmt.Errorf("list due sources: %w", err)
	}
	for _, src := range sources {
		ok, err := o.deps.Jobs.CreateIfIdle(ctx, entity.NewJob(o.deps.NewID(), src.ID, now))
		if err != nil {
			o.storeError("create_job", err)
			return len(sources), created, fmt.Errorf("create job for %s: %w", src.ID, err)
		}
		if ok {
			metrics.RecordJobTransition(entity.JobPending)
			created++
		}
	}
	return len(sources), created, nil
}

func (o *Orchestrator) enqueuePending(ctx context.Context) (int, error) {
	pending, err := o.deps.Jobs.ListByStatus(ctx, entity.JobPending, o.cfg.BatchSize)
	if err != nil {
		o.storeError("list_pending_jobs", err)
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}
	enqueued := 0
	for _, job := range pending {
		if o.enqueue(job.ID) {
			enqueued++
		}
	}
	return enqueued, nil
}

// recoverStale settles an in_progress job whose worker disappeared as a
// timed out attempt, so it is retried or failed like any other timeout.
func (o *Orchestrator) recoverStale(ctx context.Context, job *entity.Job, run *runStats) bool {
	logger := logging.WithJob(o.logger, job)
	kind := entity.FailureTransient
	again, delay := o.cfg.Retry.NextAttempt(job.Attempt, kind)
	now := o.now()

	next := job.Clone()
	var err error
	if again {
		err = next.ScheduleRetry(now.Add(delay), errWorkerLost.Error(), now)
	} else {
		err = next.Fail(errWorkerLost.Error(), now)
	}
	if err != nil {
		return false
	}

	ok, err := o.deps.Jobs.Update(ctx, next, entity.JobInProgress)
	if err != nil {
		o.storeError("recover_job", err)
		return false
	}
	if !ok {
		return false
	}
	run.record(next.Status)
	metrics.RecordJobTransition(next.Status)
	if again {
		metrics.RecordRetryScheduled(kind)
	}
	logger.Warn("recovered stale job", slog.String("status", string(next.Status)))
	return true
}

// refreshGauges publishes job, queue and source gauges. Failures only cost
// freshness of the gauges.
func (o *Orchestrator) refreshGauges(ctx context.Context) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	if counts, err := o.deps.Jobs.CountByStatus(ctx); err == nil {
		metrics.UpdateJobCounts(counts)
	}
	if active, err := o.deps.Sources.ListActive(ctx); err == nil {
		metrics.UpdateSourcesActive(len(active))
	}
	metrics.UpdateQueueDepth(o.queueDepth())
}
