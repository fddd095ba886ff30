package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"regwatch/internal/domain/entity"
	"regwatch/internal/observability/metrics"
)

// ErrJobNotFound is returned by Cancel for an unknown job id.
var ErrJobNotFound = fmt.Errorf("job %w", entity.ErrNotFound)

// runStats counts attempt outcomes. All fields are safe for concurrent use.
type runStats struct {
	completed      atomic.Int64
	failed         atomic.Int64
	cancelled      atomic.Int64
	retryScheduled atomic.Int64
	skipped        atomic.Int64
	changes        atomic.Int64
	unchanged      atomic.Int64
	classified     atomic.Int64
	classifyQueued atomic.Int64
	classifyGaveUp atomic.Int64
}

func (s *runStats) record(status entity.JobStatus) {
	switch status {
	case entity.JobCompleted:
		s.completed.Add(1)
	case entity.JobFailed:
		s.failed.Add(1)
	case entity.JobCancelled:
		s.cancelled.Add(1)
	case entity.JobRetryScheduled:
		s.retryScheduled.Add(1)
	}
}

func (s *runStats) settled() int64 {
	return s.completed.Load() + s.failed.Load() + s.cancelled.Load() + s.retryScheduled.Load()
}

// RunOptions tunes RunOnce.
type RunOptions struct {
	// Drain keeps the run going while scheduled retries are due within
	// MaxWait, so jobs reach completed or failed before RunOnce returns.
	Drain   bool
	MaxWait time.Duration
}

// RunReport summarizes a RunOnce call. Job counters count attempts by the
// state they settled in, so one job retried twice and then completed adds
// two to RetryScheduled and one to Completed.
type RunReport struct {
	Due            int
	Created        int
	Completed      int
	Failed         int
	Cancelled      int
	RetryScheduled int
	Skipped        int

	Changes   int
	Unchanged int

	Classified            int
	ClassificationsQueued int
	ClassificationsGaveUp int
	Reconciled            int

	StoreErrors int64
	Duration    time.Duration
}

// RunOnce performs one complete pass without the background worker pool:
// reconcile, sweep, process every enqueued job, then retry due
// classifications. It fails with ErrAlreadyRunning while Start is active.
func (o *Orchestrator) RunOnce(ctx context.Context, opts RunOptions) (*RunReport, error) {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	if running {
		return nil, ErrAlreadyRunning
	}

	start := time.Now()
	storeBefore := o.storeErrors.Load()
	stats := &runStats{}
	report := &RunReport{}
	finish := func(err error) (*RunReport, error) {
		report.Completed = int(stats.completed.Load())
		report.Failed = int(stats.failed.Load())
		report.Cancelled = int(stats.cancelled.Load())
		report.RetryScheduled = int(stats.retryScheduled.Load())
		report.Skipped = int(stats.skipped.Load())
		report.Changes = int(stats.changes.Load())
		report.Unchanged = int(stats.unchanged.Load())
		report.Classified = int(stats.classified.Load())
		report.ClassificationsQueued = int(stats.classifyQueued.Load())
		report.ClassificationsGaveUp = int(stats.classifyGaveUp.Load())
		report.StoreErrors = o.storeErrors.Load() - storeBefore
		report.Duration = time.Since(start)
		return report, err
	}

	rec, err := o.Reconcile(ctx)
	if err != nil {
		return finish(err)
	}
	report.Reconciled = rec.Recorded

	sw, err := o.tracedSweep(ctx, stats)
	if err != nil {
		return finish(err)
	}
	report.Due, report.Created = sw.Due, sw.Created

	idle := 0
	for {
		before := stats.settled()
		if err := o.drainQueue(ctx, stats); err != nil {
			return finish(err)
		}
		if stats.settled() == before {
			idle++
		} else {
			idle = 0
		}

		// Sources are swept once per run; later rounds only pick up
		// promoted retries and jobs that did not fit in the queue.
		if _, err := o.promoteRetries(ctx, o.now()); err != nil {
			return finish(err)
		}
		enqueued, err := o.enqueuePending(ctx)
		if err != nil {
			return finish(err)
		}
		// Two rounds without progress means the queued jobs cannot be
		// claimed, typically because the store keeps failing.
		if enqueued > 0 && idle < 2 {
			continue
		}

		if !opts.Drain {
			break
		}
		wait, ok, err := o.nextRetryWait(ctx)
		if err != nil {
			return finish(err)
		}
		if !ok || (opts.MaxWait > 0 && wait > opts.MaxWait) {
			break
		}
		o.logger.Debug("waiting for scheduled retries", slog.Duration("wait", wait))
		if err := o.deps.Sleep(ctx, wait); err != nil {
			return finish(err)
		}
	}

	if _, err := o.processClassificationRetries(ctx, stats); err != nil {
		return finish(err)
	}
	o.refreshGauges(ctx)
	return finish(nil)
}

// drainQueue processes everything currently queued with up to cfg.Workers
// concurrent jobs and returns once all of them settled.
func (o *Orchestrator) drainQueue(ctx context.Context, stats *runStats) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for {
		select {
		case jobID := <-o.queue:
			o.dequeued(jobID)
			g.Go(func() error {
				o.processJob(gctx, jobID, stats)
				return nil
			})
		default:
			if err := g.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
}

// nextRetryWait returns how long until the earliest retry_scheduled job is due.
func (o *Orchestrator) nextRetryWait(ctx context.Context) (time.Duration, bool, error) {
	jobs, err := o.deps.Jobs.ListByStatus(ctx, entity.JobRetryScheduled, o.cfg.BatchSize)
	if err != nil {
		o.storeError("list_retry_jobs", err)
		return 0, false, fmt.Errorf("list retry jobs: %w", err)
	}
	var earliest *time.Time
	for _, job := range jobs {
		if job.NextAttemptAt == nil {
			continue
		}
		if earliest == nil || job.NextAttemptAt.Before(*earliest) {
			t := *job.NextAttemptAt
			earliest = &t
		}
	}
	if earliest == nil {
		return 0, false, nil
	}
	wait := earliest.Sub(o.now())
	if wait < 0 {
		wait = 0
	}
	return wait, true, nil
}

// Cancel moves a non-terminal job to cancelled. A job running in this
// process has its context cancelled; the worker then leaves it alone.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (*entity.Job, error) {
	for range 3 {
		job, err := o.deps.Jobs.Get(ctx, jobID)
		if err != nil {
			o.storeError("get_job", err)
			return nil, fmt.Errorf("cancel job: %w", err)
		}
		if job == nil {
			return nil, ErrJobNotFound
		}
		if !job.CanCancel() {
			return job, fmt.Errorf("cancel job %s: %w: job is %s", jobID, entity.ErrInvalidTransition, job.Status)
		}

		next := job.Clone()
		if err := next.Cancel(o.now()); err != nil {
			return job, err
		}
		ok, err := o.deps.Jobs.Update(ctx, next, job.Status)
		if err != nil {
			o.storeError("cancel_job", err)
			return nil, fmt.Errorf("cancel job: %w", err)
		}
		if !ok {
			continue
		}

		metrics.RecordJobTransition(entity.JobCancelled)
		interrupted := job.Status == entity.JobInProgress && o.interrupt(jobID)
		o.logger.Info("job cancelled",
			slog.String("job_id", jobID),
			slog.String("from", string(job.Status)),
			slog.Bool("interrupted", interrupted))
		return next, nil
	}
	return nil, fmt.Errorf("cancel job %s: status kept changing", jobID)
}

// StatusReport is the operator view of the pipeline. Everything but
// StoreErrors is read from the store; StoreErrors counts the store failures
// this process has seen since it started.
type StatusReport struct {
	Jobs                map[entity.JobStatus]int                `json:"jobs"`
	Classifications     map[entity.ClassificationTaskStatus]int `json:"classifications"`
	UnrecordedSnapshots int                                     `json:"unrecorded_snapshots"`
	ActiveSources       int                                     `json:"active_sources"`
	QueueDepth          int                                     `json:"queue_depth"`
	StoreErrors         int64                                   `json:"store_errors"`
}

// Status counts jobs per state, classification tasks per state and
// snapshots waiting for reconciliation.
func (o *Orchestrator) Status(ctx context.Context) (*StatusReport, error) {
	jobs, err := o.deps.Jobs.CountByStatus(ctx)
	if err != nil {
		o.storeError("count_jobs", err)
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	for _, st := range entity.JobStatuses {
		if _, ok := jobs[st]; !ok {
			jobs[st] = 0
		}
	}
	tasks, err := o.deps.Queue.CountByStatus(ctx)
	if err != nil {
		o.storeError("count_classifications", err)
		return nil, fmt.Errorf("count classification tasks: %w", err)
	}
	unrecorded, err := o.deps.Snapshots.ListUnrecorded(ctx, o.cfg.BatchSize)
	if err != nil {
		o.storeError("list_unrecorded", err)
		return nil, fmt.Errorf("list unrecorded snapshots: %w", err)
	}
	active, err := o.deps.Sources.ListActive(ctx)
	if err != nil {
		o.storeError("list_sources", err)
		return nil, fmt.Errorf("list active sources: %w", err)
	}

	return &StatusReport{
		Jobs:                jobs,
		Classifications:     tasks,
		UnrecordedSnapshots: len(unrecorded),
		ActiveSources:       len(active),
		QueueDepth:          o.queueDepth(),
		StoreErrors:         o.storeErrors.Load(),
	}, nil
}

// ReconcileReport summarizes a reconciliation pass.
type ReconcileReport struct {
	Unrecorded int
	Recorded   int
}

// Reconcile writes the ChangeRecord missing for any committed snapshot and
// queues it for classification. Records are keyed by snapshot, so racing a
// worker that writes the same record is harmless.
func (o *Orchestrator) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	snaps, err := o.deps.Snapshots.ListUnrecorded(ctx, o.cfg.BatchSize)
	if err != nil {
		o.storeError("list_unrecorded", err)
		return nil, fmt.Errorf("list unrecorded snapshots: %w", err)
	}
	report := &ReconcileReport{Unrecorded: len(snaps)}
	now := o.now()

	for _, snap := range snaps {
		var prevSize int64
		if snap.PreviousFingerprint != nil {
			prevSize, err = o.deps.Snapshots.Size(ctx, snap.SourceID, *snap.PreviousFingerprint)
			if err != nil {
				o.storeError("snapshot_size", err)
				return report, fmt.Errorf("previous size for %s: %w", snap.ID, err)
			}
		}

		rec := entity.NewChangeRecord(o.deps.NewID(), snap, prevSize, snap.CapturedAt)
		created, err := o.deps.Changes.Create(ctx, rec)
		if err != nil {
			o.storeError("create_change", err)
			return report, fmt.Errorf("create change for %s: %w", snap.ID, err)
		}
		if !created {
			continue
		}
		task := entity.NewClassificationTask(rec, 0, "change record regenerated", now, now)
		if err := o.deps.Queue.Enqueue(ctx, task); err != nil {
			o.storeError("enqueue_classification", err)
			return report, fmt.Errorf("queue classification for %s: %w", rec.ID, err)
		}
		metrics.RecordReconciledChange()
		report.Recorded++
		o.logger.Warn("regenerated missing change record",
			slog.String("snapshot_id", snap.ID),
			slog.String("source_id", snap.SourceID),
			slog.String("change_id", rec.ID))
	}
	return report, nil
}
