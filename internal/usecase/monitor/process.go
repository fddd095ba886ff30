package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"regwatch/internal/domain/entity"
	"regwatch/internal/observability/logging"
	"regwatch/internal/observability/metrics"
	"regwatch/internal/observability/tracing"
	"regwatch/internal/resilience/retry"
	"regwatch/internal/usecase/detect"
)

// jobRun carries the state of one claimed attempt.
type jobRun struct {
	job    *entity.Job
	src    *entity.Source
	parent context.Context
	logger *slog.Logger
	stats  *runStats
}

// processJob claims a pending job, runs it and settles it in its next
// state. It returns the state it settled in, or "" when the job was skipped
// or left in_progress by a shutdown.
func (o *Orchestrator) processJob(ctx context.Context, jobID string, stats *runStats) entity.JobStatus {
	job, err := o.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		o.storeError("get_job", err)
		return ""
	}
	if job == nil || job.Status != entity.JobPending {
		stats.skipped.Add(1)
		return ""
	}

	// Lock contention is a no-op: the job stays pending for the next sweep.
	if !o.locks.TryAcquire(job.SourceID) {
		o.logger.Debug("source busy, skipping job",
			slog.String("job_id", job.ID),
			slog.String("source_id", job.SourceID))
		stats.skipped.Add(1)
		return ""
	}
	defer o.locks.Release(job.SourceID)

	start := o.now()
	claimed := job.Clone()
	if err := claimed.Claim(start); err != nil {
		stats.skipped.Add(1)
		return ""
	}
	ok, err := o.deps.Jobs.Update(ctx, claimed, entity.JobPending)
	if err != nil {
		o.storeError("claim_job", err)
		return ""
	}
	if !ok {
		stats.skipped.Add(1)
		return ""
	}
	metrics.RecordJobTransition(entity.JobInProgress)

	jobCtx, cancel := context.WithCancel(ctx)
	o.trackInflight(claimed.ID, cancel)
	defer func() {
		cancel()
		o.untrackInflight(claimed.ID)
	}()

	jobCtx, span := tracing.StartJobSpan(jobCtx, "monitor.process_job", claimed)
	run := &jobRun{
		job:    claimed,
		parent: ctx,
		logger: logging.WithJob(o.logger, claimed),
		stats:  stats,
	}
	run.logger.Debug("job claimed")

	outcome, err := o.execute(jobCtx, run)
	tracing.End(span, err)

	if outcome != "" {
		metrics.RecordJobAttempt(outcome, o.now().Sub(start))
		stats.record(outcome)
	}
	return outcome
}

func (o *Orchestrator) execute(ctx context.Context, run *jobRun) (entity.JobStatus, error) {
	src, err := o.deps.Sources.Get(ctx, run.job.SourceID)
	if err != nil {
		o.storeError("get_source", err)
		return o.failure(ctx, run, fmt.Errorf("load source: %w", err))
	}
	if src == nil {
		return o.failure(ctx, run, &entity.ValidationError{
			Field:   "source_id",
			Message: "source no longer exists",
		})
	}
	run.src = src
	run.logger = run.logger.With(slog.String("url", src.URL))

	if !src.Active {
		run.logger.Info("source deactivated, cancelling job")
		next := run.job.Clone()
		if err := next.Cancel(o.now()); err != nil {
			return "", err
		}
		return o.transition(run, next)
	}

	res, err := o.fetch(ctx, run)
	if err != nil {
		return o.failure(ctx, run, err)
	}

	det, err := o.detector.Detect(ctx, src.ID, res.Content)
	if err != nil {
		o.storeError("detect", err)
		return o.failure(ctx, run, err)
	}
	metrics.RecordChangeDetected(det.Kind)
	run.logger.Info("change detection finished",
		slog.String("kind", string(det.Kind)),
		slog.String("fingerprint", det.Fingerprint.Short()))

	if det.Kind == entity.ChangeUnchanged {
		run.stats.unchanged.Add(1)
	} else {
		// Nothing is written once the job is cancelled.
		if err := ctx.Err(); err != nil {
			return o.failure(ctx, run, err)
		}
		if err := o.recordChange(ctx, run, det); err != nil {
			return o.failure(ctx, run, err)
		}
	}

	now := o.now()
	next := run.job.Clone()
	if err := next.Complete(now); err != nil {
		return "", err
	}
	status, err := o.transition(run, next)
	if err != nil || status != entity.JobCompleted {
		return status, err
	}

	if err := o.deps.Sources.TouchCheckedAt(context.WithoutCancel(ctx), src.ID, now); err != nil {
		o.storeError("touch_source", err)
	}
	return status, nil
}

func (o *Orchestrator) fetch(ctx context.Context, run *jobRun) (*FetchResult, error) {
	fctx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()
	fctx, span := tracing.GetTracer().Start(fctx, "monitor.fetch",
		trace.WithAttributes(attribute.String("source.url", run.src.URL)))

	start := time.Now()
	res, err := o.deps.Fetcher.Fetch(fctx, run.src.URL)
	if err == nil && res == nil {
		err = errors.New("fetcher returned no result")
	}
	size := 0
	if res != nil {
		size = len(res.Content)
	}
	metrics.RecordFetch(err == nil, time.Since(start), size)
	tracing.End(span, err)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", run.src.URL, err)
	}
	return res, nil
}

// recordChange commits the snapshot and writes its ChangeRecord. Once the
// commit succeeds the rest of the unit runs to completion even if the job is
// cancelled; a failed record write is left for reconciliation.
func (o *Orchestrator) recordChange(ctx context.Context, run *jobRun, det *detect.Result) error {
	if err := o.deps.Contents.Put(ctx, det.Fingerprint, []byte(det.Normalized)); err != nil {
		o.storeError("put_content", err)
		return fmt.Errorf("store content: %w", err)
	}

	now := o.now()
	snap := det.Snapshot(o.deps.NewID(), run.src.ID, now)
	if err := o.deps.Snapshots.CommitSnapshot(ctx, snap, det.PreviousFingerprint()); err != nil {
		if !errors.Is(err, entity.ErrSnapshotConflict) {
			o.storeError("commit_snapshot", err)
		}
		return fmt.Errorf("commit snapshot: %w", err)
	}

	safe := context.WithoutCancel(ctx)
	rec := entity.NewChangeRecord(o.deps.NewID(), snap, det.PreviousSize(), now)
	created, err := o.deps.Changes.Create(safe, rec)
	if err != nil {
		o.storeError("create_change", err)
		run.logger.Warn("change record left for reconciliation",
			slog.String("snapshot_id", snap.ID))
		return nil
	}
	if !created {
		return nil
	}
	run.stats.changes.Add(1)
	run.logger.Info("change recorded",
		slog.String("change_id", rec.ID),
		slog.String("kind", string(rec.Kind)),
		slog.Int64("size_delta", rec.SizeDelta))

	res := o.classify(ctx, run.src, rec, det.Normalized)
	if res.IsOK() {
		o.applyClassification(safe, run.src, rec, *res.Ok, run.stats)
		return nil
	}
	o.queueClassification(safe, entity.NewClassificationTask(rec, 0, "", now, now), res.Err, run.stats)
	return nil
}

// failure settles an attempt that returned err. Shutdowns leave the job
// in_progress for stale recovery; operator cancels have already persisted
// the cancelled state.
func (o *Orchestrator) failure(ctx context.Context, run *jobRun, err error) (entity.JobStatus, error) {
	if run.parent.Err() != nil {
		run.logger.Warn("job interrupted by shutdown", slog.Any("error", err))
		return "", err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		run.logger.Info("job cancelled during execution")
		return entity.JobCancelled, nil
	}

	kind := retry.KindOf(err)
	again, delay := o.cfg.Retry.NextAttempt(run.job.Attempt, kind)
	msg := logging.SanitizeError(err)
	now := o.now()

	next := run.job.Clone()
	if again {
		if terr := next.ScheduleRetry(now.Add(delay), msg, now); terr != nil {
			return "", terr
		}
	} else if terr := next.Fail(msg, now); terr != nil {
		return "", terr
	}

	status, terr := o.transition(run, next)
	if terr != nil {
		return status, terr
	}
	switch status {
	case entity.JobRetryScheduled:
		metrics.RecordRetryScheduled(kind)
		run.logger.Warn("job attempt failed, retry scheduled",
			slog.String("kind", string(kind)),
			slog.Duration("delay", delay),
			slog.String("error", msg))
	case entity.JobFailed:
		run.logger.Error("job failed",
			slog.String("kind", string(kind)),
			slog.String("error", msg))
	}
	return status, err
}

// transition writes next over the in_progress job. A lost compare-and-set
// means an operator cancelled the job meanwhile.
func (o *Orchestrator) transition(run *jobRun, next *entity.Job) (entity.JobStatus, error) {
	ctx := context.WithoutCancel(run.parent)
	ok, err := o.deps.Jobs.Update(ctx, next, entity.JobInProgress)
	if err != nil {
		o.storeError("update_job", err)
		return "", fmt.Errorf("update job: %w", err)
	}
	if !ok {
		current, gerr := o.deps.Jobs.Get(ctx, next.ID)
		if gerr == nil && current != nil && current.Status == entity.JobCancelled {
			run.logger.Info("job was cancelled before it could settle",
				slog.String("wanted", string(next.Status)))
			return entity.JobCancelled, nil
		}
		run.logger.Warn("job changed concurrently, leaving it as is",
			slog.String("wanted", string(next.Status)))
		return "", nil
	}
	metrics.RecordJobTransition(next.Status)
	if next.Status == entity.JobCompleted {
		run.logger.Info("job completed")
	}
	return next.Status, nil
}
