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
	"regwatch/internal/observability/metrics"
	"regwatch/internal/observability/tracing"
)

// taskClassified is the pseudo status of a task removed after success.
const taskClassified entity.ClassificationTaskStatus = "classified"

// ClassificationReport summarizes one pass over the classification queue.
type ClassificationReport struct {
	Due        int
	Classified int
	Requeued   int
	GaveUp     int
	Dropped    int // tasks whose change was already classified or is gone
}

func (o *Orchestrator) classify(ctx context.Context, src *entity.Source, rec *entity.ChangeRecord, content string) entity.ClassificationResult {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.ClassifyTimeout)
	defer cancel()
	cctx, span := tracing.GetTracer().Start(cctx, "monitor.classify", trace.WithAttributes(
		attribute.String("change.id", rec.ID),
		attribute.String("source.id", rec.SourceID),
		attribute.String("classifier", o.deps.Classifier.Name()),
	))

	start := time.Now()
	res := o.deps.Classifier.Classify(cctx, content, metadataFor(src, rec))
	if !res.IsOK() && res.Err == nil {
		res = entity.ClassificationFailed(entity.FailureTransient, "empty_result",
			"classifier returned neither a classification nor an error")
	}
	metrics.RecordClassification(o.deps.Classifier.Name(), res, time.Since(start))

	var err error
	if res.Err != nil {
		err = res.Err
	}
	tracing.End(span, err)
	return res
}

// applyClassification stores c on rec and notifies when the impact is high
// enough. It reports false only on store failure.
func (o *Orchestrator) applyClassification(ctx context.Context, src *entity.Source, rec *entity.ChangeRecord, c entity.Classification, stats *runStats) bool {
	if c.ClassifiedAt.IsZero() {
		c.ClassifiedAt = o.now()
	}
	ok, err := o.deps.Changes.SetClassification(ctx, rec.ID, c)
	if err != nil {
		o.storeError("set_classification", err)
		return false
	}
	if !ok {
		return true
	}
	stats.classified.Add(1)
	rec.Classification = &c
	o.logger.Info("change classified",
		slog.String("change_id", rec.ID),
		slog.String("category", string(c.Category)),
		slog.String("impact", string(c.Impact)),
		slog.Float64("confidence", c.Confidence))
	o.notify(ctx, src, rec)
	return true
}

// queueClassification records a failed classification attempt on task and
// either schedules the next one or parks the task as gave_up.
func (o *Orchestrator) queueClassification(ctx context.Context, task *entity.ClassificationTask, cerr *entity.ClassificationError, stats *runStats) {
	now := o.now()
	task.Attempt++
	task.LastError = cerr.Error()
	task.UpdatedAt = now

	again, delay := o.cfg.ClassifyRetry.NextAttempt(task.Attempt, cerr.Kind)
	outcome := "queued"
	if again {
		task.Status = entity.TaskQueued
		task.NextAttemptAt = now.Add(delay)
		stats.classifyQueued.Add(1)
	} else {
		task.Status = entity.TaskGaveUp
		task.NextAttemptAt = now
		outcome = "gave_up"
		stats.classifyGaveUp.Add(1)
	}

	if err := o.deps.Queue.Enqueue(ctx, task); err != nil {
		o.storeError("enqueue_classification", err)
		return
	}
	metrics.RecordClassificationRetry(outcome)
	o.logger.Warn("classification failed",
		slog.String("change_id", task.ChangeID),
		slog.Int("attempt", task.Attempt),
		slog.String("kind", string(cerr.Kind)),
		slog.String("code", cerr.Code),
		slog.String("outcome", outcome),
		slog.Duration("delay", delay))
}

func (o *Orchestrator) notify(ctx context.Context, src *entity.Source, rec *entity.ChangeRecord) {
	if o.deps.Notifier == nil || rec.Classification == nil {
		return
	}
	if !rec.Classification.Impact.AtLeast(o.cfg.NotifyMinImpact) {
		return
	}
	if err := o.deps.Notifier.NotifyChange(ctx, src, rec); err != nil {
		o.logger.Warn("change notification failed",
			slog.String("change_id", rec.ID),
			slog.Any("error", err))
	}
}

// ProcessClassificationRetries retries every due classification task once.
// Classification never touches the job that produced the change.
func (o *Orchestrator) ProcessClassificationRetries(ctx context.Context) (*ClassificationReport, error) {
	return o.processClassificationRetries(ctx, &runStats{})
}

func (o *Orchestrator) processClassificationRetries(ctx context.Context, stats *runStats) (*ClassificationReport, error) {
	tasks, err := o.deps.Queue.ListDue(ctx, o.now(), o.cfg.BatchSize)
	if err != nil {
		o.storeError("list_classification_tasks", err)
		return nil, fmt.Errorf("list classification tasks: %w", err)
	}

	report := &ClassificationReport{Due: len(tasks)}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := o.retryClassification(ctx, task, stats)
		if err != nil {
			return report, err
		}
		switch outcome {
		case entity.TaskQueued:
			report.Requeued++
		case entity.TaskGaveUp:
			report.GaveUp++
		case taskClassified:
			report.Classified++
		default:
			report.Dropped++
		}
	}

	if counts, err := o.deps.Queue.CountByStatus(ctx); err == nil {
		metrics.UpdateClassificationsPending(counts[entity.TaskQueued])
	}
	if report.Due > 0 {
		o.logger.Info("classification retries processed",
			slog.Int("due", report.Due),
			slog.Int("classified", report.Classified),
			slog.Int("requeued", report.Requeued),
			slog.Int("gave_up", report.GaveUp))
	}
	return report, nil
}

func (o *Orchestrator) retryClassification(ctx context.Context, task *entity.ClassificationTask, stats *runStats) (entity.ClassificationTaskStatus, error) {
	rec, err := o.deps.Changes.Get(ctx, task.ChangeID)
	if err != nil {
		o.storeError("get_change", err)
		return "", fmt.Errorf("get change %s: %w", task.ChangeID, err)
	}
	if rec == nil || rec.IsClassified() {
		return "", o.dropTask(ctx, task.ChangeID)
	}

	src, err := o.deps.Sources.Get(ctx, rec.SourceID)
	if err != nil {
		o.storeError("get_source", err)
		return "", fmt.Errorf("get source %s: %w", rec.SourceID, err)
	}
	if src == nil {
		return "", o.dropTask(ctx, task.ChangeID)
	}

	content, err := o.deps.Contents.Get(ctx, rec.NewFingerprint)
	if errors.Is(err, entity.ErrNotFound) {
		o.queueClassification(ctx, task, &entity.ClassificationError{
			Kind:    entity.FailurePermanent,
			Code:    "content_missing",
			Message: "stored content for " + rec.NewFingerprint.Short() + " is gone",
		}, stats)
		return task.Status, nil
	}
	if err != nil {
		o.storeError("get_content", err)
		return "", fmt.Errorf("get content %s: %w", rec.NewFingerprint.Short(), err)
	}

	res := o.classify(ctx, src, rec, string(content))
	if !res.IsOK() {
		o.queueClassification(ctx, task, res.Err, stats)
		return task.Status, nil
	}
	if !o.applyClassification(ctx, src, rec, *res.Ok, stats) {
		return "", fmt.Errorf("store classification for %s", rec.ID)
	}
	metrics.RecordClassificationRetry("classified")
	return taskClassified, o.dropTask(ctx, task.ChangeID)
}

func (o *Orchestrator) dropTask(ctx context.Context, changeID string) error {
	if err := o.deps.Queue.Delete(ctx, changeID); err != nil {
		o.storeError("delete_classification_task", err)
		return fmt.Errorf("delete classification task %s: %w", changeID, err)
	}
	return nil
}
