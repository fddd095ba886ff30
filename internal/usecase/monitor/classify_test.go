package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regwatch/internal/domain/entity"
	"regwatch/internal/usecase/detect"
	"regwatch/internal/usecase/monitor"
)

// Classification failure leaves the change unclassified, does not touch the
// job and queues an independent retry.
func TestClassification_TransientFailureIsRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.addSource(t, "src-1", "https://agency.example/1")
	h.fetcher.Set("https://agency.example/1", "Battery recall")
	h.classifier.Push(entity.ClassificationFailed(entity.FailureTransient, "timeout", "deadline exceeded"))

	report := h.runOnce(t, monitor.RunOptions{})
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Changes)
	assert.Equal(t, 0, report.Classified)
	assert.Equal(t, 1, report.ClassificationsQueued)
	assert.Equal(t, 0, h.notifier.Count())

	recs := h.changesFor(t, "src-1")
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Classification)

	ctx := context.Background()
	due, err := h.store.Queue().ListDue(ctx, t0.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempt)
	assert.Equal(t, t0.Add(30*time.Second), due[0].NextAttemptAt)

	// Not due yet.
	cr, err := h.orch.ProcessClassificationRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, cr.Due)

	h.clock.Advance(30 * time.Second)
	cr, err = h.orch.ProcessClassificationRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cr.Classified)
	assert.Equal(t, 2, h.classifier.Calls())
	assert.Equal(t, 1, h.notifier.Count())

	recs = h.changesFor(t, "src-1")
	require.NotNil(t, recs[0].Classification)
	counts, err := h.store.Queue().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)

	jobs := h.jobsFor(t, "src-1")
	require.Len(t, jobs, 1)
	assert.Equal(t, entity.JobCompleted, jobs[0].Status)
}

func TestClassification_PermanentFailureGivesUp(t *testing.T) {
	h := newHarness(t, nil)
	h.addSource(t, "src-1", "https://agency.example/1")
	h.fetcher.Set("https://agency.example/1", "Battery recall")
	h.classifier.Push(entity.ClassificationFailed(entity.FailurePermanent, "schema_mismatch", "impact missing"))

	report := h.runOnce(t, monitor.RunOptions{})
	assert.Equal(t, 1, report.ClassificationsGaveUp)

	counts, err := h.store.Queue().CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[entity.ClassificationTaskStatus]int{entity.TaskGaveUp: 1}, counts)
}

func TestClassification_GivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, func(cfg *monitor.Config, _ *monitor.Deps) {
		cfg.ClassifyRetry.MaxAttempts = 3
	})
	h.addSource(t, "src-1", "https://agency.example/1")
	h.fetcher.Set("https://agency.example/1", "Battery recall")
	for i := 0; i < 3; i++ {
		h.classifier.Push(entity.ClassificationFailed(entity.FailureTransient, "unavailable", "503"))
	}
	h.runOnce(t, monitor.RunOptions{})

	ctx := context.Background()
	var report *monitor.ClassificationReport
	for i := 0; i < 2; i++ {
		h.clock.Advance(time.Hour)
		var err error
		report, err = h.orch.ProcessClassificationRetries(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Due)
	}
	assert.Equal(t, 1, report.GaveUp)
	assert.Equal(t, 3, h.classifier.Calls())

	h.clock.Advance(time.Hour)
	report, err := h.orch.ProcessClassificationRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due, "parked tasks are not retried")
}

func TestClassification_NotifyThreshold(t *testing.T) {
	h := newHarness(t, nil)
	h.addSource(t, "src-low", "https://agency.example/low")
	h.fetcher.Set("https://agency.example/low", "Minor labeling clarification")
	h.classifier.Push(entity.Classified(entity.Classification{
		Category: entity.CategoryLabeling,
		Impact:   entity.ImpactLow,
	}))

	report := h.runOnce(t, monitor.RunOptions{})
	assert.Equal(t, 1, report.Classified)
	assert.Equal(t, 0, h.notifier.Count())
}

// Reconcile regenerates the record for a snapshot committed without one and
// queues it for classification.
func TestReconcile(t *testing.T) {
	h := newHarness(t, nil)
	h.addSource(t, "src-1", "https://agency.example/1")
	ctx := context.Background()

	first := &entity.ContentSnapshot{
		ID: "snap-1", SourceID: "src-1", Fingerprint: detect.Fingerprint("v1"),
		CapturedAt: t0.Add(-2 * time.Hour), Size: 2,
	}
	require.NoError(t, h.store.Snapshots().CommitSnapshot(ctx, first, nil))
	prev := first.Fingerprint
	second := &entity.ContentSnapshot{
		ID: "snap-2", SourceID: "src-1", Fingerprint: detect.Fingerprint("version 2"),
		PreviousFingerprint: &prev, CapturedAt: t0.Add(-time.Hour), Size: 9,
	}
	require.NoError(t, h.store.Snapshots().CommitSnapshot(ctx, second, &prev))
	require.NoError(t, h.store.Contents().Put(ctx, second.Fingerprint, []byte("version 2")))

	report, err := h.orch.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Unrecorded)
	assert.Equal(t, 2, report.Recorded)

	recs := h.changesFor(t, "src-1")
	require.Len(t, recs, 2)
	assert.Equal(t, "snap-2", recs[0].SnapshotID)
	assert.Equal(t, entity.ChangeChanged, recs[0].Kind)
	assert.Equal(t, int64(7), recs[0].SizeDelta)
	assert.Equal(t, t0.Add(-time.Hour), recs[0].DetectedAt)
	assert.Equal(t, entity.ChangeNew, recs[1].Kind)

	// A second pass finds nothing.
	report, err = h.orch.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Recorded)

	// snap-1's content was never stored, so its task is parked; snap-2 is
	// classified.
	cr, err := h.orch.ProcessClassificationRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cr.Due)
	assert.Equal(t, 1, cr.Classified)
	assert.Equal(t, 1, cr.GaveUp)
}
