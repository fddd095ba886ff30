package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"regwatch/internal/domain/entity"
)

func TestRecordJobTransition(t *testing.T) {
	before := testutil.ToFloat64(JobTransitionsTotal.WithLabelValues("completed"))
	RecordJobTransition(entity.JobCompleted)
	RecordJobTransition(entity.JobCompleted)
	after := testutil.ToFloat64(JobTransitionsTotal.WithLabelValues("completed"))

	assert.Equal(t, before+2, after)
}

func TestUpdateJobCounts_ResetsMissingStatuses(t *testing.T) {
	UpdateJobCounts(map[entity.JobStatus]int{entity.JobPending: 3, entity.JobFailed: 1})
	assert.Equal(t, 3.0, testutil.ToFloat64(JobsByStatus.WithLabelValues("pending")))

	UpdateJobCounts(map[entity.JobStatus]int{entity.JobInProgress: 2})
	assert.Equal(t, 0.0, testutil.ToFloat64(JobsByStatus.WithLabelValues("pending")))
	assert.Equal(t, 0.0, testutil.ToFloat64(JobsByStatus.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(JobsByStatus.WithLabelValues("in_progress")))
}

func TestRecordChangeDetected(t *testing.T) {
	tests := []entity.ChangeKind{entity.ChangeNew, entity.ChangeChanged, entity.ChangeUnchanged}

	for _, kind := range tests {
		t.Run(string(kind), func(t *testing.T) {
			before := testutil.ToFloat64(ChangesDetectedTotal.WithLabelValues(string(kind)))
			RecordChangeDetected(kind)
			assert.Equal(t, before+1, testutil.ToFloat64(ChangesDetectedTotal.WithLabelValues(string(kind))))
		})
	}
}

func TestRecordClassification_Outcomes(t *testing.T) {
	ok := entity.Classified(entity.Classification{Category: entity.CategoryLabeling, Impact: entity.ImpactLow})
	failed := entity.ClassificationFailed(entity.FailurePermanent, "schema_mismatch", "bad json")

	beforeOK := testutil.ToFloat64(ClassificationsTotal.WithLabelValues("keyword", "ok"))
	beforeFail := testutil.ToFloat64(ClassificationsTotal.WithLabelValues("keyword", "permanent"))

	RecordClassification("keyword", ok, 10*time.Millisecond)
	RecordClassification("keyword", failed, 10*time.Millisecond)

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(ClassificationsTotal.WithLabelValues("keyword", "ok")))
	assert.Equal(t, beforeFail+1, testutil.ToFloat64(ClassificationsTotal.WithLabelValues("keyword", "permanent")))
}

func TestRecordStoreError(t *testing.T) {
	before := testutil.ToFloat64(StoreErrorsTotal.WithLabelValues("create_change"))
	RecordStoreError("create_change")
	assert.Equal(t, before+1, testutil.ToFloat64(StoreErrorsTotal.WithLabelValues("create_change")))
}

func TestGauges(t *testing.T) {
	UpdateQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(QueueDepth))

	RecordSweep(time.Second, 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(SourcesDue))

	UpdateSourcesActive(12)
	assert.Equal(t, 12.0, testutil.ToFloat64(SourcesActive))

	UpdateClassificationsPending(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(ClassificationsPending))

	UpdateDBConnectionStats(5, 3)
	assert.Equal(t, 5.0, testutil.ToFloat64(DBConnectionsActive))
	assert.Equal(t, 3.0, testutil.ToFloat64(DBConnectionsIdle))
}

func TestMetricsFunctions_AllCallable(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordJobAttempt(entity.JobRetryScheduled, 2*time.Second)
		RecordRetryScheduled(entity.FailureTransient)
		RecordFetch(true, time.Second, 2048)
		RecordFetch(false, time.Second, 0)
		RecordReconciledChange()
		RecordClassificationRetry("gave_up")
		RecordDBQuery("list_due", time.Millisecond)
	})
}
