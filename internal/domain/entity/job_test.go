package entity_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regwatch/internal/domain/entity"
)

func TestValidateJobTransition(t *testing.T) {
	allowed := map[entity.JobStatus][]entity.JobStatus{
		entity.JobPending:        {entity.JobInProgress, entity.JobCancelled},
		entity.JobInProgress:     {entity.JobCompleted, entity.JobFailed, entity.JobRetryScheduled, entity.JobCancelled},
		entity.JobRetryScheduled: {entity.JobPending, entity.JobCancelled},
	}

	for _, from := range entity.JobStatuses {
		for _, to := range entity.JobStatuses {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			err := entity.ValidateJobTransition(from, to)
			if want {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.ErrorIs(t, err, entity.ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestValidateJobTransition_UnknownState(t *testing.T) {
	err := entity.ValidateJobTransition("paused", entity.JobPending)
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
}

func TestParseJobStatus(t *testing.T) {
	for _, st := range entity.JobStatuses {
		got, err := entity.ParseJobStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := entity.ParseJobStatus("done")
	assert.True(t, errors.Is(err, entity.ErrInvalidInput))
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.True(t, entity.JobCompleted.IsTerminal())
	assert.True(t, entity.JobFailed.IsTerminal())
	assert.True(t, entity.JobCancelled.IsTerminal())
	for _, st := range entity.ActiveJobStatuses {
		assert.False(t, st.IsTerminal(), st)
	}
}

func TestJob_Lifecycle(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("success path", func(t *testing.T) {
		j := entity.NewJob("job-1", "src-1", t0)
		assert.Equal(t, 1, j.Attempt)
		assert.Equal(t, entity.JobPending, j.Status)

		require.NoError(t, j.Claim(t0.Add(time.Second)))
		require.NoError(t, j.Complete(t0.Add(2*time.Second)))
		assert.Equal(t, entity.JobCompleted, j.Status)
		assert.Equal(t, t0.Add(2*time.Second), j.UpdatedAt)
		assert.Nil(t, j.NextAttemptAt)
	})

	t.Run("retry then requeue bumps attempt", func(t *testing.T) {
		j := entity.NewJob("job-2", "src-1", t0)
		require.NoError(t, j.Claim(t0))
		due := t0.Add(time.Second)
		require.NoError(t, j.ScheduleRetry(due, "503 from upstream", t0))
		require.NotNil(t, j.LastError)
		assert.Equal(t, "503 from upstream", *j.LastError)

		assert.False(t, j.RetryDue(t0))
		assert.True(t, j.RetryDue(due))

		require.NoError(t, j.Requeue(due))
		assert.Equal(t, 2, j.Attempt)
		assert.Equal(t, entity.JobPending, j.Status)
		assert.Nil(t, j.NextAttemptAt)
		assert.Equal(t, "job-2", j.ID)
	})

	t.Run("terminal states reject further moves", func(t *testing.T) {
		j := entity.NewJob("job-3", "src-1", t0)
		require.NoError(t, j.Claim(t0))
		require.NoError(t, j.Fail("404", t0))
		assert.False(t, j.CanCancel())
		assert.ErrorIs(t, j.Cancel(t0), entity.ErrInvalidTransition)
		assert.ErrorIs(t, j.Claim(t0), entity.ErrInvalidTransition)
		assert.Equal(t, entity.JobFailed, j.Status)
	})

	t.Run("cancel while waiting for retry", func(t *testing.T) {
		j := entity.NewJob("job-4", "src-1", t0)
		require.NoError(t, j.Claim(t0))
		require.NoError(t, j.ScheduleRetry(t0.Add(time.Minute), "timeout", t0))
		require.True(t, j.CanCancel())
		require.NoError(t, j.Cancel(t0))
		assert.Nil(t, j.NextAttemptAt)
	})

	t.Run("pending cannot complete directly", func(t *testing.T) {
		j := entity.NewJob("job-5", "src-1", t0)
		assert.ErrorIs(t, j.Complete(t0), entity.ErrInvalidTransition)
		assert.Equal(t, entity.JobPending, j.Status)
	})
}

func TestJob_Clone(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	j := entity.NewJob("job-1", "src-1", t0)
	require.NoError(t, j.Claim(t0))
	require.NoError(t, j.ScheduleRetry(t0.Add(time.Minute), "boom", t0))

	c := j.Clone()
	*c.LastError = "changed"
	*c.NextAttemptAt = t0

	assert.Equal(t, "boom", *j.LastError)
	assert.Equal(t, t0.Add(time.Minute), *j.NextAttemptAt)
}
