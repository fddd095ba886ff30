package entity

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobPending        JobStatus = "pending"
	JobInProgress     JobStatus = "in_progress"
	JobCompleted      JobStatus = "completed"
	JobFailed         JobStatus = "failed"
	JobRetryScheduled JobStatus = "retry_scheduled"
	JobCancelled      JobStatus = "cancelled"
)

// JobStatuses lists every status in lifecycle order.
var JobStatuses = []JobStatus{
	JobPending,
	JobInProgress,
	JobRetryScheduled,
	JobCompleted,
	JobFailed,
	JobCancelled,
}

// ActiveJobStatuses are the non-terminal statuses. A source may own at most
// one job in any of them.
var ActiveJobStatuses = []JobStatus{JobPending, JobInProgress, JobRetryScheduled}

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending: {
		JobInProgress, // worker claims
		JobCancelled,  // operator cancel
	},
	JobInProgress: {
		JobCompleted,      // fetch and detection finished
		JobFailed,         // permanent failure or attempts exhausted
		JobRetryScheduled, // transient failure, attempts remain
		JobCancelled,      // operator cancel during execution
	},
	JobRetryScheduled: {
		JobPending,   // next_attempt_at elapsed
		JobCancelled, // operator cancel while waiting
	},
	JobCompleted: {},
	JobFailed:    {},
	JobCancelled: {},
}

// ParseJobStatus converts a stored status string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	if _, ok := jobTransitions[st]; !ok {
		return "", fmt.Errorf("%w: unknown job status %q", ErrInvalidInput, s)
	}
	return st, nil
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ValidateJobTransition returns ErrInvalidTransition when from -> to is not
// part of the job lifecycle.
func ValidateJobTransition(from, to JobStatus) error {
	allowed, ok := jobTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source state %q", ErrInvalidTransition, from)
	}
	for _, st := range allowed {
		if st == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Job is one scheduled attempt, retries included, to fetch, compare and
// classify a source. Retries reuse the same ID and bump Attempt.
type Job struct {
	ID            string
	SourceID      string
	Attempt       int
	Status        JobStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	NextAttemptAt *time.Time
	LastError     *string
}

// NewJob returns a pending job for its first attempt.
func NewJob(id, sourceID string, now time.Time) *Job {
	return &Job{
		ID:        id,
		SourceID:  sourceID,
		Attempt:   1,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate a job without touching a
// shared instance.
func (j *Job) Clone() *Job {
	c := *j
	if j.NextAttemptAt != nil {
		t := *j.NextAttemptAt
		c.NextAttemptAt = &t
	}
	if j.LastError != nil {
		e := *j.LastError
		c.LastError = &e
	}
	return &c
}

func (j *Job) transition(to JobStatus, now time.Time) error {
	if err := ValidateJobTransition(j.Status, to); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	j.Status = to
	j.UpdatedAt = now
	return nil
}

// Claim moves a pending job to in_progress.
func (j *Job) Claim(now time.Time) error {
	return j.transition(JobInProgress, now)
}

// Complete marks the job as successfully finished.
func (j *Job) Complete(now time.Time) error {
	if err := j.transition(JobCompleted, now); err != nil {
		return err
	}
	j.NextAttemptAt = nil
	return nil
}

// ScheduleRetry parks the job until at, recording the failure that caused it.
func (j *Job) ScheduleRetry(at time.Time, lastErr string, now time.Time) error {
	if err := j.transition(JobRetryScheduled, now); err != nil {
		return err
	}
	j.NextAttemptAt = &at
	j.LastError = &lastErr
	return nil
}

// Fail marks the job as failed for good.
func (j *Job) Fail(lastErr string, now time.Time) error {
	if err := j.transition(JobFailed, now); err != nil {
		return err
	}
	j.NextAttemptAt = nil
	j.LastError = &lastErr
	return nil
}

// Cancel moves any non-terminal job to cancelled.
func (j *Job) Cancel(now time.Time) error {
	if err := j.transition(JobCancelled, now); err != nil {
		return err
	}
	j.NextAttemptAt = nil
	return nil
}

// Requeue moves a retry_scheduled job back to pending for its next attempt.
func (j *Job) Requeue(now time.Time) error {
	if err := j.transition(JobPending, now); err != nil {
		return err
	}
	j.Attempt++
	j.NextAttemptAt = nil
	return nil
}

// RetryDue reports whether a retry_scheduled job may be requeued at now.
func (j *Job) RetryDue(now time.Time) bool {
	if j.Status != JobRetryScheduled || j.NextAttemptAt == nil {
		return false
	}
	return !now.Before(*j.NextAttemptAt)
}

// CanCancel reports whether an operator cancel is accepted.
func (j *Job) CanCancel() bool {
	return !j.Status.IsTerminal()
}
