package entity

import (
	"fmt"
	"time"
)

// FailureKind tells the retry policy whether a failure is worth retrying.
type FailureKind string

const (
	// FailureTransient covers network errors, timeouts, 5xx and rate limits.
	FailureTransient FailureKind = "transient"
	// FailurePermanent covers 404s, malformed URLs and bad source definitions.
	FailurePermanent FailureKind = "permanent"
)

// ClassificationError is the Err arm of ClassificationResult.
type ClassificationError struct {
	Kind    FailureKind
	Code    string
	Message string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification %s (%s): %s", e.Code, e.Kind, e.Message)
}

// FailureKind exposes the kind to the retry package.
func (e *ClassificationError) FailureKind() FailureKind {
	return e.Kind
}

// ClassificationResult holds exactly one of Ok or Err.
type ClassificationResult struct {
	Ok  *Classification
	Err *ClassificationError
}

// Classified builds an Ok result.
func Classified(c Classification) ClassificationResult {
	return ClassificationResult{Ok: &c}
}

// ClassificationFailed builds an Err result.
func ClassificationFailed(kind FailureKind, code, message string) ClassificationResult {
	return ClassificationResult{Err: &ClassificationError{Kind: kind, Code: code, Message: message}}
}

// IsOK reports whether the result carries a classification.
func (r ClassificationResult) IsOK() bool {
	return r.Ok != nil && r.Err == nil
}

// ClassificationTaskStatus is the state of a queued classification retry.
type ClassificationTaskStatus string

const (
	TaskQueued ClassificationTaskStatus = "queued"
	TaskGaveUp ClassificationTaskStatus = "gave_up"
)

// ClassificationTask tracks classification of one ChangeRecord independently
// of the fetch job that produced it.
type ClassificationTask struct {
	ChangeID      string
	SourceID      string
	Attempt       int
	Status        ClassificationTaskStatus
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewClassificationTask queues a change for classification at dueAt.
// attempt is the number of classification attempts already made.
func NewClassificationTask(change *ChangeRecord, attempt int, lastErr string, dueAt, now time.Time) *ClassificationTask {
	return &ClassificationTask{
		ChangeID:      change.ID,
		SourceID:      change.SourceID,
		Attempt:       attempt,
		Status:        TaskQueued,
		NextAttemptAt: dueAt,
		LastError:     lastErr,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
