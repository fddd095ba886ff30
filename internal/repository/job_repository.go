package repository

import (
	"context"
	"time"

	"regwatch/internal/domain/entity"
)

// JobRepository persists jobs. Status changes go through compare-and-set
// methods so two workers never both win the same transition.
type JobRepository interface {
	// Get returns (nil, nil) when no job has the id.
	Get(ctx context.Context, id string) (*entity.Job, error)
	// CreateIfIdle inserts job unless the source already owns a job in an
	// active status. created is false in that case.
	CreateIfIdle(ctx context.Context, job *entity.Job) (created bool, err error)
	// Update writes job only if the stored status still equals from.
	Update(ctx context.Context, job *entity.Job, from entity.JobStatus) (bool, error)
	// ActiveForSource returns the non-terminal job owned by sourceID, if any.
	ActiveForSource(ctx context.Context, sourceID string) (*entity.Job, error)
	ListByStatus(ctx context.Context, status entity.JobStatus, limit int) ([]*entity.Job, error)
	// ListDueRetries returns retry_scheduled jobs whose next attempt is due.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*entity.Job, error)
	// ListStale returns in_progress jobs last touched before the cutoff.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.Job, error)
	CountByStatus(ctx context.Context) (map[entity.JobStatus]int, error)
}
