package repository

import (
	"context"
	"time"

	"regwatch/internal/domain/entity"
)

// ChangeRecordRepository stores change records. Records are immutable except
// for the classification, which is written at most once.
type ChangeRecordRepository interface {
	// Create inserts rec. created is false when a record for the same
	// snapshot already exists.
	Create(ctx context.Context, rec *entity.ChangeRecord) (created bool, err error)
	// Get returns (nil, nil) when no record has the id.
	Get(ctx context.Context, id string) (*entity.ChangeRecord, error)
	// SetClassification attaches c only when the record is still unclassified.
	SetClassification(ctx context.Context, id string, c entity.Classification) (bool, error)
	ListBySource(ctx context.Context, sourceID string, limit int) ([]*entity.ChangeRecord, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]*entity.ChangeRecord, error)
	// Search lists records matching every set filter, newest first.
	Search(ctx context.Context, f ChangeFilters) ([]*entity.ChangeRecord, error)
}

// ChangeFilters narrows Search. Nil fields are ignored.
type ChangeFilters struct {
	SourceID     *string
	Category     *entity.Category
	MinImpact    *entity.Impact
	From         *time.Time
	To           *time.Time
	Unclassified bool
	Limit        int
}

// ClassificationQueue holds changes whose classification must be retried.
type ClassificationQueue interface {
	// Enqueue inserts or replaces the task for task.ChangeID.
	Enqueue(ctx context.Context, task *entity.ClassificationTask) error
	// ListDue returns queued tasks whose next attempt is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.ClassificationTask, error)
	Delete(ctx context.Context, changeID string) error
	CountByStatus(ctx context.Context) (map[entity.ClassificationTaskStatus]int, error)
}
