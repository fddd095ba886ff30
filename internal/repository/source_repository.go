package repository

import (
	"context"
	"time"

	"regwatch/internal/domain/entity"
)

// SourceRepository persists the source registry.
// Get and GetByURL return (nil, nil) when no row matches.
type SourceRepository interface {
	Get(ctx context.Context, id string) (*entity.Source, error)
	GetByURL(ctx context.Context, url string) (*entity.Source, error)
	List(ctx context.Context) ([]*entity.Source, error)
	ListActive(ctx context.Context) ([]*entity.Source, error)
	// ListDue returns up to limit active sources that own no pending,
	// in_progress or retry_scheduled job and whose last check is at least
	// one check frequency before now, or that were never checked. A limit
	// of zero or less means no limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Source, error)
	Create(ctx context.Context, source *entity.Source) error
	// Deactivate returns entity.ErrNotFound when id is unknown.
	Deactivate(ctx context.Context, id string) error
	TouchCheckedAt(ctx context.Context, id string, t time.Time) error
}
