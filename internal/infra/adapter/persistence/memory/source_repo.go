package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"regwatch/internal/domain/entity"
)

// SourceRepo implements repository.SourceRepository.
type SourceRepo struct {
	s *Store
}

func (r *SourceRepo) Get(_ context.Context, id string) (*entity.Source, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	src, ok := r.s.sources[id]
	if !ok {
		return nil, nil
	}
	return cloneSource(src), nil
}

func (r *SourceRepo) GetByURL(_ context.Context, url string) (*entity.Source, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, src := range r.s.sources {
		if src.URL == url {
			return cloneSource(src), nil
		}
	}
	return nil, nil
}

func (r *SourceRepo) List(_ context.Context) ([]*entity.Source, error) {
	return r.filter(func(*entity.Source) bool { return true }), nil
}

func (r *SourceRepo) ListActive(_ context.Context) ([]*entity.Source, error) {
	return r.filter(func(s *entity.Source) bool { return s.Active }), nil
}

// ListDue returns due sources without an active job, longest overdue first.
func (r *SourceRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*entity.Source, error) {
	out := r.filter(func(s *entity.Source) bool {
		return s.IsDue(now) && r.s.activeJobLocked(s.ID) == nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NextDueAt().Before(out[j].NextDueAt())
	})
	return limitSlice(out, limit), nil
}

func (r *SourceRepo) Create(_ context.Context, source *entity.Source) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.sources[source.ID]; exists {
		return fmt.Errorf("Create: source %s already exists", source.ID)
	}
	for _, existing := range r.s.sources {
		if existing.URL == source.URL {
			return fmt.Errorf("Create: url %s already registered", source.URL)
		}
	}
	r.s.sources[source.ID] = cloneSource(source)
	return nil
}

func (r *SourceRepo) Deactivate(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	src, ok := r.s.sources[id]
	if !ok {
		return fmt.Errorf("Deactivate: %w", entity.ErrNotFound)
	}
	src.Active = false
	return nil
}

func (r *SourceRepo) TouchCheckedAt(_ context.Context, id string, t time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	src, ok := r.s.sources[id]
	if !ok {
		return fmt.Errorf("TouchCheckedAt: %w", entity.ErrNotFound)
	}
	src.LastCheckedAt = &t
	return nil
}

func (r *SourceRepo) filter(keep func(*entity.Source) bool) []*entity.Source {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Source, 0, len(r.s.sources))
	for _, src := range r.s.sources {
		if keep(src) {
			out = append(out, cloneSource(src))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
