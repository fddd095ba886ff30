package memory

import (
	"context"
	"sort"
	"time"

	"regwatch/internal/domain/entity"
	"regwatch/internal/repository"
)

// ChangeRepo implements repository.ChangeRecordRepository.
type ChangeRepo struct {
	s *Store
}

func (r *ChangeRepo) Create(_ context.Context, rec *entity.ChangeRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.changeBySnap[rec.SnapshotID]; ok {
		return false, nil
	}
	if _, ok := r.s.changes[rec.ID]; ok {
		return false, nil
	}
	r.s.changes[rec.ID] = cloneChange(rec)
	r.s.changeBySnap[rec.SnapshotID] = rec.ID
	return true, nil
}

func (r *ChangeRepo) Get(_ context.Context, id string) (*entity.ChangeRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.changes[id]
	if !ok {
		return nil, nil
	}
	return cloneChange(rec), nil
}

// SetClassification writes c only if the record is still unclassified.
func (r *ChangeRepo) SetClassification(_ context.Context, id string, c entity.Classification) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.changes[id]
	if !ok || rec.Classification != nil {
		return false, nil
	}
	c.Keywords = append([]string(nil), c.Keywords...)
	rec.Classification = &c
	return true, nil
}

func (r *ChangeRepo) ListBySource(_ context.Context, sourceID string, limit int) ([]*entity.ChangeRecord, error) {
	return r.filter(limit, func(rec *entity.ChangeRecord) bool { return rec.SourceID == sourceID }), nil
}

func (r *ChangeRepo) ListSince(_ context.Context, since time.Time, limit int) ([]*entity.ChangeRecord, error) {
	return r.filter(limit, func(rec *entity.ChangeRecord) bool { return !rec.DetectedAt.Before(since) }), nil
}

func (r *ChangeRepo) Search(_ context.Context, f repository.ChangeFilters) ([]*entity.ChangeRecord, error) {
	return r.filter(f.Limit, func(rec *entity.ChangeRecord) bool {
		c := rec.Classification
		switch {
		case f.SourceID != nil && rec.SourceID != *f.SourceID:
			return false
		case f.From != nil && rec.DetectedAt.Before(*f.From):
			return false
		case f.To != nil && rec.DetectedAt.After(*f.To):
			return false
		case f.Unclassified && c != nil:
			return false
		case f.Category != nil && (c == nil || c.Category != *f.Category):
			return false
		case f.MinImpact != nil && (c == nil || !c.Impact.AtLeast(*f.MinImpact)):
			return false
		}
		return true
	}), nil
}

// filter returns matching records newest first.
func (r *ChangeRepo) filter(limit int, keep func(*entity.ChangeRecord) bool) []*entity.ChangeRecord {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.ChangeRecord, 0)
	for _, rec := range r.s.changes {
		if keep(rec) {
			out = append(out, cloneChange(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].ID > out[j].ID
	})
	return limitSlice(out, limit)
}

// QueueRepo implements repository.ClassificationQueue.
type QueueRepo struct {
	s *Store
}

func (r *QueueRepo) Enqueue(_ context.Context, task *entity.ClassificationTask) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *task
	r.s.classification[task.ChangeID] = &c
	return nil
}

func (r *QueueRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*entity.ClassificationTask, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.ClassificationTask, 0)
	for _, task := range r.s.classification {
		if task.Status == entity.TaskQueued && !task.NextAttemptAt.After(now) {
			c := *task
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextAttemptAt.Equal(out[j].NextAttemptAt) {
			return out[i].NextAttemptAt.Before(out[j].NextAttemptAt)
		}
		return out[i].ChangeID < out[j].ChangeID
	})
	return limitSlice(out, limit), nil
}

func (r *QueueRepo) Delete(_ context.Context, changeID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.classification, changeID)
	return nil
}

func (r *QueueRepo) CountByStatus(_ context.Context) (map[entity.ClassificationTaskStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[entity.ClassificationTaskStatus]int)
	for _, task := range r.s.classification {
		counts[task.Status]++
	}
	return counts, nil
}
