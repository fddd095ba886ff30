package memory

import (
	"context"
	"fmt"
	"sort"

	"regwatch/internal/domain/entity"
)

// SnapshotRepo implements repository.SnapshotRepository.
type SnapshotRepo struct {
	s *Store
}

func (r *SnapshotRepo) GetCurrent(_ context.Context, sourceID string) (*entity.ContentSnapshot, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.current[sourceID]
	if !ok {
		return nil, false, nil
	}
	return cloneSnapshot(r.s.snapshots[id]), true, nil
}

// CommitSnapshot swaps the current pointer if it still matches previous.
func (r *SnapshotRepo) CommitSnapshot(_ context.Context, snap *entity.ContentSnapshot, previous *entity.Fingerprint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	curID, has := r.s.current[snap.SourceID]
	switch {
	case previous == nil && has:
		return fmt.Errorf("CommitSnapshot: %w", entity.ErrSnapshotConflict)
	case previous != nil && !has:
		return fmt.Errorf("CommitSnapshot: %w", entity.ErrSnapshotConflict)
	case previous != nil && r.s.snapshots[curID].Fingerprint != *previous:
		return fmt.Errorf("CommitSnapshot: %w", entity.ErrSnapshotConflict)
	}
	if _, exists := r.s.snapshots[snap.ID]; exists {
		return fmt.Errorf("CommitSnapshot: snapshot %s already exists", snap.ID)
	}

	r.s.snapshots[snap.ID] = cloneSnapshot(snap)
	r.s.current[snap.SourceID] = snap.ID
	r.s.history[snap.SourceID] = append(r.s.history[snap.SourceID], snap.ID)
	return nil
}

// History lists snapshots newest first.
func (r *SnapshotRepo) History(_ context.Context, sourceID string, limit int) ([]*entity.ContentSnapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := r.s.history[sourceID]
	out := make([]*entity.ContentSnapshot, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, cloneSnapshot(r.s.snapshots[ids[i]]))
	}
	return limitSlice(out, limit), nil
}

// ListUnrecorded returns snapshots with no change record, oldest first.
func (r *SnapshotRepo) ListUnrecorded(_ context.Context, limit int) ([]*entity.ContentSnapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.ContentSnapshot, 0)
	for id, snap := range r.s.snapshots {
		if _, ok := r.s.changeBySnap[id]; !ok {
			out = append(out, cloneSnapshot(snap))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].CapturedAt.Before(out[j].CapturedAt)
		}
		return out[i].ID < out[j].ID
	})
	return limitSlice(out, limit), nil
}

func (r *SnapshotRepo) Size(_ context.Context, sourceID string, fp entity.Fingerprint) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := r.s.history[sourceID]
	for i := len(ids) - 1; i >= 0; i-- {
		if snap := r.s.snapshots[ids[i]]; snap.Fingerprint == fp {
			return snap.Size, nil
		}
	}
	return 0, nil
}

// ContentRepo implements repository.ContentStore.
type ContentRepo struct {
	s *Store
}

func (r *ContentRepo) Put(_ context.Context, fp entity.Fingerprint, body []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.contents[fp]; ok {
		return nil
	}
	r.s.contents[fp] = append([]byte(nil), body...)
	return nil
}

func (r *ContentRepo) Get(_ context.Context, fp entity.Fingerprint) ([]byte, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	body, ok := r.s.contents[fp]
	if !ok {
		return nil, fmt.Errorf("Get: %w", entity.ErrNotFound)
	}
	return append([]byte(nil), body...), nil
}
