// Package memory provides in-process repository implementations used by the
// CLI's --memory mode and by use case tests. All repositories created from
// one Store share a single lock, so multi-table operations are atomic.
package memory

import (
	"sort"
	"sync"

	"regwatch/internal/domain/entity"
	"regwatch/internal/repository"
)

var (
	_ repository.SourceRepository       = (*SourceRepo)(nil)
	_ repository.JobRepository          = (*JobRepo)(nil)
	_ repository.SnapshotRepository     = (*SnapshotRepo)(nil)
	_ repository.ContentStore           = (*ContentRepo)(nil)
	_ repository.ChangeRecordRepository = (*ChangeRepo)(nil)
	_ repository.ClassificationQueue    = (*QueueRepo)(nil)
)

// Store holds every table in memory.
type Store struct {
	mu sync.RWMutex

	sources        map[string]*entity.Source
	jobs           map[string]*entity.Job
	snapshots      map[string]*entity.ContentSnapshot // by snapshot id
	current        map[string]string                  // source id -> snapshot id
	history        map[string][]string                // source id -> snapshot ids, oldest first
	contents       map[entity.Fingerprint][]byte
	changes        map[string]*entity.ChangeRecord
	changeBySnap   map[string]string
	classification map[string]*entity.ClassificationTask
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		sources:        make(map[string]*entity.Source),
		jobs:           make(map[string]*entity.Job),
		snapshots:      make(map[string]*entity.ContentSnapshot),
		current:        make(map[string]string),
		history:        make(map[string][]string),
		contents:       make(map[entity.Fingerprint][]byte),
		changes:        make(map[string]*entity.ChangeRecord),
		changeBySnap:   make(map[string]string),
		classification: make(map[string]*entity.ClassificationTask),
	}
}

// Sources returns the source repository view.
func (s *Store) Sources() *SourceRepo { return &SourceRepo{s: s} }

// Jobs returns the job repository view.
func (s *Store) Jobs() *JobRepo { return &JobRepo{s: s} }

// Snapshots returns the dedup store view.
func (s *Store) Snapshots() *SnapshotRepo { return &SnapshotRepo{s: s} }

// Contents returns the content store view.
func (s *Store) Contents() *ContentRepo { return &ContentRepo{s: s} }

// Changes returns the change record repository view.
func (s *Store) Changes() *ChangeRepo { return &ChangeRepo{s: s} }

// Queue returns the classification queue view.
func (s *Store) Queue() *QueueRepo { return &QueueRepo{s: s} }

// activeJobLocked returns the non-terminal job of sourceID, if any. The
// caller holds s.mu.
func (s *Store) activeJobLocked(sourceID string) *entity.Job {
	for _, job := range s.jobs {
		if job.SourceID == sourceID && !job.Status.IsTerminal() {
			return job
		}
	}
	return nil
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func sortJobs(jobs []*entity.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}

func cloneSource(src *entity.Source) *entity.Source {
	c := *src
	if src.LastCheckedAt != nil {
		t := *src.LastCheckedAt
		c.LastCheckedAt = &t
	}
	return &c
}

func cloneSnapshot(snap *entity.ContentSnapshot) *entity.ContentSnapshot {
	c := *snap
	if snap.PreviousFingerprint != nil {
		fp := *snap.PreviousFingerprint
		c.PreviousFingerprint = &fp
	}
	return &c
}

func cloneChange(rec *entity.ChangeRecord) *entity.ChangeRecord {
	c := *rec
	if rec.PreviousFingerprint != nil {
		fp := *rec.PreviousFingerprint
		c.PreviousFingerprint = &fp
	}
	if rec.Classification != nil {
		cl := *rec.Classification
		cl.Keywords = append([]string(nil), rec.Classification.Keywords...)
		c.Classification = &cl
	}
	return &c
}
