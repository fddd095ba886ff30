package memory

import (
	"context"
	"time"

	"regwatch/internal/domain/entity"
)

// JobRepo implements repository.JobRepository.
type JobRepo struct {
	s *Store
}

func (r *JobRepo) Get(_ context.Context, id string) (*entity.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	job, ok := r.s.jobs[id]
	if !ok {
		return nil, nil
	}
	return job.Clone(), nil
}

// CreateIfIdle refuses a second non-terminal job for the same source.
func (r *JobRepo) CreateIfIdle(_ context.Context, job *entity.Job) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.activeLocked(job.SourceID) != nil {
		return false, nil
	}
	if _, exists := r.s.jobs[job.ID]; exists {
		return false, nil
	}
	r.s.jobs[job.ID] = job.Clone()
	return true, nil
}

// Update is a compare-and-set on the stored status.
func (r *JobRepo) Update(_ context.Context, job *entity.Job, from entity.JobStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.jobs[job.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	r.s.jobs[job.ID] = job.Clone()
	return true, nil
}

func (r *JobRepo) ActiveForSource(_ context.Context, sourceID string) (*entity.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if job := r.activeLocked(sourceID); job != nil {
		return job.Clone(), nil
	}
	return nil, nil
}

func (r *JobRepo) ListByStatus(_ context.Context, status entity.JobStatus, limit int) ([]*entity.Job, error) {
	return r.filter(limit, func(j *entity.Job) bool { return j.Status == status }), nil
}

func (r *JobRepo) ListDueRetries(_ context.Context, now time.Time, limit int) ([]*entity.Job, error) {
	return r.filter(limit, func(j *entity.Job) bool { return j.RetryDue(now) }), nil
}

func (r *JobRepo) ListStale(_ context.Context, before time.Time, limit int) ([]*entity.Job, error) {
	return r.filter(limit, func(j *entity.Job) bool {
		return j.Status == entity.JobInProgress && j.UpdatedAt.Before(before)
	}), nil
}

func (r *JobRepo) CountByStatus(_ context.Context) (map[entity.JobStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[entity.JobStatus]int, len(entity.JobStatuses))
	for _, job := range r.s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (r *JobRepo) activeLocked(sourceID string) *entity.Job {
	return r.s.activeJobLocked(sourceID)
}

func (r *JobRepo) filter(limit int, keep func(*entity.Job) bool) []*entity.Job {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Job, 0)
	for _, job := range r.s.jobs {
		if keep(job) {
			out = append(out, job.Clone())
		}
	}
	sortJobs(out)
	return limitSlice(out, limit)
}
