package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"regwatch/internal/domain/entity"
	"regwatch/internal/repository"
)

// JobRepo stores jobs. The partial unique index idx_jobs_active_source
// backs CreateIfIdle, and Update is a compare-and-set on status.
type JobRepo struct{ db DBTX }

func NewJobRepo(db DBTX) repository.JobRepository {
	return &JobRepo{db: db}
}

const jobColumns = `id, source_id, attempt, status, created_at, updated_at, next_attempt_at, last_error`

func scanJob(row scanner) (*entity.Job, error) {
	var (
		job    entity.Job
		status string
	)
	if err := row.Scan(
		&job.ID, &job.SourceID, &job.Attempt, &status,
		&job.CreatedAt, &job.UpdatedAt, &job.NextAttemptAt, &job.LastError,
	); err != nil {
		return nil, err
	}
	st, err := entity.ParseJobStatus(status)
	if err != nil {
		return nil, err
	}
	job.Status = st
	return &job, nil
}

func (repo *JobRepo) Get(ctx context.Context, id string) (*entity.Job, error) {
	const query = `
SELECT ` + jobColumns + `
FROM jobs
WHERE id = $1`
	job, err := scanJob(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return job, nil
}

func (repo *JobRepo) CreateIfIdle(ctx context.Context, job *entity.Job) (bool, error) {
	const query = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT DO NOTHING`
	res, err := repo.db.ExecContext(ctx, query,
		job.ID, job.SourceID, job.Attempt, string(job.Status),
		job.CreatedAt, job.UpdatedAt, job.NextAttemptAt, job.LastError,
	)
	if err != nil {
		return false, fmt.Errorf("CreateIfIdle: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("CreateIfIdle: %w", err)
	}
	return ok, nil
}

func (repo *JobRepo) Update(ctx context.Context, job *entity.Job, from entity.JobStatus) (bool, error) {
	const query = `
UPDATE jobs
SET attempt = $2, status = $3, updated_at = $4, next_attempt_at = $5, last_error = $6
WHERE id = $1 AND status = $7`
	res, err := repo.db.ExecContext(ctx, query,
		job.ID, job.Attempt, string(job.Status), job.UpdatedAt, job.NextAttemptAt, job.LastError,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("Update: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("Update: %w", err)
	}
	return ok, nil
}

func (repo *JobRepo) ActiveForSource(ctx context.Context, sourceID string) (*entity.Job, error) {
	const query = `
SELECT ` + jobColumns + `
FROM jobs
WHERE source_id = $1 AND status IN ('pending', 'in_progress', 'retry_scheduled')
LIMIT 1`
	job, err := scanJob(repo.db.QueryRowContext(ctx, query, sourceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ActiveForSource: %w", err)
	}
	return job, nil
}

func (repo *JobRepo) ListByStatus(ctx context.Context, status entity.JobStatus, limit int) ([]*entity.Job, error) {
	const query = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = $1
ORDER BY created_at ASC, id ASC
LIMIT $2`
	return repo.list(ctx, "ListByStatus", query, string(status), limitArg(limit))
}

func (repo *JobRepo) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*entity.Job, error) {
	const query = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'retry_scheduled' AND next_attempt_at <= $1
ORDER BY next_attempt_at ASC, id ASC
LIMIT $2`
	return repo.list(ctx, "ListDueRetries", query, now, limitArg(limit))
}

func (repo *JobRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.Job, error) {
	const query = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'in_progress' AND updated_at < $1
ORDER BY updated_at ASC, id ASC
LIMIT $2`
	return repo.list(ctx, "ListStale", query, before, limitArg(limit))
}

func (repo *JobRepo) CountByStatus(ctx context.Context) (map[entity.JobStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM jobs GROUP BY status`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("CountByStatus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[entity.JobStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("CountByStatus: %w", err)
		}
		counts[entity.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CountByStatus: %w", err)
	}
	return counts, nil
}

func (repo *JobRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Job, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*entity.Job, 0, 16)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return jobs, nil
}
