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

type SourceRepo struct{ db DBTX }

func NewSourceRepo(db DBTX) repository.SourceRepository {
	return &SourceRepo{db: db}
}

const sourceColumns = `id, url, jurisdiction, agency, check_frequency_seconds, last_checked_at, active, created_at`

func scanSource(row scanner) (*entity.Source, error) {
	var (
		src     entity.Source
		seconds int64
	)
	if err := row.Scan(
		&src.ID, &src.URL, &src.Jurisdiction, &src.Agency,
		&seconds, &src.LastCheckedAt, &src.Active, &src.CreatedAt,
	); err != nil {
		return nil, err
	}
	src.CheckFrequency = time.Duration(seconds) * time.Second
	return &src, nil
}

func (repo *SourceRepo) Get(ctx context.Context, id string) (*entity.Source, error) {
	const query = `
SELECT ` + sourceColumns + `
FROM sources
WHERE id = $1
LIMIT 1`
	src, err := scanSource(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return src, nil
}

func (repo *SourceRepo) GetByURL(ctx context.Context, url string) (*entity.Source, error) {
	const query = `
SELECT ` + sourceColumns + `
FROM sources
WHERE url = $1
LIMIT 1`
	src, err := scanSource(repo.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByURL: %w", err)
	}
	return src, nil
}

func (repo *SourceRepo) List(ctx context.Context) ([]*entity.Source, error) {
	const query = `
SELECT ` + sourceColumns + `
FROM sources
ORDER BY id ASC`
	return repo.list(ctx, "List", query)
}

func (repo *SourceRepo) ListActive(ctx context.Context) ([]*entity.Source, error) {
	const query = `
SELECT ` + sourceColumns + `
FROM sources
WHERE active = TRUE
ORDER BY id ASC`
	return repo.list(ctx, "ListActive", query)
}

// ListDue orders never-checked sources first, then by how long ago they
// were checked. Sources with an active job are not due.
func (repo *SourceRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Source, error) {
	const query = `
SELECT ` + sourceColumns + `
FROM sources
WHERE active = TRUE
  AND (last_checked_at IS NULL
       OR last_checked_at + check_frequency_seconds * INTERVAL '1 second' <= $1)
  AND NOT EXISTS (
      SELECT 1 FROM jobs
      WHERE jobs.source_id = sources.id
        AND jobs.status IN ('pending', 'in_progress', 'retry_scheduled'))
ORDER BY last_checked_at ASC NULLS FIRST, id ASC
LIMIT $2`
	return repo.list(ctx, "ListDue", query, now, limitArg(limit))
}

func (repo *SourceRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Source, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, 16)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sources, nil
}

func (repo *SourceRepo) Create(ctx context.Context, src *entity.Source) error {
	const query = `
INSERT INTO sources (` + sourceColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.db.ExecContext(ctx, query,
		src.ID, src.URL, src.Jurisdiction, src.Agency,
		int64(src.CheckFrequency/time.Second), src.LastCheckedAt, src.Active, src.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("Create: %w: source %s or url %s already registered", entity.ErrInvalidInput, src.ID, src.URL)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *SourceRepo) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE sources SET active = FALSE WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	if !ok {
		return fmt.Errorf("Deactivate: %w", entity.ErrNotFound)
	}
	return nil
}

func (repo *SourceRepo) TouchCheckedAt(ctx context.Context, id string, t time.Time) error {
	const query = `UPDATE sources SET last_checked_at = $2 WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id, t)
	if err != nil {
		return fmt.Errorf("TouchCheckedAt: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("TouchCheckedAt: %w", err)
	}
	if !ok {
		return fmt.Errorf("TouchCheckedAt: %w", entity.ErrNotFound)
	}
	return nil
}
