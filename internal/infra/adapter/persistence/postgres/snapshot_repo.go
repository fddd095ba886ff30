package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"regwatch/internal/domain/entity"
	"regwatch/internal/repository"
)

// SnapshotRepo keeps snapshot history with an is_current flag. The partial
// unique index idx_snapshots_current guarantees one current row per source.
type SnapshotRepo struct{ db DBTX }

func NewSnapshotRepo(db DBTX) repository.SnapshotRepository {
	return &SnapshotRepo{db: db}
}

const snapshotColumns = `id, source_id, fingerprint, previous_fingerprint, captured_at, size, raw_ref`

func scanSnapshot(row scanner) (*entity.ContentSnapshot, error) {
	var (
		snap entity.ContentSnapshot
		fp   string
		prev sql.NullString
	)
	if err := row.Scan(&snap.ID, &snap.SourceID, &fp, &prev, &snap.CapturedAt, &snap.Size, &snap.RawRef); err != nil {
		return nil, err
	}
	snap.Fingerprint = entity.Fingerprint(fp)
	snap.PreviousFingerprint = nullFingerprint(prev)
	return &snap, nil
}

func (repo *SnapshotRepo) GetCurrent(ctx context.Context, sourceID string) (*entity.ContentSnapshot, bool, error) {
	const query = `
SELECT ` + snapshotColumns + `
FROM snapshots
WHERE source_id = $1 AND is_current`
	snap, err := scanSnapshot(repo.db.QueryRowContext(ctx, query, sourceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("GetCurrent: %w", err)
	}
	return snap, true, nil
}

// CommitSnapshot locks the current row, checks it against previous and swaps
// the current flag in one transaction.
func (repo *SnapshotRepo) CommitSnapshot(ctx context.Context, snap *entity.ContentSnapshot, previous *entity.Fingerprint) (err error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("CommitSnapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQuery = `
SELECT fingerprint
FROM snapshots
WHERE source_id = $1 AND is_current
FOR UPDATE`
	var current string
	err = tx.QueryRowContext(ctx, lockQuery, snap.SourceID).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if previous != nil {
			return fmt.Errorf("CommitSnapshot: %w", entity.ErrSnapshotConflict)
		}
	case err != nil:
		return fmt.Errorf("CommitSnapshot: %w", err)
	case previous == nil || entity.Fingerprint(current) != *previous:
		return fmt.Errorf("CommitSnapshot: %w", entity.ErrSnapshotConflict)
	}

	const retireQuery = `UPDATE snapshots SET is_current = FALSE WHERE source_id = $1 AND is_current`
	if _, err = tx.ExecContext(ctx, retireQuery, snap.SourceID); err != nil {
		return fmt.Errorf("CommitSnapshot: %w", err)
	}

	const insertQuery = `
INSERT INTO snapshots (` + snapshotColumns + `, is_current)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)`
	_, err = tx.ExecContext(ctx, insertQuery,
		snap.ID, snap.SourceID, string(snap.Fingerprint), fingerprintArg(snap.PreviousFingerprint),
		snap.CapturedAt, snap.Size, snap.RawRef,
	)
	if violates(err, "idx_snapshots_current") {
		// Another writer committed the first snapshot for this source.
		return fmt.Errorf("CommitSnapshot: %w", entity.ErrSnapshotConflict)
	}
	if err != nil {
		return fmt.Errorf("CommitSnapshot: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("CommitSnapshot: %w", err)
	}
	return nil
}

func (repo *SnapshotRepo) History(ctx context.Context, sourceID string, limit int) ([]*entity.ContentSnapshot, error) {
	const query = `
SELECT ` + snapshotColumns + `
FROM snapshots
WHERE source_id = $1
ORDER BY captured_at DESC, id DESC
LIMIT $2`
	return repo.list(ctx, "History", query, sourceID, limitArg(limit))
}

func (repo *SnapshotRepo) ListUnrecorded(ctx context.Context, limit int) ([]*entity.ContentSnapshot, error) {
	const query = `
SELECT s.id, s.source_id, s.fingerprint, s.previous_fingerprint, s.captured_at, s.size, s.raw_ref
FROM snapshots s
LEFT JOIN change_records c ON c.snapshot_id = s.id
WHERE c.id IS NULL
ORDER BY s.captured_at ASC, s.id ASC
LIMIT $1`
	return repo.list(ctx, "ListUnrecorded", query, limitArg(limit))
}

func (repo *SnapshotRepo) Size(ctx context.Context, sourceID string, fp entity.Fingerprint) (int64, error) {
	const query = `
SELECT size
FROM snapshots
WHERE source_id = $1 AND fingerprint = $2
ORDER BY captured_at DESC
LIMIT 1`
	var size int64
	err := repo.db.QueryRowContext(ctx, query, sourceID, string(fp)).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("Size: %w", err)
	}
	return size, nil
}

func (repo *SnapshotRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.ContentSnapshot, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	snaps := make([]*entity.ContentSnapshot, 0, 8)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return snaps, nil
}

// ContentRepo stores normalized bodies keyed by fingerprint.
type ContentRepo struct{ db DBTX }

func NewContentRepo(db DBTX) repository.ContentStore {
	return &ContentRepo{db: db}
}

func (repo *ContentRepo) Put(ctx context.Context, fp entity.Fingerprint, body []byte) error {
	const query = `
INSERT INTO contents (fingerprint, body)
VALUES ($1, $2)
ON CONFLICT (fingerprint) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, string(fp), body); err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	return nil
}

func (repo *ContentRepo) Get(ctx context.Context, fp entity.Fingerprint) ([]byte, error) {
	const query = `SELECT body FROM contents WHERE fingerprint = $1`
	var body []byte
	err := repo.db.QueryRowContext(ctx, query, string(fp)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Get: %w", entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return body, nil
}
