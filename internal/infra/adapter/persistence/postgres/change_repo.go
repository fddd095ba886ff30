package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"regwatch/internal/domain/entity"
	"regwatch/internal/repository"
)

// ChangeRepo stores change records with their classification inline.
// snapshot_id is unique, which makes Create idempotent per snapshot.
type ChangeRepo struct{ db DBTX }

func NewChangeRepo(db DBTX) repository.ChangeRecordRepository {
	return &ChangeRepo{db: db}
}

const changeColumns = `id, source_id, snapshot_id, previous_fingerprint, new_fingerprint, kind,
       detected_at, size, size_delta,
       category, impact, confidence, reasoning, keywords, classified_at`

func scanChange(row scanner) (*entity.ChangeRecord, error) {
	var (
		rec          entity.ChangeRecord
		prev         sql.NullString
		newFP, kind  string
		category     sql.NullString
		impact       sql.NullString
		confidence   sql.NullFloat64
		reasoning    sql.NullString
		keywordsJSON []byte
		classifiedAt sql.NullTime
	)
	if err := row.Scan(
		&rec.ID, &rec.SourceID, &rec.SnapshotID, &prev, &newFP, &kind,
		&rec.DetectedAt, &rec.Size, &rec.SizeDelta,
		&category, &impact, &confidence, &reasoning, &keywordsJSON, &classifiedAt,
	); err != nil {
		return nil, err
	}
	rec.PreviousFingerprint = nullFingerprint(prev)
	rec.NewFingerprint = entity.Fingerprint(newFP)
	rec.Kind = entity.ChangeKind(kind)

	if classifiedAt.Valid {
		c := &entity.Classification{
			Category:     entity.Category(category.String),
			Impact:       entity.Impact(impact.String),
			Confidence:   confidence.Float64,
			Reasoning:    reasoning.String,
			ClassifiedAt: classifiedAt.Time,
		}
		if len(keywordsJSON) > 0 {
			if err := json.Unmarshal(keywordsJSON, &c.Keywords); err != nil {
				return nil, fmt.Errorf("unmarshal keywords: %w", err)
			}
		}
		rec.Classification = c
	}
	return &rec, nil
}

func (repo *ChangeRepo) Create(ctx context.Context, rec *entity.ChangeRecord) (bool, error) {
	const query = `
INSERT INTO change_records (id, source_id, snapshot_id, previous_fingerprint, new_fingerprint, kind,
                            detected_at, size, size_delta)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (snapshot_id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, query,
		rec.ID, rec.SourceID, rec.SnapshotID, fingerprintArg(rec.PreviousFingerprint),
		string(rec.NewFingerprint), string(rec.Kind), rec.DetectedAt, rec.Size, rec.SizeDelta,
	)
	if err != nil {
		return false, fmt.Errorf("Create: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("Create: %w", err)
	}
	if ok && rec.Classification != nil {
		if _, err := repo.SetClassification(ctx, rec.ID, *rec.Classification); err != nil {
			return true, fmt.Errorf("Create: %w", err)
		}
	}
	return ok, nil
}

func (repo *ChangeRepo) Get(ctx context.Context, id string) (*entity.ChangeRecord, error) {
	const query = `
SELECT ` + changeColumns + `
FROM change_records
WHERE id = $1`
	rec, err := scanChange(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return rec, nil
}

// SetClassification writes c only while classified_at is still NULL.
func (repo *ChangeRepo) SetClassification(ctx context.Context, id string, c entity.Classification) (bool, error) {
	keywords, err := json.Marshal(c.Keywords)
	if err != nil {
		return false, fmt.Errorf("SetClassification: marshal keywords: %w", err)
	}
	const query = `
UPDATE change_records
SET category = $2, impact = $3, confidence = $4, reasoning = $5, keywords = $6, classified_at = $7
WHERE id = $1 AND classified_at IS NULL`
	res, err := repo.db.ExecContext(ctx, query,
		id, string(c.Category), string(c.Impact), c.Confidence, c.Reasoning, keywords, c.ClassifiedAt,
	)
	if err != nil {
		return false, fmt.Errorf("SetClassification: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("SetClassification: %w", err)
	}
	return ok, nil
}

func (repo *ChangeRepo) ListBySource(ctx context.Context, sourceID string, limit int) ([]*entity.ChangeRecord, error) {
	const query = `
SELECT ` + changeColumns + `
FROM change_records
WHERE source_id = $1
ORDER BY detected_at DESC, id DESC
LIMIT $2`
	return repo.list(ctx, "ListBySource", query, sourceID, limitArg(limit))
}

func (repo *ChangeRepo) ListSince(ctx context.Context, since time.Time, limit int) ([]*entity.ChangeRecord, error) {
	const query = `
SELECT ` + changeColumns + `
FROM change_records
WHERE detected_at >= $1
ORDER BY detected_at DESC, id DESC
LIMIT $2`
	return repo.list(ctx, "ListSince", query, since, limitArg(limit))
}

func (repo *ChangeRepo) Search(ctx context.Context, f repository.ChangeFilters) ([]*entity.ChangeRecord, error) {
	where, args := NewChangeQueryBuilder().BuildWhereClause(f, "")
	query := fmt.Sprintf(`
SELECT %s
FROM change_records
%s
ORDER BY detected_at DESC, id DESC
LIMIT $%d`, changeColumns, where, len(args)+1)
	args = append(args, limitArg(f.Limit))
	return repo.list(ctx, "Search", query, args...)
}

func (repo *ChangeRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.ChangeRecord, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	recs := make([]*entity.ChangeRecord, 0, 16)
	for rows.Next() {
		rec, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return recs, nil
}
