package postgres

import (
	"context"
	"fmt"
	"time"

	"regwatch/internal/domain/entity"
	"regwatch/internal/repository"
)

// QueueRepo is the classification retry queue, one row per change.
type QueueRepo struct{ db DBTX }

func NewQueueRepo(db DBTX) repository.ClassificationQueue {
	return &QueueRepo{db: db}
}

func (repo *QueueRepo) Enqueue(ctx context.Context, task *entity.ClassificationTask) error {
	const query = `
INSERT INTO classification_tasks (change_id, source_id, attempt, status, next_attempt_at, last_error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (change_id) DO UPDATE
SET attempt = EXCLUDED.attempt,
    status = EXCLUDED.status,
    next_attempt_at = EXCLUDED.next_attempt_at,
    last_error = EXCLUDED.last_error,
    updated_at = EXCLUDED.updated_at`
	_, err := repo.db.ExecContext(ctx, query,
		task.ChangeID, task.SourceID, task.Attempt, string(task.Status),
		task.NextAttemptAt, task.LastError, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	return nil
}

func (repo *QueueRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.ClassificationTask, error) {
	const query = `
SELECT change_id, source_id, attempt, status, next_attempt_at, last_error, created_at, updated_at
FROM classification_tasks
WHERE status = 'queued' AND next_attempt_at <= $1
ORDER BY next_attempt_at ASC, change_id ASC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, now, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("ListDue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*entity.ClassificationTask, 0, 8)
	for rows.Next() {
		var (
			task   entity.ClassificationTask
			status string
		)
		if err := rows.Scan(
			&task.ChangeID, &task.SourceID, &task.Attempt, &status,
			&task.NextAttemptAt, &task.LastError, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ListDue: %w", err)
		}
		task.Status = entity.ClassificationTaskStatus(status)
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListDue: %w", err)
	}
	return tasks, nil
}

func (repo *QueueRepo) Delete(ctx context.Context, changeID string) error {
	const query = `DELETE FROM classification_tasks WHERE change_id = $1`
	if _, err := repo.db.ExecContext(ctx, query, changeID); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func (repo *QueueRepo) CountByStatus(ctx context.Context) (map[entity.ClassificationTaskStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM classification_tasks GROUP BY status`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("CountByStatus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[entity.ClassificationTaskStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("CountByStatus: %w", err)
		}
		counts[entity.ClassificationTaskStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CountByStatus: %w", err)
	}
	return counts, nil
}
