package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by MigrateUp. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
    id               TEXT PRIMARY KEY,
    url              TEXT NOT NULL UNIQUE,
    jurisdiction     TEXT NOT NULL,
    agency           TEXT NOT NULL,
    check_frequency_seconds  BIGINT NOT NULL CHECK (check_frequency_seconds > 0),
    last_checked_at  TIMESTAMPTZ,
    active           BOOLEAN NOT NULL DEFAULT TRUE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS jobs (
    id               TEXT PRIMARY KEY,
    source_id        TEXT NOT NULL REFERENCES sources(id),
    attempt          INTEGER NOT NULL DEFAULT 0,
    status           VARCHAR(20) NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL,
    next_attempt_at  TIMESTAMPTZ,
    last_error       TEXT,
    CONSTRAINT chk_job_status CHECK (status IN
        ('pending', 'in_progress', 'retry_scheduled', 'completed', 'failed', 'cancelled'))
)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
    id                    TEXT PRIMARY KEY,
    source_id             TEXT NOT NULL REFERENCES sources(id),
    fingerprint           CHAR(64) NOT NULL,
    previous_fingerprint  CHAR(64),
    captured_at           TIMESTAMPTZ NOT NULL,
    size                  BIGINT NOT NULL,
    raw_ref               TEXT NOT NULL,
    is_current            BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE TABLE IF NOT EXISTS contents (
    fingerprint  CHAR(64) PRIMARY KEY,
    body         BYTEA NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS change_records (
    id                       TEXT PRIMARY KEY,
    source_id                TEXT NOT NULL REFERENCES sources(id),
    snapshot_id              TEXT NOT NULL UNIQUE REFERENCES snapshots(id),
    previous_fingerprint     CHAR(64),
    new_fingerprint          CHAR(64) NOT NULL,
    kind                     VARCHAR(16) NOT NULL,
    detected_at              TIMESTAMPTZ NOT NULL,
    size                     BIGINT NOT NULL,
    size_delta               BIGINT NOT NULL,
    category                 TEXT,
    impact                   TEXT,
    confidence               DOUBLE PRECISION,
    reasoning                TEXT,
    keywords                 JSONB,
    classified_at            TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS classification_tasks (
    change_id        TEXT PRIMARY KEY REFERENCES change_records(id),
    source_id        TEXT NOT NULL,
    attempt          INTEGER NOT NULL,
    status           VARCHAR(16) NOT NULL,
    next_attempt_at  TIMESTAMPTZ NOT NULL,
    last_error       TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
)`,
}

var indexes = []string{
	// One active job per source.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active_source ON jobs(source_id)
    WHERE status IN ('pending', 'in_progress', 'retry_scheduled')`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_next_attempt ON jobs(status, next_attempt_at)`,
	// One current snapshot per source.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_current ON snapshots(source_id) WHERE is_current`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_source_captured ON snapshots(source_id, captured_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_change_records_source_detected ON change_records(source_id, detected_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_change_records_detected ON change_records(detected_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_classification_tasks_due ON classification_tasks(status, next_attempt_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sources_active ON sources(active) WHERE active = TRUE`,
}

// MigrateUp creates the schema. It is safe to run on every start.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("MigrateUp: %w", err)
		}
	}
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("MigrateUp: %w", err)
		}
	}
	return nil
}

// MigrateDown drops every table in reverse dependency order.
// All monitoring history is lost.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	drops := []string{
		`DROP TABLE IF EXISTS classification_tasks`,
		`DROP TABLE IF EXISTS change_records`,
		`DROP TABLE IF EXISTS contents`,
		`DROP TABLE IF EXISTS snapshots`,
		`DROP TABLE IF EXISTS jobs`,
		`DROP TABLE IF EXISTS sources`,
	}
	for _, stmt := range drops {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("MigrateDown: %w", err)
		}
	}
	return nil
}
