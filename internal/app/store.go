// Package app assembles the pipeline from its adapters. Both the worker
// daemon and the operator CLI build their orchestrator here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"regwatch/internal/infra/adapter/persistence/memory"
	"regwatch/internal/infra/adapter/persistence/postgres"
	"regwatch/internal/infra/db"
	"regwatch/internal/repository"
	"regwatch/internal/resilience/circuitbreaker"
)

// Store bundles the repositories of one backing store.
type Store struct {
	Sources   repository.SourceRepository
	Jobs      repository.JobRepository
	Snapshots repository.SnapshotRepository
	Contents  repository.ContentStore
	Changes   repository.ChangeRecordRepository
	Queue     repository.ClassificationQueue

	// DB is nil for the in-memory store.
	DB *sql.DB
}

// NewMemoryStore returns a Store that lives for the life of the process.
func NewMemoryStore() *Store {
	s := memory.NewStore()
	return &Store{
		Sources:   s.Sources(),
		Jobs:      s.Jobs(),
		Snapshots: s.Snapshots(),
		Contents:  s.Contents(),
		Changes:   s.Changes(),
		Queue:     s.Queue(),
	}
}

// OpenPostgres connects to dsn, optionally applies the schema and returns
// repositories that share one circuit-breaker-guarded pool.
func OpenPostgres(ctx context.Context, dsn string, migrate bool, logger *slog.Logger) (*Store, error) {
	conn, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := db.MigrateUp(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database schema up to date")
	}

	guarded := circuitbreaker.NewDBCircuitBreaker(conn)
	return &Store{
		Sources:   postgres.NewSourceRepo(guarded),
		Jobs:      postgres.NewJobRepo(guarded),
		Snapshots: postgres.NewSnapshotRepo(guarded),
		Contents:  postgres.NewContentRepo(guarded),
		Changes:   postgres.NewChangeRepo(guarded),
		Queue:     postgres.NewQueueRepo(guarded),
		DB:        conn,
	}, nil
}

// ReportPoolStats publishes connection pool gauges until ctx is done. It is
// a no-op for the in-memory store.
func (s *Store) ReportPoolStats(ctx context.Context, interval time.Duration) {
	if s.DB != nil {
		go db.ReportPoolStats(ctx, s.DB, interval)
	}
}

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
