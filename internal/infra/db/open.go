package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"regwatch/internal/observability/logging"
	"regwatch/internal/observability/metrics"
	"regwatch/internal/pkg/config"
)

// ConnectionConfig sizes the connection pool. The orchestrator holds at
// most one connection per worker plus the sweep, so the defaults leave room
// for WORKER_CONCURRENCY up to the worker's limit.
type ConnectionConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// ErrNoDSN is returned by Open when DATABASE_URL is empty.
var ErrNoDSN = errors.New("DATABASE_URL not set")

// Open creates the pgx-backed connection pool for dsn, applies the pool
// settings from the environment and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cfg := loadConnectionConfig(slog.Default())
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	slog.Info("database connection pool configured",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", cfg.ConnMaxIdleTime))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %s", logging.SanitizeError(err))
	}

	slog.Info("database connection established successfully")
	return db, nil
}

// ReportPoolStats publishes the pool's connection counts every interval
// until ctx is done.
func ReportPoolStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		stats := db.Stats()
		metrics.UpdateDBConnectionStats(stats.InUse, stats.Idle)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// loadConnectionConfig reads DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS,
// DB_CONN_MAX_LIFETIME and DB_CONN_MAX_IDLE_TIME. Bad values keep the
// default and are logged. Idle connections never exceed open ones.
func loadConnectionConfig(logger *slog.Logger) ConnectionConfig {
	cfg := DefaultConnectionConfig()
	positive := func(v int) error { return config.ValidateIntRange(v, 1, 1000) }

	results := []struct {
		res   config.ConfigLoadResult
		apply func(any)
	}{
		{config.LoadEnvInt("DB_MAX_OPEN_CONNS", cfg.MaxOpenConns, positive),
			func(v any) { cfg.MaxOpenConns = v.(int) }},
		{config.LoadEnvInt("DB_MAX_IDLE_CONNS", cfg.MaxIdleConns, positive),
			func(v any) { cfg.MaxIdleConns = v.(int) }},
		{config.LoadEnvDuration("DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime, config.ValidatePositiveDuration),
			func(v any) { cfg.ConnMaxLifetime = v.(time.Duration) }},
		{config.LoadEnvDuration("DB_CONN_MAX_IDLE_TIME", cfg.ConnMaxIdleTime, config.ValidatePositiveDuration),
			func(v any) { cfg.ConnMaxIdleTime = v.(time.Duration) }},
	}
	for _, r := range results {
		for _, w := range r.res.Warnings {
			logger.Warn(w)
		}
		r.apply(r.res.Value)
	}

	if cfg.MaxIdleConns > cfg.MaxOpenConns {
		logger.Warn("DB_MAX_IDLE_CONNS exceeds DB_MAX_OPEN_CONNS, lowering it",
			slog.Int("max_idle_conns", cfg.MaxIdleConns),
			slog.Int("max_open_conns", cfg.MaxOpenConns))
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}
	return cfg
}
