package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"regwatch/internal/domain/entity"
)

// DBTX is the subset of *sql.DB the repositories use. It is satisfied by
// *sql.DB and by circuitbreaker.DBCircuitBreaker.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// violates reports a unique violation of the named constraint or index.
func violates(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func nullFingerprint(ns sql.NullString) *entity.Fingerprint {
	if !ns.Valid {
		return nil
	}
	fp := entity.Fingerprint(ns.String)
	return &fp
}

func fingerprintArg(fp *entity.Fingerprint) any {
	if fp == nil {
		return nil
	}
	return string(*fp)
}

// limitArg maps limit <= 0 to NULL, which Postgres reads as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

type scanner interface {
	Scan(dest ...any) error
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
