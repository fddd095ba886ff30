package repository

import (
	"context"

	"regwatch/internal/domain/entity"
)

// SnapshotRepository is the deduplication store. It keeps exactly one current
// snapshot per source plus the superseded history.
type SnapshotRepository interface {
	// GetCurrent returns the current snapshot for a source; ok is false when
	// the source has never been captured.
	GetCurrent(ctx context.Context, sourceID string) (snap *entity.ContentSnapshot, ok bool, err error)
	// CommitSnapshot makes snap the current snapshot if, and only if, the
	// current fingerprint still equals previous (nil meaning no snapshot yet).
	// A mismatch yields entity.ErrSnapshotConflict and changes nothing.
	CommitSnapshot(ctx context.Context, snap *entity.ContentSnapshot, previous *entity.Fingerprint) error
	// History lists snapshots for a source, newest first.
	History(ctx context.Context, sourceID string, limit int) ([]*entity.ContentSnapshot, error)
	// ListUnrecorded returns committed snapshots that have no change record.
	ListUnrecorded(ctx context.Context, limit int) ([]*entity.ContentSnapshot, error)
	// Size returns the size of the snapshot holding fingerprint fp for a
	// source, or 0 when unknown.
	Size(ctx context.Context, sourceID string, fp entity.Fingerprint) (int64, error)
}

// ContentStore holds normalized content addressed by fingerprint.
type ContentStore interface {
	Put(ctx context.Context, fp entity.Fingerprint, body []byte) error
	// Get returns entity.ErrNotFound when fp was never stored.
	Get(ctx context.Context, fp entity.Fingerprint) ([]byte, error)
}
