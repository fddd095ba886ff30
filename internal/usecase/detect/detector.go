package detect

import (
	"context"
	"fmt"
	"time"

	"regwatch/internal/domain/entity"
	"regwatch/internal/repository"
)

// Result is the detector verdict for one fetch.
type Result struct {
	Kind        entity.ChangeKind
	Fingerprint entity.Fingerprint
	// Previous is the current snapshot the verdict was computed against;
	// nil when Kind is new.
	Previous   *entity.ContentSnapshot
	Normalized string
}

// Size is the byte length of the normalized content.
func (r *Result) Size() int64 {
	return int64(len(r.Normalized))
}

// PreviousFingerprint returns the expected current fingerprint for a commit.
func (r *Result) PreviousFingerprint() *entity.Fingerprint {
	if r.Previous == nil {
		return nil
	}
	fp := r.Previous.Fingerprint
	return &fp
}

// PreviousSize returns the size of the superseded snapshot, 0 for new sources.
func (r *Result) PreviousSize() int64 {
	if r.Previous == nil {
		return 0
	}
	return r.Previous.Size
}

// Snapshot builds the snapshot to commit for a new or changed verdict.
func (r *Result) Snapshot(id, sourceID string, capturedAt time.Time) *entity.ContentSnapshot {
	return &entity.ContentSnapshot{
		ID:                  id,
		SourceID:            sourceID,
		Fingerprint:         r.Fingerprint,
		PreviousFingerprint: r.PreviousFingerprint(),
		CapturedAt:          capturedAt,
		Size:                r.Size(),
		RawRef:              r.Fingerprint.ContentRef(),
	}
}

// Detector compares fetched content with a source's current snapshot.
type Detector struct {
	store      repository.SnapshotRepository
	normalizer *Normalizer
}

// NewDetector returns a Detector reading from store.
func NewDetector(store repository.SnapshotRepository, normalizer *Normalizer) *Detector {
	if normalizer == nil {
		normalizer = NewNormalizer(DefaultRules())
	}
	return &Detector{store: store, normalizer: normalizer}
}

// Detect normalizes and fingerprints content, then looks up the source's
// current snapshot. It does not write anything.
func (d *Detector) Detect(ctx context.Context, sourceID, content string) (*Result, error) {
	normalized := d.normalizer.Normalize(content)
	res := &Result{
		Fingerprint: Fingerprint(normalized),
		Normalized:  normalized,
	}

	current, ok, err := d.store.GetCurrent(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("detect: get current snapshot: %w", err)
	}
	switch {
	case !ok:
		res.Kind = entity.ChangeNew
	case current.Fingerprint == res.Fingerprint:
		res.Kind = entity.ChangeUnchanged
		res.Previous = current
	default:
		res.Kind = entity.ChangeChanged
		res.Previous = current
	}
	return res, nil
}
