package entity

import (
	"encoding/hex"
	"fmt"
	"time"
)

// FingerprintLength is the length of a hex encoded SHA-256 digest.
const FingerprintLength = 64

// Fingerprint is the hex encoded digest of normalized content.
// Two equal fingerprints are treated as equal content.
type Fingerprint string

// ParseFingerprint validates a stored fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	if len(s) != FingerprintLength {
		return "", fmt.Errorf("%w: fingerprint must be %d hex characters, got %d",
			ErrInvalidInput, FingerprintLength, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: fingerprint is not hex: %v", ErrInvalidInput, err)
	}
	return Fingerprint(s), nil
}

func (f Fingerprint) String() string { return string(f) }

// Short returns the first 12 characters, for logs.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// ContentRef returns the storage reference used for content addressed by f.
func (f Fingerprint) ContentRef() string {
	return "sha256:" + string(f)
}

// ContentSnapshot is one accepted observation of a source's content.
// Exactly one snapshot per source is current; the rest are immutable history.
type ContentSnapshot struct {
	ID                  string
	SourceID            string
	Fingerprint         Fingerprint
	PreviousFingerprint *Fingerprint
	CapturedAt          time.Time
	Size                int64
	RawRef              string
}

// Kind reports whether the snapshot introduced a new source or changed one.
func (s *ContentSnapshot) Kind() ChangeKind {
	if s.PreviousFingerprint == nil {
		return ChangeNew
	}
	return ChangeChanged
}
