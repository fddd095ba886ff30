// Package detect turns fetched content into fingerprints and decides whether
// a source is new, changed or unchanged since its current snapshot.
package detect

import (
	"crypto/sha256"
	"encoding/hex"

	"regwatch/internal/domain/entity"
)

// Fingerprint returns the hex encoded SHA-256 of normalized content.
// The empty string has a well-defined fingerprint.
func Fingerprint(normalized string) entity.Fingerprint {
	sum := sha256.Sum256([]byte(normalized))
	return entity.Fingerprint(hex.EncodeToString(sum[:]))
}
