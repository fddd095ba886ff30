// Package source provides the source registry use cases: registering,
// importing, deactivating and listing monitored regulatory sources, and the
// scheduling queries the orchestrator relies on.
package source

import (
	"errors"
	"fmt"

	"regwatch/internal/domain/entity"
)

// Sentinel errors for source use case operations.
var (
	// ErrSourceNotFound indicates that the requested source was not found.
	// It matches entity.ErrNotFound.
	ErrSourceNotFound = fmt.Errorf("source %w", entity.ErrNotFound)

	// ErrDuplicateSource indicates that a source with the same URL already exists.
	ErrDuplicateSource = errors.New("source with this URL already exists")
)
