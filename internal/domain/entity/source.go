package entity

import (
	"fmt"
	"strings"
	"time"
)

// MinCheckFrequency is the shortest cadence a source may be polled at.
const MinCheckFrequency = time.Minute

// Source represents a monitored regulatory publication endpoint together with
// its scheduling metadata.
//
// A source is never deleted while it is referenced by history; setting Active
// to false removes it from scheduling.
type Source struct {
	ID             string
	URL            string
	Jurisdiction   string
	Agency         string
	CheckFrequency time.Duration
	LastCheckedAt  *time.Time
	Active         bool
	CreatedAt      time.Time
}

// Validate checks the fields a source needs before it can be scheduled.
// It does not resolve the URL; see ValidateURL for the network-aware check.
func (s *Source) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return &ValidationError{Field: "url", Message: "is required"}
	}
	if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		return &ValidationError{Field: "url", Message: "must use http or https scheme"}
	}
	if strings.TrimSpace(s.Jurisdiction) == "" {
		return &ValidationError{Field: "jurisdiction", Message: "is required"}
	}
	if s.CheckFrequency < MinCheckFrequency {
		return &ValidationError{
			Field:   "check_frequency",
			Message: fmt.Sprintf("must be at least %s", MinCheckFrequency),
		}
	}
	return nil
}

// NextDueAt returns the instant the source becomes due again.
// A source that has never been checked is due immediately (zero time).
func (s *Source) NextDueAt() time.Time {
	if s.LastCheckedAt == nil {
		return time.Time{}
	}
	return s.LastCheckedAt.Add(s.CheckFrequency)
}

// IsDue reports whether the source should be checked at now.
// Inactive sources are never due.
func (s *Source) IsDue(now time.Time) bool {
	if !s.Active {
		return false
	}
	return !now.Before(s.NextDueAt())
}
