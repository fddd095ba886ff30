// Package change serves the read-only change record endpoints.
package change

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"regwatch/internal/domain/entity"
	"regwatch/internal/handler/http/respond"
	"regwatch/internal/repository"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type ClassificationDTO struct {
	Category   string   `json:"category"`
	Impact     string   `json:"impact"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Keywords   []string `json:"keywords"`
}

// DTO is the JSON shape of a change record.
type DTO struct {
	ID                  string             `json:"id"`
	SourceID            string             `json:"source_id"`
	SnapshotID          string             `json:"snapshot_id"`
	Kind                string             `json:"kind"`
	PreviousFingerprint *string            `json:"previous_fingerprint"`
	NewFingerprint      string             `json:"new_fingerprint"`
	DetectedAt          time.Time          `json:"detected_at"`
	Size                int64              `json:"size"`
	SizeDelta           int64              `json:"size_delta"`
	Classification      *ClassificationDTO `json:"classification"`
}

func toDTO(rec *entity.ChangeRecord) DTO {
	d := DTO{
		ID:             rec.ID,
		SourceID:       rec.SourceID,
		SnapshotID:     rec.SnapshotID,
		Kind:           string(rec.Kind),
		NewFingerprint: rec.NewFingerprint.String(),
		DetectedAt:     rec.DetectedAt,
		Size:           rec.Size,
		SizeDelta:      rec.SizeDelta,
	}
	if rec.PreviousFingerprint != nil {
		prev := rec.PreviousFingerprint.String()
		d.PreviousFingerprint = &prev
	}
	if c := rec.Classification; c != nil {
		keywords := c.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		d.Classification = &ClassificationDTO{
			Category:   string(c.Category),
			Impact:     string(c.Impact),
			Confidence: c.Confidence,
			Reasoning:  c.Reasoning,
			Keywords:   keywords,
		}
	}
	return d
}

func invalid(field, msg string) error {
	return &entity.ValidationError{Field: field, Message: msg}
}

// ParseFilters reads source, category, min_impact, from, to, unclassified
// and limit from q. Times are RFC 3339.
func ParseFilters(q url.Values) (repository.ChangeFilters, error) {
	f := repository.ChangeFilters{Limit: defaultLimit}
	if v := q.Get("source"); v != "" {
		f.SourceID = &v
	}
	if v := q.Get("category"); v != "" {
		c, err := entity.ParseCategory(v)
		if err != nil {
			return f, invalid("category", err.Error())
		}
		f.Category = &c
	}
	if v := q.Get("min_impact"); v != "" {
		i, err := entity.ParseImpact(v)
		if err != nil {
			return f, invalid("min_impact", err.Error())
		}
		f.MinImpact = &i
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, invalid(p.key, "must be an RFC 3339 timestamp")
		}
		*p.dst = &t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, invalid("to", "must not be before from")
	}
	if v := q.Get("unclassified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, invalid("unclassified", "must be true or false")
		}
		f.Unclassified = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			return f, invalid("limit", fmt.Sprintf("must be between 1 and %d", maxLimit))
		}
		f.Limit = n
	}
	return f, nil
}

// SearchHandler serves GET /api/changes.
type SearchHandler struct{ Repo repository.ChangeRecordRepository }

func (h SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filters, err := ParseFilters(r.URL.Query())
	if err != nil {
		respond.SafeError(w, err)
		return
	}
	recs, err := h.Repo.Search(r.Context(), filters)
	if err != nil {
		respond.SafeError(w, err)
		return
	}
	out := make([]DTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDTO(rec))
	}
	respond.JSON(w, http.StatusOK, out)
}

// GetHandler serves GET /api/changes/{id}.
type GetHandler struct{ Repo repository.ChangeRecordRepository }

func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.Repo.Get(r.Context(), id)
	if err != nil {
		respond.SafeError(w, err)
		return
	}
	if rec == nil {
		respond.SafeError(w, fmt.Errorf("change %s: %w", id, entity.ErrNotFound))
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(rec))
}
