// Package source serves the read-only source registry endpoints.
package source

import (
	"net/http"
	"time"

	"regwatch/internal/domain/entity"
	"regwatch/internal/handler/http/respond"
	srcUC "regwatch/internal/usecase/source"
)

// DTO is the JSON shape of a source.
type DTO struct {
	ID                    string     `json:"id"`
	URL                   string     `json:"url"`
	Jurisdiction          string     `json:"jurisdiction"`
	Agency                string     `json:"agency"`
	CheckFrequencySeconds int64      `json:"check_frequency_seconds"`
	LastCheckedAt         *time.Time `json:"last_checked_at"`
	Active                bool       `json:"active"`
	CreatedAt             time.Time  `json:"created_at"`
}

func toDTO(s *entity.Source) DTO {
	return DTO{
		ID:                    s.ID,
		URL:                   s.URL,
		Jurisdiction:          s.Jurisdiction,
		Agency:                s.Agency,
		CheckFrequencySeconds: int64(s.CheckFrequency / time.Second),
		LastCheckedAt:         s.LastCheckedAt,
		Active:                s.Active,
		CreatedAt:             s.CreatedAt,
	}
}

// ListHandler serves GET /api/sources. Deactivated sources are included
// with ?all=true.
type ListHandler struct{ Svc *srcUC.Service }

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	list, err := h.Svc.List(r.Context(), !all)
	if err != nil {
		respond.SafeError(w, err)
		return
	}
	out := make([]DTO, 0, len(list))
	for _, s := range list {
		out = append(out, toDTO(s))
	}
	respond.JSON(w, http.StatusOK, out)
}

// GetHandler serves GET /api/sources/{id}.
type GetHandler struct{ Svc *srcUC.Service }

func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	src, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respond.SafeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(src))
}
