// Package http exposes the read-only query API served by the worker next to
// its health endpoints:
//
//	GET /api/sources[?all=true]
//	GET /api/sources/{id}
//	GET /api/changes[?source=&category=&min_impact=&from=&to=&unclassified=&limit=]
//	GET /api/changes/{id}
package http

import (
	"log/slog"
	"net/http"

	"regwatch/internal/handler/http/change"
	"regwatch/internal/handler/http/requestid"
	"regwatch/internal/handler/http/source"
	"regwatch/internal/repository"
	srcUC "regwatch/internal/usecase/source"
)

// NewRouter builds the query API handler.
func NewRouter(sources *srcUC.Service, changes repository.ChangeRecordRepository, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /api/sources", source.ListHandler{Svc: sources})
	mux.Handle("GET /api/sources/{id}", source.GetHandler{Svc: sources})
	mux.Handle("GET /api/changes", change.SearchHandler{Repo: changes})
	mux.Handle("GET /api/changes/{id}", change.GetHandler{Repo: changes})

	return requestid.Middleware(logger)(Recover(Observe(mux)))
}
