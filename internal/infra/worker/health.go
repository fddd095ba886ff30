package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// StatusFunc returns the JSON-encodable pipeline status served on /status.
type StatusFunc func(ctx context.Context) (any, error)

// HealthServer serves the liveness, readiness and status endpoints:
//
//	GET /health        always 200
//	GET /health/ready  200 once SetReady(true), 503 before and during shutdown
//	GET /status        pipeline status, 503 if it cannot be read
//	/api/...           the query API, when mounted
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	isReady atomic.Bool
	status  StatusFunc
	api     http.Handler
	server  *http.Server
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewHealthServer builds a server on addr; status may be nil, in which case
// /status answers 404.
func NewHealthServer(addr string, logger *slog.Logger, status StatusFunc) *HealthServer {
	return &HealthServer{addr: addr, logger: logger, status: status}
}

// Mount serves api under /api/. It must be called before Start.
func (h *HealthServer) Mount(api http.Handler) {
	h.api = api
}

// Handler exposes the routes without starting a listener.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleLiveness)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	if h.status != nil {
		mux.HandleFunc("GET /status", h.handleStatus)
	}
	if h.api != nil {
		mux.Handle("/api/", h.api)
	}
	return mux
}

// Start serves until ctx is cancelled, then shuts down within 5 seconds.
// It returns http.ErrServerClosed after a graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		errChan <- h.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	status, err := h.status(ctx)
	if err != nil {
		h.logger.Warn("status unavailable", slog.Any("error", err))
		h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: "status could not be read"})
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
