package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"regwatch/internal/usecase/notify"
)

// ChannelHealthFunc lists notification channel health, usually
// notify.Service.ChannelHealth.
type ChannelHealthFunc func() []notify.ChannelHealthStatus

type channelHealthResponse struct {
	Healthy  bool                 `json:"healthy"`
	Channels []channelHealthEntry `json:"channels"`
}

type channelHealthEntry struct {
	Name               string `json:"name"`
	Enabled            bool   `json:"enabled"`
	CircuitBreakerOpen bool   `json:"circuit_breaker_open"`
	State              string `json:"state"`
}

// MetricsHandler serves /metrics and /health/channels. The channel check
// is unhealthy (503) while any enabled channel has its breaker open.
func MetricsHandler(channels ChannelHealthFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health/channels", func(w http.ResponseWriter, _ *http.Request) {
		resp := channelHealthResponse{Healthy: true, Channels: []channelHealthEntry{}}
		if channels != nil {
			for _, st := range channels() {
				resp.Channels = append(resp.Channels, channelHealthEntry{
					Name:               st.Name,
					Enabled:            st.Enabled,
					CircuitBreakerOpen: st.CircuitBreakerOpen,
					State:              st.State,
				})
				if st.Enabled && st.CircuitBreakerOpen {
					resp.Healthy = false
				}
			}
		}
		code := http.StatusOK
		if !resp.Healthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

// StartMetricsServer serves handler on addr in the background and shuts it
// down when ctx is cancelled.
func StartMetricsServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", slog.Any("error", err))
		}
	}()
	return server
}
