package notify

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"regwatch/internal/domain/entity"
	"regwatch/internal/infra/notifier"
	"regwatch/internal/resilience/circuitbreaker"
	"regwatch/internal/usecase/monitor"
)

// Config tunes the dispatcher.
type Config struct {
	// MaxConcurrent bounds the sends in flight across all channels.
	MaxConcurrent int
	// PoolTimeout is how long a send waits for a worker slot before the
	// notification is dropped.
	PoolTimeout time.Duration
	// SendTimeout bounds one channel send including its retries.
	SendTimeout time.Duration
	// Breaker builds the per-channel breaker profile.
	Breaker func(channel string) circuitbreaker.Config
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 10,
		PoolTimeout:   5 * time.Second,
		SendTimeout:   30 * time.Second,
		Breaker:       circuitbreaker.NotifyChannelConfig,
	}
}

// ChannelHealthStatus is the health view of one channel.
type ChannelHealthStatus struct {
	Name               string
	Enabled            bool
	CircuitBreakerOpen bool
	State              string
}

// Service dispatches change notifications to every enabled channel.
type Service struct {
	channels   []Channel
	breakers   map[string]*circuitbreaker.CircuitBreaker
	workerPool chan struct{}
	cfg        Config
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

var _ monitor.ChangeNotifier = (*Service)(nil)

// NewService builds a dispatcher over channels. Zero config fields take
// their DefaultConfig values.
func NewService(channels []Channel, cfg Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.PoolTimeout <= 0 {
		cfg.PoolTimeout = def.PoolTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.Breaker == nil {
		cfg.Breaker = def.Breaker
	}
	if logger == nil {
		logger = slog.Default()
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	s := &Service{
		channels:       channels,
		breakers:       make(map[string]*circuitbreaker.CircuitBreaker, len(channels)),
		workerPool:     make(chan struct{}, cfg.MaxConcurrent),
		cfg:            cfg,
		logger:         logger,
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	enabled := 0
	for _, ch := range channels {
		name := ch.Name()
		bc := cfg.Breaker(name)
		// Shutdown cancels sends; that says nothing about the channel.
		bc.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		}
		bc.OnStateChange = func(_ string, _, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				recordCircuitBreakerOpen(name)
			}
		}
		s.breakers[name] = circuitbreaker.New(bc)
		if ch.IsEnabled() {
			enabled++
		}
	}
	channelsEnabled.Set(float64(enabled))
	return s
}

// NotifyChange snapshots the change into a message and sends it to every
// enabled channel in the background. It returns before delivery.
func (s *Service) NotifyChange(ctx context.Context, src *entity.Source, rec *entity.ChangeRecord) error {
	if src == nil || rec == nil {
		return ErrInvalidChange
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}

	msg := notifier.NewMessage(src, rec)
	requestID := uuid.NewString()

	dispatched := 0
	for _, ch := range s.channels {
		if !ch.IsEnabled() {
			continue
		}
		dispatched++
		s.wg.Add(1)
		go s.notifyChannel(requestID, ch, msg)
	}

	if dispatched == 0 {
		s.logger.Debug("no notification channels enabled", slog.String("change_id", rec.ID))
		return nil
	}
	s.logger.Info("dispatching change notification",
		slog.String("request_id", requestID),
		slog.String("change_id", rec.ID),
		slog.String("source_id", src.ID),
		slog.Int("channels", dispatched))
	return nil
}

func (s *Service) notifyChannel(requestID string, ch Channel, msg *notifier.Message) {
	defer s.wg.Done()
	activeNotifications.Inc()
	defer activeNotifications.Dec()

	name := ch.Name()
	log := s.logger.With(
		slog.String("request_id", requestID),
		slog.String("channel", name),
		slog.String("change_id", msg.ChangeID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in notification channel",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	timer := time.NewTimer(s.cfg.PoolTimeout)
	defer timer.Stop()
	select {
	case s.workerPool <- struct{}{}:
		defer func() { <-s.workerPool }()
	case <-timer.C:
		log.Warn("notification dropped: worker pool full")
		recordDropped(name, "pool_full")
		return
	case <-s.shutdownCtx.Done():
		recordDropped(name, "shutdown")
		return
	}

	ctx, cancel := context.WithTimeout(s.shutdownCtx, s.cfg.SendTimeout)
	defer cancel()
	ctx = notifier.WithRequestID(ctx, requestID)

	start := time.Now()
	_, err := circuitbreaker.Run(s.breakers[name], func() (struct{}, error) {
		recordDispatch(name)
		return struct{}{}, ch.Send(ctx, msg)
	})
	duration := time.Since(start)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.Warn("channel temporarily disabled by circuit breaker")
		recordDropped(name, "circuit_open")
		return
	}
	recordResult(name, err, duration)
	if err != nil {
		log.Warn("channel notification failed",
			slog.String("url", msg.URL),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
		return
	}
	log.Info("channel notification sent",
		slog.String("impact", string(msg.Impact)),
		slog.Duration("send_duration", duration))
}

// ChannelHealth reports the breaker state of every channel.
func (s *Service) ChannelHealth() []ChannelHealthStatus {
	out := make([]ChannelHealthStatus, 0, len(s.channels))
	for _, ch := range s.channels {
		cb := s.breakers[ch.Name()]
		out = append(out, ChannelHealthStatus{
			Name:               ch.Name(),
			Enabled:            ch.IsEnabled(),
			CircuitBreakerOpen: cb.IsOpen(),
			State:              cb.State().String(),
		})
	}
	return out
}

// Shutdown stops accepting changes, cancels in-flight sends and waits for
// their goroutines until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("notification service shutdown complete")
		return nil
	case <-ctx.Done():
		s.logger.Warn("notification service shutdown timeout")
		return ctx.Err()
	}
}
