package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"regwatch/internal/resilience/circuitbreaker"
)

// hostLimiters hands out one token bucket per host.
type hostLimiters struct {
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHostLimiters(perSecond float64, burst int) *hostLimiters {
	return &hostLimiters{
		rate:     rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *hostLimiters) get(host string) *rate.Limiter {
	host = strings.ToLower(host)
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.rate, h.burst)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until host may be requested again. A robots.txt Crawl-delay
// slower than the configured rate takes precedence.
func (h *hostLimiters) Wait(ctx context.Context, host string, crawlDelay time.Duration) error {
	l := h.get(host)
	if crawlDelay > 0 {
		if slower := rate.Every(crawlDelay); slower < l.Limit() {
			l.SetLimit(slower)
		}
	}
	return l.Wait(ctx)
}

// hostBreakers keeps one circuit breaker per host so a failing agency site
// does not stop fetches from the others.
type hostBreakers struct {
	isSuccessful func(error) bool

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker
}

func newHostBreakers(isSuccessful func(error) bool) *hostBreakers {
	return &hostBreakers{
		isSuccessful: isSuccessful,
		breakers:     make(map[string]*circuitbreaker.CircuitBreaker),
	}
}

func (h *hostBreakers) get(host string) *circuitbreaker.CircuitBreaker {
	host = strings.ToLower(host)
	h.mu.Lock()
	defer h.mu.Unlock()
	cb, ok := h.breakers[host]
	if !ok {
		cfg := circuitbreaker.FetchHostConfig(host)
		cfg.IsSuccessful = h.isSuccessful
		cb = circuitbreaker.New(cfg)
		h.breakers[host] = cb
	}
	return cb
}
