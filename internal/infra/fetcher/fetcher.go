// Package fetcher retrieves regulatory source pages over HTTP and renders
// them to the plain text that change detection hashes.
package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"regwatch/internal/domain/entity"
	"regwatch/internal/resilience/circuitbreaker"
	"regwatch/internal/usecase/monitor"
)

// HTTPFetcher implements monitor.Fetcher.
//
// A fetch runs these steps in order:
//  1. URL validation, including the private address check
//  2. robots.txt, when RespectRobots is set
//  3. the per-host rate limiter, slowed down by Crawl-delay
//  4. the per-host circuit breaker around the request itself
//  5. text extraction for HTML, feeds and plain text
type HTTPFetcher struct {
	client   *http.Client
	cfg      Config
	robots   *RobotsChecker
	limiters *hostLimiters
	breakers *hostBreakers
	logger   *slog.Logger
	now      func() time.Time
}

var _ monitor.Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher builds a fetcher from cfg. A nil logger uses slog.Default.
func NewHTTPFetcher(cfg Config, logger *slog.Logger) (*HTTPFetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &HTTPFetcher{
		cfg:      cfg,
		limiters: newHostLimiters(cfg.HostRate, cfg.HostBurst),
		breakers: newHostBreakers(hostHealthy),
		logger:   logger.With(slog.String("component", "fetcher")),
		now:      time.Now,
	}
	// Request deadlines come from the per-fetch context.
	f.client = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > cfg.MaxRedirects {
				return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, cfg.MaxRedirects)
			}
			if _, err := validateURL(req.Context(), req.URL.String(), cfg.DenyPrivateIPs); err != nil {
				return fmt.Errorf("redirect target validation failed: %w", err)
			}
			return nil
		},
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsChecker(f.client, cfg.UserAgent, 0)
	}
	return f, nil
}

// hostHealthy tells the host breaker which outcomes say nothing bad about the
// host: success, caller cancellation and permanent errors like 404 or a
// robots.txt refusal.
func hostHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == entity.FailurePermanent
}

// Fetch implements monitor.Fetcher. Every error is a *FetchError except an
// open host breaker, which retry.KindOf already treats as transient.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*monitor.FetchResult, error) {
	u, err := validateURL(ctx, rawURL, f.cfg.DenyPrivateIPs)
	if err != nil {
		return nil, newFetchError(rawURL, 0, err)
	}

	var crawlDelay time.Duration
	if f.robots != nil {
		if !f.robots.IsAllowed(ctx, u) {
			return nil, newFetchError(rawURL, 0, fmt.Errorf("%w: %s", ErrRobotsDisallowed, u.Path))
		}
		crawlDelay = f.robots.CrawlDelay(u.Host)
	}

	if err := f.limiters.Wait(ctx, u.Host, crawlDelay); err != nil {
		return nil, newFetchError(rawURL, 0, err)
	}

	cb := f.breakers.get(u.Host)
	result, err := circuitbreaker.Run(cb, func() (*monitor.FetchResult, error) {
		return f.doFetch(ctx, u)
	})
	if err != nil {
		f.logger.Debug("fetch failed",
			slog.String("url", rawURL),
			slog.String("circuit", cb.Name()),
			slog.Any("error", err))
		return nil, err
	}
	return result, nil
}

func (f *HTTPFetcher) doFetch(ctx context.Context, u *url.URL) (*monitor.FetchResult, error) {
	rawURL := u.String()
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, newFetchError(rawURL, 0, fmt.Errorf("%w: %v", ErrInvalidURL, err))
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, application/rss+xml, application/atom+xml, text/plain;q=0.8, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newFetchError(rawURL, 0, ctx.Err())
		}
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, newFetchError(rawURL, 0, fmt.Errorf("%w: request exceeded %v", ErrTimeout, f.cfg.Timeout))
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			err = urlErr.Err
		}
		return nil, newFetchError(rawURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newFetchError(rawURL, resp.StatusCode, statusError(resp))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize+1))
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: reading body exceeded %v", ErrTimeout, f.cfg.Timeout)
		}
		return nil, newFetchError(rawURL, resp.StatusCode, err)
	}
	if int64(len(body)) > f.cfg.MaxBodySize {
		return nil, newFetchError(rawURL, resp.StatusCode, fmt.Errorf("%w: more than %d bytes",
			ErrBodyTooLarge, f.cfg.MaxBodySize))
	}

	pageURL := u
	if resp.Request != nil && resp.Request.URL != nil {
		pageURL = resp.Request.URL
	}
	kind := sniff(resp.Header.Get("Content-Type"), body)
	text, err := render(kind, body, pageURL, f.cfg.ChromeSelectors)
	if err != nil {
		return nil, newFetchError(rawURL, resp.StatusCode, err)
	}

	f.logger.Debug("fetched source",
		slog.String("url", rawURL),
		slog.String("content_type", kind),
		slog.Int("bytes", len(body)),
		slog.Int("text_length", len(text)))

	return &monitor.FetchResult{
		Content:     text,
		ContentType: kind,
		FetchedAt:   f.now().UTC(),
	}, nil
}
