package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"regwatch/internal/utils/text"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID tags ctx so delivery logs can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RateLimitError represents a 429 from a webhook service.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError represents a 4xx other than 429.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string { return e.Message }

// ServerError represents a 5xx.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string { return e.Message }

// isRetryableError treats server and network errors as retryable. Client
// errors are final and rate limits are handled by waiting.
func isRetryableError(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// truncate cuts s to maxLength runes including suffix.
func truncate(s string, maxLength int, suffix string) string {
	if text.CountRunes(s) <= maxLength {
		return s
	}
	keep := maxLength - text.CountRunes(suffix)
	if keep < 0 {
		keep = 0
	}
	cut, _ := text.Truncate(s, keep)
	return cut + suffix
}

// webhook posts JSON payloads to one URL with rate limiting and retries.
type webhook struct {
	service     string
	url         string
	client      *http.Client
	limiter     *RateLimiter
	maxAttempts int
	baseDelay   time.Duration
}

// retryAfterBody matches the Discord 429 body; Slack only sends the header.
type retryAfterBody struct {
	RetryAfter float64 `json:"retry_after"`
}

func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var parsed retryAfterBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.RetryAfter > 0 {
		return time.Duration(parsed.RetryAfter * float64(time.Second))
	}
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 5 * time.Second
}

func (w *webhook) post(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    w.service + " rate limit exceeded",
			RetryAfter: extractRetryAfter(resp, body),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API client error: %s", w.service, string(body)),
		}
	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API server error: %s", w.service, string(body)),
		}
	default:
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}
}

// deliver waits for the rate limiter and posts payload. A 429 waits for the
// advertised delay, server and network errors back off linearly, client
// errors fail at once.
func (w *webhook) deliver(ctx context.Context, msg *Message, payload any) error {
	requestID, _ := ctx.Value(requestIDKey).(string)
	log := slog.With(
		slog.String("service", w.service),
		slog.String("request_id", requestID),
		slog.String("change_id", msg.ChangeID))

	if err := w.limiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.post(ctx, payload)
		if err == nil {
			log.Info("notification delivered", slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		var rateLimitErr *RateLimitError
		var wait time.Duration
		switch {
		case errors.As(err, &rateLimitErr):
			wait = rateLimitErr.RetryAfter
			log.Warn("rate limit hit, backing off",
				slog.Duration("retry_after", wait), slog.Int("attempt", attempt))
		case !isRetryableError(err):
			log.Error("notification failed with non-retryable error",
				slog.Any("error", err), slog.Int("attempt", attempt))
			return err
		default:
			wait = w.baseDelay * time.Duration(attempt)
			log.Warn("notification failed, retrying",
				slog.Any("error", err), slog.Int("attempt", attempt), slog.Duration("delay", wait))
		}
		if attempt == w.maxAttempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
		}
	}

	log.Error("notification failed after all retries",
		slog.Any("error", lastErr), slog.Int("max_attempts", w.maxAttempts))
	return fmt.Errorf("%s notification failed after %d attempts: %w", w.service, w.maxAttempts, lastErr)
}
