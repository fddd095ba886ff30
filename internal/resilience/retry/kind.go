package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"

	"github.com/sony/gobreaker"

	"regwatch/internal/domain/entity"
)

// Failure kinds re-exported for callers that only import retry.
const (
	Transient = entity.FailureTransient
	Permanent = entity.FailurePermanent
)

// kinded is implemented by errors that know their own failure kind, such as
// fetcher.FetchError and entity.ClassificationError.
type kinded interface {
	FailureKind() entity.FailureKind
}

// KindOf classifies err for the job retry policy.
//
// Errors that carry their own kind win. Timeouts, connection resets, 5xx,
// 408 and 429 are transient; other 4xx, unknown hosts and validation errors
// are permanent. Anything unrecognised is treated as transient so that a
// bounded number of retries happens before the job fails.
func KindOf(err error) entity.FailureKind {
	if err == nil {
		return Transient
	}

	var k kinded
	if errors.As(err, &k) {
		return k.FailureKind()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Transient
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return StatusKind(httpErr.StatusCode)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return Permanent
		}
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return Transient
	}

	if errors.Is(err, entity.ErrValidationFailed) || errors.Is(err, entity.ErrInvalidInput) {
		return Permanent
	}

	return Transient
}

// StatusKind maps an HTTP status code to a failure kind.
func StatusKind(code int) entity.FailureKind {
	switch {
	case code >= 500:
		return Transient
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return Transient
	case code >= 400:
		return Permanent
	default:
		return Transient
	}
}
