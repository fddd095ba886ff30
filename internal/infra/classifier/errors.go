package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"regwatch/internal/domain/entity"
	"regwatch/internal/resilience/retry"
)

var (
	// ErrSchemaMismatch indicates the model answer is not the expected JSON
	// object. The answer is discarded and the change is retried later.
	ErrSchemaMismatch = errors.New("classification schema mismatch")

	// ErrEmptyResponse indicates the provider returned no text.
	ErrEmptyResponse = errors.New("empty classifier response")

	// ErrCircuitOpen indicates the provider breaker rejected the call.
	ErrCircuitOpen = errors.New("classifier circuit breaker open")
)

// Failure codes carried by entity.ClassificationError.
const (
	CodeEmptyContent   = "empty_content"
	CodeSchemaMismatch = "schema_mismatch"
	CodeEmptyResponse  = "empty_response"
	CodeCircuitOpen    = "circuit_open"
	CodeTimeout        = "timeout"
	CodeRateLimited    = "rate_limited"
	CodeUnavailable    = "unavailable"
	CodeRejected       = "rejected"
	CodeProviderError  = "provider_error"
)

// failure turns any error from a provider call into the Err arm of a
// classification result.
func failure(err error) entity.ClassificationResult {
	code, kind := classifyError(err)
	return entity.ClassificationFailed(kind, code, err.Error())
}

func classifyError(err error) (string, entity.FailureKind) {
	var httpErr *retry.HTTPError
	switch {
	case errors.Is(err, ErrSchemaMismatch):
		return CodeSchemaMismatch, entity.FailureTransient
	case errors.Is(err, ErrEmptyResponse):
		return CodeEmptyResponse, entity.FailureTransient
	case errors.Is(err, ErrCircuitOpen),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return CodeCircuitOpen, entity.FailureTransient
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout, entity.FailureTransient
	case errors.As(err, &httpErr):
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return CodeRateLimited, entity.FailureTransient
		case httpErr.StatusCode >= 500:
			return CodeUnavailable, entity.FailureTransient
		default:
			return CodeRejected, retry.StatusKind(httpErr.StatusCode)
		}
	default:
		return CodeProviderError, retry.KindOf(err)
	}
}

// providerStatusError keeps the status code of a vendor SDK error visible to
// retry.KindOf.
func providerStatusError(provider string, status int, err error) error {
	return fmt.Errorf("%s api error: %w", provider,
		&retry.HTTPError{StatusCode: status, Message: err.Error()})
}
