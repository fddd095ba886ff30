package fetcher

import (
	"errors"
	"fmt"
	"net/http"

	"regwatch/internal/domain/entity"
	"regwatch/internal/resilience/retry"
)

var (
	// ErrInvalidURL indicates the URL is malformed or uses an unsupported scheme.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrPrivateIP indicates the host resolves to a private, loopback or
	// link-local address.
	ErrPrivateIP = errors.New("URL resolves to private IP address")

	// ErrTooManyRedirects indicates the redirect chain exceeded MaxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrBodyTooLarge indicates the response exceeded MaxBodySize.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrTimeout indicates the request did not finish within Timeout.
	ErrTimeout = errors.New("request timeout")

	// ErrRobotsDisallowed indicates robots.txt forbids fetching the path.
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

	// ErrExtractionFailed indicates no text could be extracted from the body.
	ErrExtractionFailed = errors.New("content extraction failed")

	// ErrNotFound indicates the source answered 404 or 410.
	ErrNotFound = errors.New("source not found")
)

// FetchError wraps every failure returned by Fetch with the failure kind the
// retry policy should apply.
type FetchError struct {
	URL        string
	StatusCode int
	Kind       entity.FailureKind
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FailureKind implements the interface retry.KindOf looks for.
func (e *FetchError) FailureKind() entity.FailureKind { return e.Kind }

// newFetchError picks the kind from the sentinel or status code behind err.
func newFetchError(url string, status int, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := retry.KindOf(err)
	switch {
	case errors.Is(err, ErrTimeout):
		kind = entity.FailureTransient
	case errors.Is(err, ErrInvalidURL),
		errors.Is(err, ErrPrivateIP),
		errors.Is(err, ErrTooManyRedirects),
		errors.Is(err, ErrBodyTooLarge),
		errors.Is(err, ErrRobotsDisallowed),
		errors.Is(err, ErrExtractionFailed),
		errors.Is(err, ErrNotFound):
		kind = entity.FailurePermanent
	case status != 0:
		kind = retry.StatusKind(status)
	}
	return &FetchError{URL: url, StatusCode: status, Kind: kind, Err: err}
}

// statusError maps a non-2xx response to an error.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Status)
	}
	return &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
}
