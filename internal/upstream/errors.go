package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited marks a transient upstream throttle; the caller may
	// retry after backoff.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrQuotaExhausted marks the upstream project quota being spent for
	// the day. Retrying cannot help until the upstream window resets.
	ErrQuotaExhausted = errors.New("upstream quota exhausted")

	// ErrNotFound marks a well-formed request for a resource the
	// upstream does not have.
	ErrNotFound = errors.New("upstream resource not found")

	// ErrRetryExhausted wraps the last error after the attempt ceiling.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// StatusError carries an unexpected upstream status code.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// classifyStatus maps an upstream status code to the sentinel the rest
// of the system dispatches on. 403 is how the upstream reports a spent
// project quota; 429 is a transient throttle.
func classifyStatus(statusCode int, body string) error {
	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusForbidden:
		return ErrQuotaExhausted
	case http.StatusNotFound:
		return ErrNotFound
	}
	return &StatusError{StatusCode: statusCode, Body: body}
}

// retryable reports whether a classified error is worth another attempt.
// Quota exhaustion and not-found never are; throttles and 5xx are.
func retryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrQuotaExhausted) || errors.Is(err, ErrNotFound) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	// Network-level failures.
	return true
}
