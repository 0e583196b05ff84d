package errors

import (
	"fmt"
	"net/http"
	"time"
)

// HTTPError is an upstream response whose status the caller treats as a
// failure.
type HTTPError struct {
	StatusCode int
	Message    string

	// Endpoint identifies the upstream, normally just its host.
	Endpoint string

	// RetryAfter is the delay the upstream asked for, if any. Retry loops
	// wait at least this long before the next attempt.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the status may change on a later attempt:
// 408, 425, 429, and every 5xx except 501 Not Implemented.
func (e *HTTPError) Transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	case http.StatusNotImplemented:
		return false
	}
	return e.StatusCode >= 500
}

// TimeoutError reports an operation that exceeded its time budget.
type TimeoutError struct {
	Operation string
	Duration  string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}
