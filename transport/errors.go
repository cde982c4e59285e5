package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// NetworkError wraps a transport-level failure: DNS resolution, connection
// refused, TLS handshake, timeouts. These never carry an HTTP status and are
// always worth retrying.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-2xx response from the server. Message carries the
// server's detail string when the body was parseable. RetryAfter is the
// server-directed wait from a Retry-After header, zero when absent.
type HTTPError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, msg)
}

// ValidationError is a 422 response carrying per-field messages. The request
// itself is malformed, so retrying can never succeed.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s (%s)", e.Message, strings.Join(names, ", "))
}

// FieldMessages returns the messages recorded for a field, nil when the
// field has none.
func (e *ValidationError) FieldMessages(name string) []string {
	return e.Fields[name]
}

// IsCancellation reports whether err stems from the caller abandoning the
// request. Cancellations are swallowed by the sync engine, never cached and
// never surfaced as resource errors.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Retryable reports whether another attempt could plausibly succeed:
// network failures, 5xx responses, and 429 rate limits. Validation errors,
// other client errors, and cancellations are permanent.
func Retryable(err error) bool {
	if err == nil || IsCancellation(err) {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= 500 || httpErr.Status == http.StatusTooManyRequests
	}
	return false
}

// RetryAfterHint extracts a server-directed retry delay from err.
func RetryAfterHint(err error) (time.Duration, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter, true
	}
	return 0, false
}

// StatusOf returns the HTTP status behind err, if any. Validation errors
// report 422.
func StatusOf(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status, true
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return http.StatusUnprocessableEntity, true
	}
	return 0, false
}

// IsUnauthorized reports whether err is a 401 response, the signal that the
// session's credentials are no longer valid.
func IsUnauthorized(err error) bool {
	status, ok := StatusOf(err)
	return ok && status == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	status, ok := StatusOf(err)
	return ok && status == http.StatusNotFound
}
