package webapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrMalformedPayload is returned when a response body is not the expected
// OData collection shape.
var ErrMalformedPayload = errors.New("malformed Web API payload")

// APIError is a non-2xx response from the Web API.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
	RequestID  string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "web api returned %d %s", e.Status, http.StatusText(e.Status))
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, "; retry after %s", e.RetryAfter)
	}
	return b.String()
}

// IsThrottled reports service protection limits: 429, or 503 with Retry-After.
func (e *APIError) IsThrottled() bool {
	if e == nil {
		return false
	}
	return e.Status == http.StatusTooManyRequests || (e.Status == http.StatusServiceUnavailable && e.RetryAfter > 0)
}

// IsThrottled unwraps err and reports whether it is a throttling response and
// how long the server asked to wait.
func IsThrottled(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsThrottled() {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// IsUnauthorized reports a 401 or 403 response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
