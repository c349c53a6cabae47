package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy bounds how often a remote call is repeated.
type RetryPolicy struct {
	// MaxAttempts counts every invocation, including the first.
	MaxAttempts int
	// Interval is the wait after an ordinary failure.
	Interval time.Duration
	// RateLimitWait replaces Interval after a rate-limited failure.
	RateLimitWait time.Duration
}

// DefaultRetryPolicy returns ten attempts one second apart with a one minute
// pause after rate limiting.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   10,
		Interval:      time.Second,
		RateLimitWait: 60 * time.Second,
	}
}

// UpstreamError is a non-2xx answer from a remote provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, body)
}

// Unwrap maps the status code to the sentinel taxonomy.
func (e *UpstreamError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrUpstreamRateLimit
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode >= 500:
		return ErrUpstreamTimeout
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode >= 400:
		return ErrInvalidArgument
	default:
		return ErrInternal
	}
}

// Retryable reports whether repeating the same request may succeed.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

// IsRateLimited reports whether err carries a 429 status anywhere in its chain.
func IsRateLimited(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsPermanent reports whether retrying err cannot help: retries were declared
// exhausted, the request itself was rejected, or the target does not exist.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return !ue.Retryable()
	}
	return errors.Is(err, ErrRetriesExhausted) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotFound)
}

// ParseRetryAfter reads a Retry-After header expressed in seconds.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
