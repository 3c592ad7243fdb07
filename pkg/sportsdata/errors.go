package sportsdata

import (
	"errors"
	"fmt"
)

// ErrRateLimited indicates the upstream returned HTTP 429. The local
// limiter should normally prevent this; seeing it means the provider's
// accounting disagrees with ours.
var ErrRateLimited = errors.New("rate limit exceeded")

// APIError describes a non-2xx upstream response.
type APIError struct {
	StatusCode int
	Body       string

	// Err carries a sentinel (ErrRateLimited, ratelimit.ErrQuotaExceeded)
	// when the status maps to one.
	Err error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.StatusCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if body := truncate(e.Body, 256); body != "" {
		msg += ": " + body
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
