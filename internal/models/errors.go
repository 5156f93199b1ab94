package models

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy of the recall core. Source-level failures never
// propagate past the fusion engine; only rate-limit violations and
// request-shape validation errors become client-visible rejections.
var (
	// ErrRateLimited marks per-minute budget or cooldown rejections.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstreamTimeout marks an external store or embedding call that
	// exceeded its deadline. Retryable, distinct from generic failures.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrQuotaExceeded marks an embedding provider quota or billing
	// error. Recall degrades to keyword/graph sources instead of failing.
	ErrQuotaExceeded = errors.New("provider quota exceeded")

	// ErrStoreUnavailable marks an unreachable backing store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidRequest marks a request that fails shape validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// RateLimitError carries the retry-after hint for a rejected request.
type RateLimitError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", e.Reason, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
