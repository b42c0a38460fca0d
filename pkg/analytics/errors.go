package analytics

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter marks caller input rejected before any data access
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUpstreamUnavailable marks a failed record or rollup store call; callers may retry
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

func invalidParam(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// upstream wraps a store failure so it is both retryable and still matches the original cause
func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, err)
}

// IsRetryable reports whether err came from an unavailable or cancelled upstream
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// IsInvalidParameter reports whether err was caused by bad caller input
func IsInvalidParameter(err error) bool {
	return errors.Is(err, ErrInvalidParameter)
}
