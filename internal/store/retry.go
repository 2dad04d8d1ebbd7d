package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"uptimemesh/internal/store/corrosion"
)

// RetryPolicy is the per-call retry budget:
// default 3 retries, exponential backoff from 50ms to 400ms.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is the documented default.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     400 * time.Millisecond,
}

// withRetry runs fn, retrying on transient (node-unavailable) errors up to
// policy.MaxRetries times with exponential backoff that starts at
// InitialInterval and is capped at MaxInterval before the backoff
// library's default ±50% jitter is applied. Non-transient errors (malformed rows,
// conflicts) are never retried — the caller already knows they won't
// change on redelivery.
func withRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall-clock elapsed time

	bounded := backoff.WithContext(backoff.WithMaxRetries(b, policy.MaxRetries), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, corrosion.ErrUnavailable) {
			return err // transient: retry
		}
		return backoff.Permanent(err)
	}, bounded)
}
