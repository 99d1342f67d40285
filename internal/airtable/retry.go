package airtable

import (
	"context"
	"time"
)

// RetryPolicy bounds every directory-store call: a fixed number of attempts,
// a per-attempt timeout enforced by context cancellation, and a backoff
// delay between attempts. Transport errors are retried; a non-2xx HTTP
// response is returned to the caller without retry (the caller decides).
type RetryPolicy struct {
	Attempts          int
	PerAttemptTimeout time.Duration
	Backoff           func(attempt int) time.Duration
}

// DefaultRetryPolicy returns the standard policy: 3 attempts, 10s per
// attempt, linear backoff (attempt index × 1s).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:          3,
		PerAttemptTimeout: 10 * time.Second,
		Backoff:           LinearBackoff(time.Second),
	}
}

// LinearBackoff returns a backoff function growing linearly with the
// 1-based attempt index: step, 2×step, 3×step, ...
func LinearBackoff(step time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return time.Duration(attempt) * step
	}
}

// normalize fills zero-valued fields with the defaults so a partially
// configured policy still behaves sanely.
func (p RetryPolicy) normalize() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.PerAttemptTimeout <= 0 {
		p.PerAttemptTimeout = 10 * time.Second
	}
	if p.Backoff == nil {
		p.Backoff = LinearBackoff(time.Second)
	}
	return p
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
