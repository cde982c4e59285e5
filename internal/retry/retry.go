// Package retry runs an operation with bounded attempts and exponential
// backoff. Classification of transient errors and the sleep implementation
// are injected so callers control both policy and time.
package retry

import (
	"context"
	"time"
)

// Policy bounds how many times an operation is tried and how long to wait
// between attempts.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first. Values
	// below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration

	// Factor multiplies the delay after each retry. Values below 1 are
	// treated as 1.
	Factor float64
}

// Backoff returns the delay before retry number n, 1-based. Backoff(1) is
// BaseDelay, Backoff(2) is BaseDelay*Factor, and so on.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.BaseDelay)
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	for i := 1; i < n; i++ {
		d *= factor
	}
	return time.Duration(d)
}

// Options configures a Do call.
type Options struct {
	Policy Policy

	// Retryable reports whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(err error) bool

	// DelayHint returns a server-directed wait for the next attempt, such as
	// a Retry-After header. When ok, the hint replaces the computed backoff.
	DelayHint func(err error) (time.Duration, bool)

	// Sleep waits between attempts. Nil uses a timer honoring ctx. Injected
	// by callers that own a test clock.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry observes each scheduled retry for logging.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// Do runs fn until it succeeds, fails with a non-retryable error, exhausts
// the policy's attempts, or ctx ends. It returns fn's last error unwrapped;
// a cancellation during backoff returns the context's error.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	attempts := opts.Policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := opts.Policy.Backoff(attempt - 1)
			if opts.DelayHint != nil {
				if hint, ok := opts.DelayHint(lastErr); ok {
					delay = hint
				}
			}
			if opts.OnRetry != nil {
				opts.OnRetry(lastErr, attempt, delay)
			}
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
		if opts.Retryable != nil && !opts.Retryable(err) {
			return err
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
