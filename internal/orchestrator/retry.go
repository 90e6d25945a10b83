package orchestrator

import (
	"context"
	"time"
)

// RetryPolicy describes how an operation is retried: how many attempts, how
// long to wait between them, and which errors are worth retrying at all.
// One policy is applied uniformly to every remote call the orchestrator
// makes instead of ad hoc loops per call site.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int

	// Backoff returns the wait before the given attempt (1-based)
	Backoff func(attempt int) time.Duration

	// Retryable reports whether the error is transient. A non-retryable
	// error aborts immediately regardless of remaining attempts.
	Retryable func(error) bool
}

// LinearBackoff returns a backoff function that waits base*attempt.
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Retry runs fn under the policy. It returns nil on the first success, the
// last error once attempts are exhausted, the error immediately when it is
// classified non-retryable, and ctx.Err() when the context ends during a
// backoff wait.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if policy.Retryable != nil && !policy.Retryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		if err := sleep(ctx, policy.Backoff(attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

// sleep waits for d or until ctx ends, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
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
