// Package retry retries transient failures against upstream services
// (liveness provider, sanctions API, LLM endpoint) with exponential
// backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError marks an error that retrying cannot fix, such as a 4xx
// response or a malformed payload.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do stops immediately instead of retrying.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do calls fn up to maxAttempts times. The delay doubles after each failed
// attempt, with +-25% jitter so synchronized callers do not hammer a
// recovering upstream in lockstep. Do returns early when fn succeeds, when
// fn returns a *PermanentError, or when ctx is cancelled during backoff.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}
		if attempt >= maxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(baseDelay << (attempt - 1))):
		}
	}
}

// jittered spreads d over [0.75d, 1.25d].
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := int64(d) / 2
	return d - d/4 + time.Duration(rand.Int64N(spread+1))
}
