// Package retry runs an upstream call under a bounded retry budget with
// exponential backoff. Every attempt gets its own timeout.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a call. Attempts counts the first try.
type Policy struct {
	Attempts       int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is three attempts with a 5s per-attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       3,
		AttemptTimeout: 5 * time.Second,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Budget is the longest Do can run under p, counting jittered backoff
// between attempts. Zero means unbounded: no per-attempt timeout is set.
func (p Policy) Budget() time.Duration {
	if p.AttemptTimeout <= 0 {
		return 0
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = backoff.DefaultMaxInterval
	}
	jittered := time.Duration(float64(maxBackoff) * (1 + backoff.DefaultRandomizationFactor))
	return time.Duration(attempts)*p.AttemptTimeout + time.Duration(attempts-1)*jittered
}

// Do calls op until it succeeds, the budget is exhausted, ctx is done, or
// retryable reports false for the returned error. The last error is returned.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		eb.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		eb.MaxInterval = p.MaxBackoff
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}
		err := op(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || (retryable != nil && !retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
