// Package retry runs an operation with bounded, jittered exponential backoff.
//
// The outbox and idempotency components never retry on their own: contention is reported as a
// value and database errors propagate. Callers that want to retry a transient failure wrap the
// call with Do.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned when every attempt failed. It wraps the last error.
var ErrExhausted = errors.New("retry: attempts exhausted")

const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
	defaultMultiplier      = 2.0
	defaultJitter          = 0.5
)

// Policy bounds the attempts and the wait between them.
type Policy struct {
	// MaxAttempts counts the first call. Zero uses the default.
	MaxAttempts int
	// InitialInterval is the wait after the first failure. Zero uses the default.
	InitialInterval time.Duration
	// MaxInterval caps a single wait. Zero uses the default.
	MaxInterval time.Duration
	// Multiplier grows the wait after each failure. Values below 1 use the default.
	Multiplier float64
	// Jitter randomizes each wait by +/- the given fraction. Zero uses the default, negative disables.
	Jitter float64
	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns the policy used by zero-value fields.
func DefaultPolicy() Policy {
	return Policy{}.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = defaultInitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = defaultMaxInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaultMultiplier
	}
	switch {
	case p.Jitter == 0:
		p.Jitter = defaultJitter
	case p.Jitter < 0:
		p.Jitter = 0
	case p.Jitter > 1:
		p.Jitter = 1
	}

	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.Jitter
	// Attempts bound the loop, not elapsed time.
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the context ends, or the attempts
// run out. Exhaustion is reported as ErrExhausted joined with the last error.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if fn == nil {
		return zero, errors.New("retry: nil operation")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	policy = policy.withDefaults()

	var (
		attempts  int
		permanent bool
	)
	op := func() (T, error) {
		attempts++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			permanent = true
			return v, backoff.Permanent(perm.err)
		}

		return v, err
	}

	var notify backoff.Notify
	if policy.OnRetry != nil {
		notify = func(err error, wait time.Duration) {
			policy.OnRetry(attempts, err, wait)
		}
	}

	v, err := backoff.RetryNotifyWithData(op, policy.backOff(ctx), notify)
	if err == nil {
		return v, nil
	}
	if permanent {
		return v, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return v, ctxErr
	}

	return v, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
}

// DoErr is Do for operations without a result.
func DoErr(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}
