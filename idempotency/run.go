package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Run executes fn at most once for key.
//
// When this call claims the key, fn runs and the key is committed with fn's JSON-encoded
// result, or failed with fn's error. A panic in fn fails the key before it propagates.
// When the key was already claimed, fn does not run and the returned error is an
// *AlreadyClaimedError (errors.Is ErrAlreadyClaimed) carrying the stored record, so callers
// can replay a previous result.
func Run[T any](ctx context.Context, store Store, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (result T, err error) {
	owned, err := store.Begin(ctx, key, ttl)
	if err != nil {
		return result, err
	}
	if !owned {
		record, getErr := store.Get(ctx, key)
		if getErr != nil {
			return result, getErr
		}

		return result, &AlreadyClaimedError{Key: key, Record: record}
	}

	defer func() {
		if rec := recover(); rec != nil {
			_ = store.Fail(context.WithoutCancel(ctx), key, fmt.Sprintf("panic: %v", rec))
			panic(rec)
		}
	}()

	result, err = fn(ctx)
	if err != nil {
		if failErr := store.Fail(context.WithoutCancel(ctx), key, err.Error()); failErr != nil {
			return result, errors.Join(err, failErr)
		}

		return result, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		marshalErr := fmt.Errorf("idempotency: marshal result: %w", err)
		if failErr := store.Fail(context.WithoutCancel(ctx), key, marshalErr.Error()); failErr != nil {
			return result, errors.Join(marshalErr, failErr)
		}

		return result, marshalErr
	}
	if err := store.Commit(context.WithoutCancel(ctx), key, raw); err != nil {
		return result, err
	}

	return result, nil
}
