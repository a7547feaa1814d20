package database

import (
	"context"
	"errors"
	"fmt"
)

// Transact runs fn inside a transaction on h. The transaction is committed when fn returns nil
// and rolled back when fn returns an error or panics. There are no retry semantics: retrying
// is the caller's concern.
func Transact(ctx context.Context, h Handle, fn func(ctx context.Context) error) (err error) {
	if h == nil {
		return ErrHandleRequired
	}
	if err := h.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if rec := recover(); rec != nil {
			_ = h.Rollback()
			panic(rec)
		}
	}()

	if err := fn(ctx); err != nil {
		if rollbackErr := h.Rollback(); rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("database: rollback failed: %w", rollbackErr))
		}

		return err
	}

	return h.Commit()
}
