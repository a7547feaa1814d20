package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	database "github.com/blackcatacademy/blackcat-database"
)

// Consumer claims pending rows, dispatches them and settles each one inside a single
// transaction on its own handle. A crash before commit releases the row locks so the
// rows are claimed again by the next poll.
type Consumer struct {
	store      *Store
	handle     database.Handle
	dispatcher Dispatcher
	cfg        ConsumerConfig
}

// NewConsumer constructs a consumer. The handle must not be shared with request code:
// the consumer opens and closes transactions on it.
func NewConsumer(store *Store, handle database.Handle, dispatcher Dispatcher, opts ...ConsumerOption) (*Consumer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if handle == nil {
		return nil, ErrHandleRequired
	}
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}

	var cfg ConsumerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer{
		store:      store,
		handle:     handle,
		dispatcher: dispatcher,
		cfg:        cfg.withDefaults(),
	}, nil
}

// RunOnce processes at most limit rows and returns how many were acknowledged.
//
// Dispatcher errors and panics are recorded on the row and never returned. Database errors
// roll the batch back and are returned. Cancelling ctx during dispatch rolls the batch back
// as well, leaving every claimed row pending.
func (c *Consumer) RunOnce(ctx context.Context, limit int) (int, error) {
	claimed, acked, err := c.runBatch(ctx, limit)
	if err != nil {
		return 0, err
	}
	if claimed > 0 {
		c.cfg.Logger.Debug("outbox batch processed", "claimed", claimed, "acked", acked)
	}

	return acked, nil
}

func (c *Consumer) runBatch(ctx context.Context, limit int) (int, int, error) {
	if limit <= 0 {
		return 0, 0, ErrInvalidBatchSize
	}
	if err := c.handle.Begin(ctx); err != nil {
		return 0, 0, fmt.Errorf("outbox: begin failed: %w", err)
	}

	records, err := c.store.ClaimBatch(ctx, c.handle, limit)
	if err != nil {
		return 0, 0, c.rollbackWith(err)
	}
	if len(records) == 0 {
		if err := c.handle.Rollback(); err != nil {
			return 0, 0, fmt.Errorf("outbox: rollback failed: %w", err)
		}

		return 0, 0, nil
	}

	start := time.Now()
	defer func() {
		c.cfg.Metrics.ObserveBatchDuration(time.Since(start))
	}()
	c.cfg.Metrics.AddClaimed(len(records))

	acked, failed := 0, 0
	for i := range records {
		record := records[i]
		dispatchErr := c.dispatch(ctx, record)
		if dispatchErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, 0, c.rollbackWith(ctxErr)
			}
			c.cfg.Logger.Warn("outbox dispatch failed",
				"id", record.ID, "event_type", record.EventType, "attempt", record.FailCount+1, "err", dispatchErr)
			if err := c.store.Fail(ctx, c.handle, record.ID, dispatchErr.Error(), 1); err != nil {
				return 0, 0, c.rollbackWith(err)
			}
			failed++

			continue
		}

		if err := c.store.Ack(ctx, c.handle, record.ID); err != nil {
			return 0, 0, c.rollbackWith(err)
		}
		acked++
	}

	// A failed commit has already been rolled back by the driver.
	if err := c.handle.Commit(); err != nil {
		return 0, 0, fmt.Errorf("outbox: commit failed: %w", err)
	}

	c.cfg.Metrics.AddAcked(acked)
	c.cfg.Metrics.AddFailed(failed)

	return len(records), acked, nil
}

func (c *Consumer) dispatch(ctx context.Context, record Record) (err error) {
	event, err := record.Event()
	if err != nil {
		return err
	}

	dispatchCtx := ctx
	if c.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, c.cfg.DispatchTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrDispatchPanic, rec)
		}
	}()

	return c.dispatcher.Dispatch(dispatchCtx, event)
}

func (c *Consumer) rollbackWith(err error) error {
	rollbackErr := c.handle.Rollback()
	if rollbackErr == nil {
		return err
	}

	return errors.Join(err, fmt.Errorf("outbox rollback failed: %w", rollbackErr))
}
