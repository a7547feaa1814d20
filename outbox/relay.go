package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Relay runs Consumers in a polling loop, one per worker.
type Relay struct {
	store      *Store
	sessions   SessionFactory
	dispatcher Dispatcher
	cfg        RelayConfig

	pendingMu sync.Mutex
	pendingAt time.Time
}

// NewRelay constructs a Relay with defaults and optional settings. Every worker draws its
// own handle from sessions.
func NewRelay(store *Store, sessions SessionFactory, dispatcher Dispatcher, opts ...RelayOption) *Relay {
	if store == nil {
		panic("outbox: nil Store")
	}
	if sessions == nil {
		panic("outbox: nil SessionFactory")
	}
	if dispatcher == nil {
		panic("outbox: nil Dispatcher")
	}

	var cfg RelayConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Relay{
		store:      store,
		sessions:   sessions,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Run starts the polling loop with the configured number of workers and blocks until ctx is
// canceled or a worker fails.
func (r *Relay) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for i := 0; i < r.cfg.Workers; i++ {
		workerID := i
		group.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					r.cfg.Logger.Error("outbox worker panic", "worker", workerID, "panic", rec)
					err = fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
				}
			}()

			consumer, err := r.newConsumer()
			if err != nil {
				return err
			}
			if err := r.runWorker(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
				r.cfg.Logger.Error("outbox worker error", "worker", workerID, "err", err)

				return err
			}

			return nil
		})
	}

	return group.Wait()
}

// ProcessOnce processes a single batch on a fresh session and reports whether any rows
// were claimed.
func (r *Relay) ProcessOnce(ctx context.Context) (bool, error) {
	consumer, err := r.newConsumer()
	if err != nil {
		return false, err
	}

	claimed, _, err := consumer.runBatch(ctx, r.cfg.BatchSize)
	if err != nil {
		return false, err
	}
	if claimed == 0 {
		r.maybeRecordPending(ctx, consumer)
	}

	return claimed > 0, nil
}

func (r *Relay) newConsumer() (*Consumer, error) {
	opts := append([]ConsumerOption{WithLogger(r.cfg.Logger), WithMetrics(r.cfg.Metrics)}, r.cfg.Consumer...)

	return NewConsumer(r.store, r.sessions(), r.dispatcher, opts...)
}

func (r *Relay) runWorker(ctx context.Context, consumer *Consumer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		claimed, _, err := consumer.runBatch(ctx, r.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return err
		}
		if claimed > 0 {
			continue
		}

		r.maybeRecordPending(ctx, consumer)
		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

func (r *Relay) maybeRecordPending(ctx context.Context, consumer *Consumer) {
	if r.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := r.cfg.Clock.Now()
	r.pendingMu.Lock()
	nextAllowed := r.pendingAt.Add(r.cfg.PendingInterval)
	if !r.pendingAt.IsZero() && now.Before(nextAllowed) {
		r.pendingMu.Unlock()

		return
	}
	r.pendingAt = now
	r.pendingMu.Unlock()

	count, err := r.store.PendingCount(ctx, consumer.handle)
	if err != nil {
		r.cfg.Logger.Warn("outbox pending count failed", "err", err)

		return
	}

	r.cfg.Metrics.SetPending(count)
}
