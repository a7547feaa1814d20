package outbox_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	database "github.com/blackcatacademy/blackcat-database"
	"github.com/blackcatacademy/blackcat-database/internal/testutil"
	"github.com/blackcatacademy/blackcat-database/outbox"
	"github.com/blackcatacademy/blackcat-database/sqldb"
)

// leakOptions must be evaluated when the test starts so IgnoreCurrent sees the baseline.
func leakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	}
}

func sessions(h *sqldb.Handle) outbox.SessionFactory {
	return func() database.Handle {
		return h.Session()
	}
}

func TestNewRelayPanicsOnMissingDependencies(t *testing.T) {
	f := newFixture(t)
	dispatcher := &recordingDispatcher{}

	require.Panics(t, func() { outbox.NewRelay(nil, sessions(f.handle), dispatcher) })
	require.Panics(t, func() { outbox.NewRelay(f.store, nil, dispatcher) })
	require.Panics(t, func() { outbox.NewRelay(f.store, sessions(f.handle), nil) })
}

func TestRelayProcessOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.insert(t, "a", `{}`)
	f.insert(t, "b", `{}`)
	f.insert(t, "c", `{}`)
	dispatcher := &recordingDispatcher{}
	relay := outbox.NewRelay(f.store, sessions(f.handle), dispatcher, outbox.WithBatchSize(2))

	processed, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, dispatcher.events, 2)

	processed, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, dispatcher.events, 3)

	processed, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	require.False(t, processed)
}

func TestRelaySamplesPendingWhenIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	failing := f.insert(t, "now", `{}`)
	_, err := f.store.Insert(ctx, f.handle, outbox.Entry{
		EventType:   "future",
		Payload:     []byte(`{}`),
		AvailableAt: baseTime.Add(time.Hour),
	})
	require.NoError(t, err)

	metrics := &recordingMetrics{}
	clock := newManualClock()
	relay := outbox.NewRelay(f.store, sessions(f.handle), &recordingDispatcher{fail: map[int64]error{failing: errors.New("down")}},
		outbox.WithRelayMetrics(metrics),
		outbox.WithRelayClock(clock),
		outbox.WithPendingInterval(time.Minute),
	)

	processed, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	processed, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	require.False(t, processed)
	require.Equal(t, []int{2}, metrics.snapshot().pending)

	_, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{2}, metrics.snapshot().pending)

	clock.Advance(time.Minute)
	_, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, metrics.snapshot().pending)
}

func TestRelayRunDrainsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions()...)

	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.insert(t, "user.created", `{"id":1}`)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	metrics := &recordingMetrics{onAck: func(total int) {
		if total >= 5 {
			cancel()
		}
	}}
	var delivered atomic.Int64
	relay := outbox.NewRelay(f.store, sessions(f.handle),
		outbox.DispatcherFunc(func(context.Context, outbox.Event) error {
			delivered.Add(1)
			return nil
		}),
		outbox.WithWorkers(2),
		outbox.WithBatchSize(2),
		outbox.WithPollInterval(5*time.Millisecond),
		outbox.WithRelayMetrics(metrics),
	)

	done := make(chan error, 1)
	go func() {
		done <- relay.Run(ctx)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}

	require.EqualValues(t, 5, delivered.Load())
	count, err := f.store.PendingCount(context.Background(), f.handle)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRelayRunReturnsWorkerError(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions()...)

	f := newFixture(t)
	broken := sqldb.MustNew(testutil.OpenSQLite(t))
	relay := outbox.NewRelay(f.store, sessions(broken), &recordingDispatcher{},
		outbox.WithPollInterval(time.Millisecond),
	)

	err := relay.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "outbox: claim failed")
}

func TestRelayRunRecoversWorkerPanic(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions()...)

	f := newFixture(t)
	relay := outbox.NewRelay(f.store, func() database.Handle {
		panic("no sessions left")
	}, &recordingDispatcher{})

	err := relay.Run(context.Background())
	require.ErrorIs(t, err, outbox.ErrWorkerPanic)
}
