package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blackcatacademy/blackcat-database/internal/testutil"
	"github.com/blackcatacademy/blackcat-database/outbox"
	"github.com/blackcatacademy/blackcat-database/sqldb"
)

type recordingDispatcher struct {
	events []outbox.Event
	fail   map[int64]error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event outbox.Event) error {
	d.events = append(d.events, event)
	if err, ok := d.fail[event.ID]; ok {
		return err
	}

	return nil
}

func newConsumer(t *testing.T, f fixture, dispatcher outbox.Dispatcher, opts ...outbox.ConsumerOption) *outbox.Consumer {
	t.Helper()

	consumer, err := outbox.NewConsumer(f.store, f.handle.Session(), dispatcher, opts...)
	require.NoError(t, err)

	return consumer
}

func TestNewConsumerRequiresDependencies(t *testing.T) {
	f := newFixture(t)
	dispatcher := &recordingDispatcher{}

	_, err := outbox.NewConsumer(nil, f.handle, dispatcher)
	require.ErrorIs(t, err, outbox.ErrStoreRequired)
	_, err = outbox.NewConsumer(f.store, nil, dispatcher)
	require.ErrorIs(t, err, outbox.ErrHandleRequired)
	_, err = outbox.NewConsumer(f.store, f.handle, nil)
	require.ErrorIs(t, err, outbox.ErrDispatcherRequired)
}

func TestConsumerDeliversAndAcks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.insert(t, "user.created", `{"id":1}`)
	dispatcher := &recordingDispatcher{}
	consumer := newConsumer(t, f, dispatcher)

	acked, err := consumer.RunOnce(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 1, acked)

	require.Len(t, dispatcher.events, 1)
	event := dispatcher.events[0]
	require.Equal(t, id, event.ID)
	require.Equal(t, "user.created", event.EventType)
	require.Equal(t, 1, event.Attempt)
	var payload struct {
		ID int `json:"id"`
	}
	require.NoError(t, event.Decode(&payload))
	require.Equal(t, 1, payload.ID)

	require.Equal(t, outbox.StatusAcked, f.get(t, id).Status())

	acked, err = consumer.RunOnce(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, acked)
	require.Len(t, dispatcher.events, 1)
}

func TestConsumerRecordsDispatchFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, outbox.WithRetryBackoff(0, 0))
	first := f.insert(t, "a", `{}`)
	second := f.insert(t, "b", `{}`)
	third := f.insert(t, "c", `{}`)
	dispatcher := &recordingDispatcher{fail: map[int64]error{second: errors.New("broker unavailable")}}
	metrics := &recordingMetrics{}
	consumer := newConsumer(t, f, dispatcher, outbox.WithMetrics(metrics))

	acked, err := consumer.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 2, acked)
	require.Equal(t, []int64{first, second, third}, eventIDs(dispatcher.events))

	failed := f.get(t, second)
	require.Equal(t, outbox.StatusPending, failed.Status())
	require.Equal(t, 1, failed.FailCount)
	require.Equal(t, "broker unavailable", failed.LastError)
	require.Equal(t, outbox.StatusAcked, f.get(t, first).Status())
	require.Equal(t, outbox.StatusAcked, f.get(t, third).Status())

	snap := metrics.snapshot()
	require.Equal(t, 1, snap.batches)
	require.Equal(t, 3, snap.claimed)
	require.Equal(t, 2, snap.acked)
	require.Equal(t, 1, snap.failed)

	delete(dispatcher.fail, second)
	acked, err = consumer.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, acked)
	require.Equal(t, 2, dispatcher.events[len(dispatcher.events)-1].Attempt)
}

func TestConsumerRecoversDispatcherPanic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.insert(t, "user.created", `{"id":1}`)
	consumer := newConsumer(t, f, outbox.DispatcherFunc(func(context.Context, outbox.Event) error {
		panic("kaboom")
	}))

	acked, err := consumer.RunOnce(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, acked)

	record := f.get(t, id)
	require.Equal(t, 1, record.FailCount)
	require.Contains(t, record.LastError, outbox.ErrDispatchPanic.Error())
	require.Contains(t, record.LastError, "kaboom")
}

func TestConsumerRecordsInvalidPayload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, outbox.WithValidatePayload(false))
	id := f.insert(t, "raw", "not json")
	dispatcher := &recordingDispatcher{}
	consumer := newConsumer(t, f, dispatcher)

	acked, err := consumer.RunOnce(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, acked)
	require.Empty(t, dispatcher.events)

	record := f.get(t, id)
	require.Equal(t, 1, record.FailCount)
	require.Equal(t, outbox.ErrInvalidPayload.Error(), record.LastError)
}

func TestConsumerCancellationRollsBack(t *testing.T) {
	f := newFixture(t)
	first := f.insert(t, "a", `{}`)
	second := f.insert(t, "b", `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	consumer := newConsumer(t, f, outbox.DispatcherFunc(func(ctx context.Context, _ outbox.Event) error {
		calls++
		if calls == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}))

	_, err := consumer.RunOnce(ctx, 5)
	require.ErrorIs(t, err, context.Canceled)

	for _, id := range []int64{first, second} {
		record := f.get(t, id)
		require.Equal(t, outbox.StatusPending, record.Status())
		require.Zero(t, record.FailCount)
	}
}

func TestConsumerDispatchTimeoutIsFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.insert(t, "slow", `{}`)
	consumer := newConsumer(t, f, outbox.DispatcherFunc(func(ctx context.Context, _ outbox.Event) error {
		<-ctx.Done()
		return ctx.Err()
	}), outbox.WithDispatchTimeout(10*time.Millisecond))

	acked, err := consumer.RunOnce(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, acked)
	require.Equal(t, context.DeadlineExceeded.Error(), f.get(t, id).LastError)
}

func TestConsumerPropagatesDatabaseErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	handle := sqldb.MustNew(testutil.OpenSQLite(t))
	consumer, err := outbox.NewConsumer(f.store, handle, &recordingDispatcher{})
	require.NoError(t, err)

	_, err = consumer.RunOnce(ctx, 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "outbox: claim failed")
	require.False(t, handle.InTransaction())

	_, err = consumer.RunOnce(ctx, 0)
	require.ErrorIs(t, err, outbox.ErrInvalidBatchSize)
}

func TestConsumerLeavesHandleIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.insert(t, "a", `{}`)
	handle := f.handle.Session()
	consumer, err := outbox.NewConsumer(f.store, handle, &recordingDispatcher{})
	require.NoError(t, err)

	_, err = consumer.RunOnce(ctx, 5)
	require.NoError(t, err)
	require.False(t, handle.InTransaction())

	_, err = consumer.RunOnce(ctx, 5)
	require.NoError(t, err)
	require.False(t, handle.InTransaction())
}

func eventIDs(events []outbox.Event) []int64 {
	ids := make([]int64, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}

	return ids
}
