package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/blackcatacademy/blackcat-database/outbox"
)

func TestBreakerDispatcherTripsAndRecovers(t *testing.T) {
	ctx := context.Background()
	downstreamErr := errors.New("broker down")
	calls := 0
	healthy := false
	next := outbox.DispatcherFunc(func(context.Context, outbox.Event) error {
		calls++
		if healthy {
			return nil
		}
		return downstreamErr
	})

	breaker := outbox.NewBreakerDispatcher(next, outbox.BreakerConfig{
		ConsecutiveFailures: 2,
		OpenTimeout:         20 * time.Millisecond,
	})
	require.Equal(t, "closed", breaker.State())

	require.ErrorIs(t, breaker.Dispatch(ctx, outbox.Event{ID: 1}), downstreamErr)
	require.ErrorIs(t, breaker.Dispatch(ctx, outbox.Event{ID: 1}), downstreamErr)
	require.Equal(t, "open", breaker.State())

	require.ErrorIs(t, breaker.Dispatch(ctx, outbox.Event{ID: 1}), gobreaker.ErrOpenState)
	require.Equal(t, 2, calls)

	healthy = true
	require.Eventually(t, func() bool {
		return breaker.Dispatch(ctx, outbox.Event{ID: 1}) == nil
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "closed", breaker.State())
}

func TestBreakerFailuresAreRecordedOnRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, outbox.WithRetryBackoff(0, 0))
	first := f.insert(t, "a", `{}`)
	second := f.insert(t, "b", `{}`)

	breaker := outbox.NewBreakerDispatcher(outbox.DispatcherFunc(func(context.Context, outbox.Event) error {
		return errors.New("broker down")
	}), outbox.BreakerConfig{ConsecutiveFailures: 1, OpenTimeout: time.Hour})
	consumer := newConsumer(t, f, breaker)

	acked, err := consumer.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, acked)
	require.Equal(t, "broker down", f.get(t, first).LastError)
	require.Equal(t, gobreaker.ErrOpenState.Error(), f.get(t, second).LastError)
}
