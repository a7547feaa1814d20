package outbox

import "context"

// Dispatcher delivers a single event downstream.
type Dispatcher interface {
	// Dispatch delivers the event and returns an error on failure.
	Dispatch(ctx context.Context, event Event) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, event Event) error

// Dispatch implements Dispatcher.
func (fn DispatcherFunc) Dispatch(ctx context.Context, event Event) error {
	return fn(ctx, event)
}
