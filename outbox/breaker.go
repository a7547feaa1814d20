package outbox

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

// BreakerConfig controls the circuit breaker placed in front of a dispatcher.
type BreakerConfig struct {
	// Name identifies the breaker in state change logs.
	Name string
	// ConsecutiveFailures trips the breaker. Zero uses the default.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again. Zero uses the default.
	OpenTimeout time.Duration
	// Logger receives state changes.
	Logger Logger
}

// BreakerDispatcher fails fast while the downstream is known to be unhealthy, so claimed rows
// are marked failed and backed off instead of waiting on timeouts one by one.
type BreakerDispatcher struct {
	next    Dispatcher
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerDispatcher wraps next with a circuit breaker.
func NewBreakerDispatcher(next Dispatcher, cfg BreakerConfig) *BreakerDispatcher {
	if next == nil {
		panic("outbox: nil Dispatcher")
	}
	if cfg.Name == "" {
		cfg.Name = "outbox-dispatcher"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = defaultBreakerFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultBreakerTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}

	threshold := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("outbox dispatcher breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerDispatcher{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Dispatch implements Dispatcher.
func (d *BreakerDispatcher) Dispatch(ctx context.Context, event Event) error {
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.next.Dispatch(ctx, event)
	})

	return err
}

// State returns the current breaker state name.
func (d *BreakerDispatcher) State() string {
	return d.breaker.State().String()
}
