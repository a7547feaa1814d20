package outbox

import (
	"time"

	database "github.com/blackcatacademy/blackcat-database"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 50 * time.Millisecond
	defaultWorkers      = 1
	defaultPendingCheck = 0
)

// ConsumerConfig defines how a Consumer dispatches claimed rows.
type ConsumerConfig struct {
	Logger          Logger
	Metrics         Metrics
	DispatchTimeout time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c
}

// ConsumerOption configures Consumer behavior.
type ConsumerOption func(*ConsumerConfig)

// WithLogger sets the consumer logger.
func WithLogger(logger Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the consumer metrics recorder.
func WithMetrics(metrics Metrics) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Metrics = metrics
	}
}

// WithDispatchTimeout sets a per-event dispatch timeout. Zero disables it.
func WithDispatchTimeout(timeout time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DispatchTimeout = timeout
	}
}

// SessionFactory returns a fresh handle that no other goroutine uses.
type SessionFactory func() database.Handle

// RelayConfig defines how the Relay polls and processes records.
type RelayConfig struct {
	BatchSize       int
	PollInterval    time.Duration
	Workers         int
	Clock           Clock
	Logger          Logger
	Metrics         Metrics
	PendingInterval time.Duration
	Consumer        []ConsumerOption
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Clock == nil {
		c.Clock = database.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = defaultPendingCheck
	}

	return c
}

// RelayOption configures Relay behavior.
type RelayOption func(*RelayConfig)

// WithBatchSize sets the number of records processed per batch.
func WithBatchSize(size int) RelayOption {
	return func(c *RelayConfig) {
		c.BatchSize = size
	}
}

// WithPollInterval sets the delay between empty polls.
func WithPollInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PollInterval = interval
	}
}

// WithWorkers sets the number of concurrent polling workers.
func WithWorkers(count int) RelayOption {
	return func(c *RelayConfig) {
		c.Workers = count
	}
}

// WithRelayClock sets the clock used for pending sampling.
func WithRelayClock(clock Clock) RelayOption {
	return func(c *RelayConfig) {
		c.Clock = clock
	}
}

// WithRelayLogger sets the relay logger. Consumers inherit it unless overridden.
func WithRelayLogger(logger Logger) RelayOption {
	return func(c *RelayConfig) {
		c.Logger = logger
	}
}

// WithRelayMetrics sets the relay metrics recorder. Consumers inherit it unless overridden.
func WithRelayMetrics(metrics Metrics) RelayOption {
	return func(c *RelayConfig) {
		c.Metrics = metrics
	}
}

// WithPendingInterval sets the minimum interval between pending count samples.
// Use a positive value to enable sampling or zero to keep it disabled.
// The default is disabled.
func WithPendingInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PendingInterval = interval
	}
}

// WithConsumerOptions passes options to every worker's consumer.
func WithConsumerOptions(opts ...ConsumerOption) RelayOption {
	return func(c *RelayConfig) {
		c.Consumer = append(c.Consumer, opts...)
	}
}
