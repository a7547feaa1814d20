package outbox

import (
	"time"

	database "github.com/blackcatacademy/blackcat-database"
)

const defaultTable = "outbox_events"

type (
	// Logger is the structured logger used by the outbox.
	Logger = database.Logger
	// NopLogger discards log output.
	NopLogger = database.NopLogger
	// Clock supplies the current time.
	Clock = database.Clock
)

// StoreConfig defines store behavior.
type StoreConfig struct {
	Table           string
	Dialect         database.Dialect
	Clock           Clock
	Backoff         RetryBackoff
	ValidatePayload bool
	validateSet     bool
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Dialect == 0 {
		c.Dialect = database.MySQL
	}
	if c.Clock == nil {
		c.Clock = database.SystemClock{}
	}
	if c.Backoff == nil {
		c.Backoff = ExponentialBackoff(defaultRetryBase, defaultRetryMax, false)
	}
	if !c.validateSet {
		c.ValidatePayload = true
	}

	return c
}

// StoreOption configures the store.
type StoreOption func(*StoreConfig)

// WithTable sets the outbox table name.
func WithTable(name string) StoreOption {
	return func(c *StoreConfig) {
		c.Table = name
	}
}

// WithDialect sets the SQL dialect. The default is MySQL.
func WithDialect(d database.Dialect) StoreOption {
	return func(c *StoreConfig) {
		c.Dialect = d
	}
}

// WithClock sets the time source used by the store.
func WithClock(clock Clock) StoreOption {
	return func(c *StoreConfig) {
		c.Clock = clock
	}
}

// WithRetryBackoff sets exponential backoff for failed records. A zero base makes failed
// records claimable again on the next poll.
func WithRetryBackoff(base, max time.Duration) StoreOption {
	return func(c *StoreConfig) {
		c.Backoff = ExponentialBackoff(base, max, false)
	}
}

// WithRetryPolicy sets a custom backoff function.
func WithRetryPolicy(backoff RetryBackoff) StoreOption {
	return func(c *StoreConfig) {
		c.Backoff = backoff
	}
}

// WithValidatePayload enables or disables JSON validation on insert.
func WithValidatePayload(enabled bool) StoreOption {
	return func(c *StoreConfig) {
		c.ValidatePayload = enabled
		c.validateSet = true
	}
}
