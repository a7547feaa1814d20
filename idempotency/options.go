package idempotency

import (
	database "github.com/blackcatacademy/blackcat-database"
)

const defaultTable = "idempotency_keys"

// SQLConfig defines SQL store behavior.
type SQLConfig struct {
	Table   string
	Dialect database.Dialect
	Clock   Clock
}

func (c SQLConfig) withDefaults() SQLConfig {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Dialect == 0 {
		c.Dialect = database.MySQL
	}
	if c.Clock == nil {
		c.Clock = database.SystemClock{}
	}

	return c
}

// SQLOption configures the SQL store.
type SQLOption func(*SQLConfig)

// WithTable sets the idempotency table name.
func WithTable(name string) SQLOption {
	return func(c *SQLConfig) {
		c.Table = name
	}
}

// WithDialect sets the SQL dialect. The default is MySQL.
func WithDialect(d database.Dialect) SQLOption {
	return func(c *SQLConfig) {
		c.Dialect = d
	}
}

// WithClock sets the time source.
func WithClock(clock Clock) SQLOption {
	return func(c *SQLConfig) {
		c.Clock = clock
	}
}
