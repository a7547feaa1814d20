package replica

import (
	"time"

	database "github.com/blackcatacademy/blackcat-database"
)

const defaultStickyWindow = 2 * time.Second

// Config defines router behavior.
type Config struct {
	// StickyWindow is how long reads of a correlation stay on the primary after its last
	// write. Zero disables stickiness.
	StickyWindow time.Duration
	Clock        database.Clock
	Logger       database.Logger
	Metrics      Metrics
	windowSet    bool
}

func (c Config) withDefaults() Config {
	if !c.windowSet {
		c.StickyWindow = defaultStickyWindow
	}
	if c.StickyWindow < 0 {
		c.StickyWindow = 0
	}
	if c.Clock == nil {
		c.Clock = database.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = database.NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c
}

// Option configures the router.
type Option func(*Config)

// WithStickyWindow sets the read-your-writes window. The default is two seconds; zero
// disables stickiness.
func WithStickyWindow(window time.Duration) Option {
	return func(c *Config) {
		c.StickyWindow = window
		c.windowSet = true
	}
}

// WithClock sets the time source.
func WithClock(clock database.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the router logger.
func WithLogger(logger database.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the routing metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}
