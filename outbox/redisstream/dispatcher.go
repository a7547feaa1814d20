// Package redisstream appends outbox events to Redis streams.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blackcatacademy/blackcat-database/outbox"
)

const defaultPrefix = "outbox:"

// Stream entry field names.
const (
	FieldID             = "id"
	FieldEventType      = "event_type"
	FieldPayload        = "payload"
	FieldTraceID        = "trace_id"
	FieldTenant         = "tenant"
	FieldAggregateTable = "aggregate_table"
	FieldAggregateID    = "aggregate_id"
	FieldAttempt        = "attempt"
	FieldCreatedAt      = "created_at"
)

// ErrClientRequired is returned when no client is supplied.
var ErrClientRequired = errors.New("redisstream: client is required")

// XAdder is the subset of redis.Cmdable the dispatcher needs.
type XAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Config controls stream naming and trimming.
type Config struct {
	// Prefix is prepended to the routing key or event type.
	Prefix string
	// MaxLen trims streams to about this many entries. Zero disables trimming.
	MaxLen int64
	// Approx allows Redis to trim lazily.
	Approx bool
}

// Option configures the dispatcher.
type Option func(*Config)

// WithPrefix sets the stream name prefix.
func WithPrefix(prefix string) Option {
	return func(cfg *Config) {
		cfg.Prefix = prefix
	}
}

// WithMaxLen caps stream length on every append.
func WithMaxLen(maxLen int64, approx bool) Option {
	return func(cfg *Config) {
		cfg.MaxLen = maxLen
		cfg.Approx = approx
	}
}

// Dispatcher implements outbox.Dispatcher with XADD.
type Dispatcher struct {
	client XAdder
	cfg    Config
}

var _ outbox.Dispatcher = (*Dispatcher)(nil)

// New returns a dispatcher appending through client.
func New(client XAdder, opts ...Option) (*Dispatcher, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	cfg := Config{Prefix: defaultPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.MaxLen < 0 {
		return nil, fmt.Errorf("redisstream: max length must be >= 0")
	}

	return &Dispatcher{client: client, cfg: cfg}, nil
}

// Stream returns the stream name for event.
func (d *Dispatcher) Stream(event outbox.Event) string {
	name := event.RoutingKey
	if name == "" {
		name = event.EventType
	}

	return d.cfg.Prefix + name
}

// Dispatch implements outbox.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, event outbox.Event) error {
	stream := d.Stream(event)
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: d.cfg.MaxLen,
		Approx: d.cfg.Approx,
		ID:     "*",
		Values: fields(event),
	}
	if err := d.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redisstream: append event %d to %s: %w", event.ID, stream, err)
	}

	return nil
}

func fields(event outbox.Event) map[string]any {
	values := map[string]any{
		FieldID:        strconv.FormatInt(event.ID, 10),
		FieldEventType: event.EventType,
		FieldPayload:   string(event.Payload),
		FieldAttempt:   strconv.Itoa(event.Attempt),
	}
	if !event.CreatedAt.IsZero() {
		values[FieldCreatedAt] = event.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	optional := map[string]string{
		FieldTraceID:        event.TraceID,
		FieldTenant:         event.Tenant,
		FieldAggregateTable: event.AggregateTable,
		FieldAggregateID:    event.AggregateID,
	}
	for k, v := range optional {
		if v != "" {
			values[k] = v
		}
	}

	return values
}
