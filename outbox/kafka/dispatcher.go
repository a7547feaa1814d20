// Package kafka publishes outbox events to Kafka.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/IBM/sarama"

	"github.com/blackcatacademy/blackcat-database/outbox"
)

// Header names set on every produced message.
const (
	HeaderEventID        = "outbox-id"
	HeaderEventType      = "event-type"
	HeaderTraceID        = "trace-id"
	HeaderTenant         = "tenant"
	HeaderAggregateTable = "aggregate-table"
	HeaderAttempt        = "attempt"
)

// ErrProducerRequired is returned when no producer is supplied.
var ErrProducerRequired = errors.New("kafka: producer is required")

// MessageSender is the subset of sarama.SyncProducer the dispatcher needs.
type MessageSender interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
}

// Config controls topic selection.
type Config struct {
	// Topic, when set, receives every event. Otherwise the routing key is used,
	// falling back to the event type.
	Topic string
	// TopicPrefix is prepended to derived topic names.
	TopicPrefix string
}

// Option configures the dispatcher.
type Option func(*Config)

// WithTopic sends every event to topic.
func WithTopic(topic string) Option {
	return func(cfg *Config) {
		cfg.Topic = strings.TrimSpace(topic)
	}
}

// WithTopicPrefix prefixes derived topic names.
func WithTopicPrefix(prefix string) Option {
	return func(cfg *Config) {
		cfg.TopicPrefix = prefix
	}
}

// Dispatcher implements outbox.Dispatcher with a synchronous producer.
type Dispatcher struct {
	producer MessageSender
	cfg      Config
}

var _ outbox.Dispatcher = (*Dispatcher)(nil)

// New returns a dispatcher writing through producer.
func New(producer MessageSender, opts ...Option) (*Dispatcher, error) {
	if producer == nil {
		return nil, ErrProducerRequired
	}
	var cfg Config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return &Dispatcher{producer: producer, cfg: cfg}, nil
}

// NewSyncProducer connects a producer that waits for all in-sync replicas.
func NewSyncProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}

	return producer, nil
}

// Dispatch implements outbox.Dispatcher. sarama's SyncProducer takes no context, so the send
// runs in its own goroutine and Dispatch returns when ctx ends. A send abandoned this way may
// still reach the broker; the row is then delivered again, which at-least-once allows.
func (d *Dispatcher) Dispatch(ctx context.Context, event outbox.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := d.Message(event)
	if ctx.Done() == nil {
		return d.send(msg, event)
	}

	done := make(chan error, 1)
	go func() {
		done <- d.send(msg, event)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("kafka: send event %d to %s: %w", event.ID, msg.Topic, ctx.Err())
	}
}

func (d *Dispatcher) send(msg *sarama.ProducerMessage, event outbox.Event) error {
	if _, _, err := d.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka: send event %d to %s: %w", event.ID, msg.Topic, err)
	}

	return nil
}

// Message builds the producer message for event.
func (d *Dispatcher) Message(event outbox.Event) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic: d.topic(event),
		Value: sarama.ByteEncoder(event.Payload),
		Headers: []sarama.RecordHeader{
			header(HeaderEventID, strconv.FormatInt(event.ID, 10)),
			header(HeaderEventType, event.EventType),
			header(HeaderAttempt, strconv.Itoa(event.Attempt)),
		},
	}
	if event.AggregateID != "" {
		msg.Key = sarama.StringEncoder(event.AggregateID)
	}
	if event.TraceID != "" {
		msg.Headers = append(msg.Headers, header(HeaderTraceID, event.TraceID))
	}
	if event.Tenant != "" {
		msg.Headers = append(msg.Headers, header(HeaderTenant, event.Tenant))
	}
	if event.AggregateTable != "" {
		msg.Headers = append(msg.Headers, header(HeaderAggregateTable, event.AggregateTable))
	}

	return msg
}

func (d *Dispatcher) topic(event outbox.Event) string {
	if d.cfg.Topic != "" {
		return d.cfg.Topic
	}
	name := event.RoutingKey
	if name == "" {
		name = event.EventType
	}

	return d.cfg.TopicPrefix + name
}

func header(key, value string) sarama.RecordHeader {
	return sarama.RecordHeader{Key: []byte(key), Value: []byte(value)}
}
