package outbox

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Entry describes a new outbox message to be persisted.
type Entry struct {
	// EventType names the specific event (e.g., "user.created").
	EventType string
	// Payload is stored as JSON.
	Payload json.RawMessage
	// RoutingKey optionally selects the downstream channel. It is trimmed; empty means absent.
	RoutingKey string
	// Tenant optionally identifies the tenant the event belongs to.
	Tenant string
	// TraceID optionally correlates the event with the request that produced it.
	TraceID string
	// AggregateTable optionally names the table of the changed aggregate.
	AggregateTable string
	// AggregateID optionally identifies the changed row. Scalars are formatted as text,
	// composite keys (maps) are encoded as JSON with sorted keys.
	AggregateID any
	// AvailableAt delays eligibility for claiming. Zero means now.
	AvailableAt time.Time
}

// NewEntry marshals payload to JSON and returns an entry for eventType.
func NewEntry(eventType string, payload any) (Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("outbox: marshal payload: %w", err)
	}

	return Entry{EventType: eventType, Payload: raw}, nil
}

// Validate checks required fields and JSON validity.
func (e Entry) Validate() error {
	return e.validate(true)
}

func (e Entry) validate(validatePayload bool) error {
	if strings.TrimSpace(e.EventType) == "" {
		return ErrEventTypeRequired
	}
	if len(e.Payload) == 0 {
		return ErrPayloadRequired
	}
	if validatePayload && !json.Valid(e.Payload) {
		return ErrInvalidPayload
	}

	return nil
}

// NormalizeAggregateID converts a scalar or composite aggregate identifier to its stored form.
// The boolean is false when the identifier is absent.
func NormalizeAggregateID(id any) (string, bool, error) {
	if id == nil {
		return "", false, nil
	}

	switch v := id.(type) {
	case string:
		return v, v != "", nil
	case fmt.Stringer:
		s := v.String()
		return s, s != "", nil
	}

	rv := reflect.ValueOf(id)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Len() == 0 {
			return "", false, nil
		}
		// encoding/json sorts map keys, which makes the encoding deterministic.
		raw, err := json.Marshal(id)
		if err != nil {
			return "", false, fmt.Errorf("outbox: encode composite aggregate id: %w", err)
		}
		return string(raw), true, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return "", false, nil
		}
		return NormalizeAggregateID(rv.Elem().Interface())
	default:
		return fmt.Sprint(id), true, nil
	}
}

func normalizeRoutingKey(key string) (string, bool) {
	key = strings.TrimSpace(key)

	return key, key != ""
}
