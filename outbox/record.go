package outbox

import (
	"encoding/json"
	"time"
)

// Record is a stored outbox row.
type Record struct {
	ID             int64
	EventType      string
	Payload        json.RawMessage
	RoutingKey     string
	Tenant         string
	TraceID        string
	AggregateTable string
	AggregateID    string
	CreatedAt      time.Time
	AvailableAt    time.Time
	AckedAt        *time.Time
	FailCount      int
	LastError      string
}

// Event is the dispatchable form of a claimed record.
type Event struct {
	ID             int64
	EventType      string
	Payload        json.RawMessage
	RoutingKey     string
	Tenant         string
	TraceID        string
	AggregateTable string
	AggregateID    string
	CreatedAt      time.Time
	// Attempt is 1 for the first delivery and grows with every failure.
	Attempt int
}

// Event converts the record into a dispatchable event. The payload must be valid JSON.
func (r Record) Event() (Event, error) {
	if len(r.Payload) == 0 || !json.Valid(r.Payload) {
		return Event{}, ErrInvalidPayload
	}

	return Event{
		ID:             r.ID,
		EventType:      r.EventType,
		Payload:        r.Payload,
		RoutingKey:     r.RoutingKey,
		Tenant:         r.Tenant,
		TraceID:        r.TraceID,
		AggregateTable: r.AggregateTable,
		AggregateID:    r.AggregateID,
		CreatedAt:      r.CreatedAt,
		Attempt:        r.FailCount + 1,
	}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
