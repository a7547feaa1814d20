package idempotency

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an idempotency record.
type Status string

const (
	// StatusPending means the owner has not finished the operation yet.
	StatusPending Status = "pending"
	// StatusSuccess means the operation completed and Result holds its outcome.
	StatusSuccess Status = "success"
	// StatusFailed means the operation failed and Error holds the message.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Record is the stored state of one idempotency key.
type Record struct {
	Key       string
	Status    Status
	Result    json.RawMessage
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
	// ExpiresAt is set when Begin received a positive TTL.
	ExpiresAt *time.Time
}

// Decode unmarshals the stored result into v.
func (r Record) Decode(v any) error {
	return json.Unmarshal(r.Result, v)
}

func (r Record) expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}
