package idempotency

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyRequired is returned for an empty idempotency key.
	ErrKeyRequired = errors.New("idempotency: key is required")
	// ErrNotPending is returned by Commit and Fail when the key has no pending record.
	ErrNotPending = errors.New("idempotency: no pending record for key")
	// ErrAlreadyClaimed is returned by Run when another caller owns the key.
	ErrAlreadyClaimed = errors.New("idempotency: key already claimed")
	// ErrQuerierRequired is returned when a SQL store is built without a querier.
	ErrQuerierRequired = errors.New("idempotency: querier is required")
	// ErrDialectRequired is returned when the SQL store dialect is unknown.
	ErrDialectRequired = errors.New("idempotency: a known dialect is required")
)

// AlreadyClaimedError carries the record found when a key was already claimed.
// It matches ErrAlreadyClaimed with errors.Is.
type AlreadyClaimedError struct {
	Key string
	// Record is nil when the claim expired or was purged between Begin and Get.
	Record *Record
}

func (e *AlreadyClaimedError) Error() string {
	if e.Record == nil {
		return fmt.Sprintf("%s: %s", ErrAlreadyClaimed, e.Key)
	}

	return fmt.Sprintf("%s: %s (%s)", ErrAlreadyClaimed, e.Key, e.Record.Status)
}

// Unwrap returns ErrAlreadyClaimed.
func (e *AlreadyClaimedError) Unwrap() error {
	return ErrAlreadyClaimed
}
