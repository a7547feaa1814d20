package idempotency

import (
	"context"
	"encoding/json"
	"time"

	database "github.com/blackcatacademy/blackcat-database"
)

// Store is implemented by every idempotency backend.
type Store interface {
	// Begin creates a pending record for key and reports whether this call created it.
	// A false result is not an error: the key is owned by someone else or already finished.
	Begin(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Commit moves a pending record to success and stores result.
	Commit(ctx context.Context, key string, result json.RawMessage) error
	// Fail moves a pending record to failed and stores message.
	Fail(ctx context.Context, key string, message string) error
	// Get returns the record for key, or nil when it was never begun, expired or purged.
	Get(ctx context.Context, key string) (*Record, error)
	// PurgeOlderThan deletes terminal records last updated before now-age and returns how
	// many were removed. Pending records are kept.
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

type (
	// Clock supplies the current time.
	Clock = database.Clock
)

func expiresAt(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := now.Add(ttl)

	return &at
}
