// Package redisstore implements idempotency.Store on Redis for deployments that share
// short-lived idempotency windows across instances.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	database "github.com/blackcatacademy/blackcat-database"
	"github.com/blackcatacademy/blackcat-database/idempotency"
)

const (
	defaultPrefix   = "idempotency:"
	maxTxAttempts   = 3
	scanBatch       = 100
	maxErrorMessage = 1024
)

// ErrClientRequired is returned when the store is built without a client.
var ErrClientRequired = errors.New("redisstore: client is required")

// Option configures the store.
type Option func(*Store)

// WithPrefix sets the key prefix. The default is "idempotency:".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock sets the time source used for record timestamps.
func WithClock(clock database.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Store keeps one JSON document per key. Begin is SET NX, so Redis decides the single owner;
// the TTL is enforced by Redis expiry. Transitions use WATCH so a concurrent change aborts
// them instead of being overwritten.
type Store struct {
	client redis.UniversalClient
	prefix string
	clock  database.Clock
}

var _ idempotency.Store = (*Store)(nil)

type document struct {
	Status    idempotency.Status `json:"status"`
	Result    json.RawMessage    `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
}

// New constructs a Redis-backed store.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	s := &Store{client: client, prefix: defaultPrefix, clock: database.SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Begin implements idempotency.Store.
func (s *Store) Begin(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, idempotency.ErrKeyRequired
	}

	now := s.clock.Now().UTC()
	doc := document{Status: idempotency.StatusPending, CreatedAt: now, UpdatedAt: now}
	if ttl > 0 {
		at := now.Add(ttl)
		doc.ExpiresAt = &at
	} else {
		ttl = 0
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("redisstore: encode record: %w", err)
	}

	owned, err := s.client.SetNX(ctx, s.prefix+key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: begin failed: %w", err)
	}

	return owned, nil
}

// Commit implements idempotency.Store.
func (s *Store) Commit(ctx context.Context, key string, result json.RawMessage) error {
	return s.transition(ctx, key, func(doc *document) {
		doc.Status = idempotency.StatusSuccess
		doc.Result = result
		doc.Error = ""
	})
}

// Fail implements idempotency.Store.
func (s *Store) Fail(ctx context.Context, key string, message string) error {
	if r := []rune(message); len(r) > maxErrorMessage {
		message = string(r[:maxErrorMessage])
	}

	return s.transition(ctx, key, func(doc *document) {
		doc.Status = idempotency.StatusFailed
		doc.Result = nil
		doc.Error = message
	})
}

func (s *Store) transition(ctx context.Context, key string, apply func(*document)) error {
	if strings.TrimSpace(key) == "" {
		return idempotency.ErrKeyRequired
	}
	redisKey := s.prefix + key

	update := func(tx *redis.Tx) error {
		doc, err := load(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		if doc == nil || doc.Status != idempotency.StatusPending {
			return fmt.Errorf("%w: %s", idempotency.ErrNotPending, key)
		}

		apply(doc)
		doc.UpdatedAt = s.clock.Now().UTC()
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("redisstore: encode record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, redis.KeepTTL)
			return nil
		})

		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, update, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, idempotency.ErrNotPending) {
			return fmt.Errorf("redisstore: transition failed: %w", err)
		}

		return err
	}

	return fmt.Errorf("redisstore: transition failed: %w", redis.TxFailedErr)
}

// Get implements idempotency.Store.
func (s *Store) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	if strings.TrimSpace(key) == "" {
		return nil, idempotency.ErrKeyRequired
	}

	doc, err := load(ctx, s.client, s.prefix+key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	return doc.record(key), nil
}

// PurgeOlderThan implements idempotency.Store. It scans the key prefix, so it is meant for
// maintenance jobs rather than request paths.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	before := s.clock.Now().UTC().Add(-age)

	var purged int64
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		doc, err := load(ctx, s.client, redisKey)
		if err != nil {
			return purged, err
		}
		if doc == nil || !doc.Status.Terminal() || !doc.UpdatedAt.Before(before) {
			continue
		}

		deleted, err := s.client.Del(ctx, redisKey).Result()
		if err != nil {
			return purged, fmt.Errorf("redisstore: purge failed: %w", err)
		}
		purged += deleted
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("redisstore: purge scan failed: %w", err)
	}

	return purged, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, redisKey string) (*document, error) {
	data, err := c.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get failed: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("redisstore: decode record: %w", err)
	}

	return &doc, nil
}

func (d document) record(key string) *idempotency.Record {
	return &idempotency.Record{
		Key:       key,
		Status:    d.Status,
		Result:    d.Result,
		Error:     d.Error,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		ExpiresAt: d.ExpiresAt,
	}
}
