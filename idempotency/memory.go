package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	database "github.com/blackcatacademy/blackcat-database"
)

// MemoryStore is a process-local Store for tests and short-lived single-instance workflows.
// A record whose TTL elapsed is treated as absent by every operation.
type MemoryStore struct {
	clock Clock

	mu      sync.Mutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store. A nil clock uses the system clock.
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = database.SystemClock{}
	}

	return &MemoryStore{clock: clock, records: make(map[string]Record)}
}

// Begin implements Store.
func (s *MemoryStore) Begin(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}

	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(key, now); ok {
		return false, nil
	}
	s.records[key] = Record{
		Key:       key,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt(now, ttl),
	}

	return true, nil
}

// Commit implements Store.
func (s *MemoryStore) Commit(_ context.Context, key string, result json.RawMessage) error {
	if err := checkKey(key); err != nil {
		return err
	}

	return s.transition(key, func(r *Record) {
		r.Status = StatusSuccess
		if len(result) > 0 {
			r.Result = append(json.RawMessage(nil), result...)
		}
		r.Error = ""
	})
}

// Fail implements Store.
func (s *MemoryStore) Fail(_ context.Context, key string, message string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	return s.transition(key, func(r *Record) {
		r.Status = StatusFailed
		r.Result = nil
		r.Error = truncateMessage(message)
	})
}

func (s *MemoryStore) transition(key string, apply func(*Record)) error {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.lookup(key, now)
	if !ok || record.Status != StatusPending {
		return fmt.Errorf("%w: %s", ErrNotPending, key)
	}
	apply(&record)
	record.UpdatedAt = now
	s.records[key] = record

	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.lookup(key, now)
	if !ok {
		return nil, nil
	}
	record.Result = append(json.RawMessage(nil), record.Result...)

	return &record, nil
}

// PurgeOlderThan implements Store. Expired records are dropped as well.
func (s *MemoryStore) PurgeOlderThan(_ context.Context, age time.Duration) (int64, error) {
	now := s.clock.Now()
	before := now.Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, record := range s.records {
		if record.expired(now) {
			delete(s.records, key)
			continue
		}
		if record.Status.Terminal() && record.UpdatedAt.Before(before) {
			delete(s.records, key)
			purged++
		}
	}

	return purged, nil
}

// Len returns the number of live records.
func (s *MemoryStore) Len() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, record := range s.records {
		if !record.expired(now) {
			count++
		}
	}

	return count
}

// lookup returns the live record for key and drops it when expired. Callers hold s.mu.
func (s *MemoryStore) lookup(key string, now time.Time) (Record, bool) {
	record, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	if record.expired(now) {
		delete(s.records, key)
		return Record{}, false
	}

	return record, true
}
