package replica

import (
	"sync"
	"time"
)

// stickyTable maps correlation ids to the instant their reads may leave the primary.
type stickyTable struct {
	mu    sync.RWMutex
	until map[string]time.Time
}

func newStickyTable() *stickyTable {
	return &stickyTable{until: make(map[string]time.Time)}
}

// mark extends the entry for id to at least until.
func (t *stickyTable) mark(id string, until time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.until[id]; !ok || until.After(current) {
		t.until[id] = until
	}
}

// active reports whether id has an unexpired entry and drops it once expired.
func (t *stickyTable) active(id string, now time.Time) bool {
	t.mu.RLock()
	until, ok := t.until[id]
	t.mu.RUnlock()

	if !ok {
		return false
	}
	if now.Before(until) {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// A concurrent write may have extended the entry since the read lock was released.
	current, ok := t.until[id]
	if !ok {
		return false
	}
	if now.Before(current) {
		return true
	}
	delete(t.until, id)

	return false
}

// sweep removes expired entries and returns how many remain.
func (t *stickyTable) sweep(now time.Time) (removed, remaining int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, until := range t.until {
		if !now.Before(until) {
			delete(t.until, id)
			removed++
		}
	}

	return removed, len(t.until)
}

func (t *stickyTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.until)
}
