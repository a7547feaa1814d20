package outbox_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	database "github.com/blackcatacademy/blackcat-database"
	"github.com/blackcatacademy/blackcat-database/internal/testutil"
	"github.com/blackcatacademy/blackcat-database/outbox"
	"github.com/blackcatacademy/blackcat-database/sqldb"
)

var baseTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: baseTime}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fixture struct {
	store  *outbox.Store
	handle *sqldb.Handle
	clock  *manualClock
}

func newFixture(t *testing.T, opts ...outbox.StoreOption) fixture {
	t.Helper()

	ddl, err := outbox.Schema(database.SQLite, "outbox_events")
	require.NoError(t, err)

	clock := newManualClock()
	opts = append([]outbox.StoreOption{outbox.WithDialect(database.SQLite), outbox.WithClock(clock)}, opts...)
	store, err := outbox.NewStore(opts...)
	require.NoError(t, err)

	return fixture{
		store:  store,
		handle: sqldb.MustNew(testutil.OpenSQLite(t, ddl...)),
		clock:  clock,
	}
}

func (f fixture) insert(t *testing.T, eventType, payload string) int64 {
	t.Helper()

	id, err := f.store.Insert(context.Background(), f.handle, outbox.Entry{
		EventType: eventType,
		Payload:   json.RawMessage(payload),
	})
	require.NoError(t, err)

	return id
}

func (f fixture) get(t *testing.T, id int64) *outbox.Record {
	t.Helper()

	record, err := f.store.Get(context.Background(), f.handle, id)
	require.NoError(t, err)
	require.NotNil(t, record)

	return record
}

type recordingMetrics struct {
	mu      sync.Mutex
	batches int
	claimed int
	acked   int
	failed  int
	pending []int
	onAck   func(total int)
}

func (m *recordingMetrics) ObserveBatchDuration(time.Duration) {
	m.mu.Lock()
	m.batches++
	m.mu.Unlock()
}

func (m *recordingMetrics) AddClaimed(count int) {
	m.mu.Lock()
	m.claimed += count
	m.mu.Unlock()
}

func (m *recordingMetrics) AddAcked(count int) {
	m.mu.Lock()
	m.acked += count
	total := m.acked
	hook := m.onAck
	m.mu.Unlock()

	if hook != nil {
		hook(total)
	}
}

func (m *recordingMetrics) AddFailed(count int) {
	m.mu.Lock()
	m.failed += count
	m.mu.Unlock()
}

func (m *recordingMetrics) SetPending(count int) {
	m.mu.Lock()
	m.pending = append(m.pending, count)
	m.mu.Unlock()
}

type metricsSnapshot struct {
	batches int
	claimed int
	acked   int
	failed  int
	pending []int
}

func (m *recordingMetrics) snapshot() metricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return metricsSnapshot{
		batches: m.batches,
		claimed: m.claimed,
		acked:   m.acked,
		failed:  m.failed,
		pending: append([]int(nil), m.pending...),
	}
}
