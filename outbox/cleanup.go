package outbox

import (
	"context"
	"fmt"
	"time"

	database "github.com/blackcatacademy/blackcat-database"
)

const (
	defaultCleanupLimit = 10000
	defaultCleanupEvery = time.Hour
)

// CleanupMaintainerConfig controls periodic cleanup of acknowledged rows.
type CleanupMaintainerConfig struct {
	// Retention keeps acknowledged rows younger than now-retention.
	Retention time.Duration
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// Logger receives cleanup results and failures.
	Logger Logger
}

// CleanupMaintainer runs periodic cleanup.
type CleanupMaintainer struct {
	store *Store
	q     database.Querier
	cfg   CleanupMaintainerConfig
}

// Cleanup deletes at most maxRows acknowledged rows whose acked_at is older than olderThan.
// The bound keeps each statement short so it does not hold locks on large tables for long.
func (s *Store) Cleanup(ctx context.Context, q database.Querier, maxRows int, olderThan time.Duration) (int64, error) {
	if q == nil {
		return 0, ErrQuerierRequired
	}
	if maxRows <= 0 {
		return 0, ErrCleanupLimitInvalid
	}
	if olderThan < 0 {
		return 0, ErrCleanupRetentionInvalid
	}

	before := s.cfg.Clock.Now().UTC().Add(-olderThan)
	res, err := q.ExecWithMeta(ctx, database.MetaFromContext(ctx), s.queries.cleanup, before, maxRows)
	if err != nil {
		return 0, fmt.Errorf("outbox: cleanup delete failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox: cleanup rows failed: %w", err)
	}

	return affected, nil
}

// NewCleanupMaintainer creates a new cleanup maintainer with defaults applied.
func NewCleanupMaintainer(store *Store, q database.Querier, cfg CleanupMaintainerConfig) (*CleanupMaintainer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if q == nil {
		return nil, ErrQuerierRequired
	}
	if cfg.Retention < 0 {
		return nil, ErrCleanupRetentionInvalid
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}

	return &CleanupMaintainer{store: store, q: q, cfg: cfg}, nil
}

// Run periodically deletes old acknowledged rows until the context is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	m.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runLogged(ctx)
		}
	}
}

// Ensure executes a single cleanup pass.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (int64, error) {
	return m.store.Cleanup(ctx, m.q, m.cfg.Limit, m.cfg.Retention)
}

func (m *CleanupMaintainer) runLogged(ctx context.Context) {
	deleted, err := m.Ensure(ctx)
	if err != nil {
		m.cfg.Logger.Warn("outbox cleanup failed", "err", err)

		return
	}
	if deleted > 0 {
		m.cfg.Logger.Info("outbox cleanup done", "deleted", deleted, "table", m.store.table)
	}
}
