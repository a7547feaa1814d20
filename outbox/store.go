package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"unicode/utf8"

	database "github.com/blackcatacademy/blackcat-database"
)

const maxErrorLen = 1024

// Store implements the outbox repository on top of a database.Querier.
//
// Every method takes the querier to run on. Insert must receive the handle that carries the
// business transaction; claim, ack and fail are expected to share one transaction owned by
// the consumer so that SKIP LOCKED claims hold until the batch is settled.
type Store struct {
	cfg     StoreConfig
	queries queries
	table   string
}

// NewStore constructs a store with validated configuration.
func NewStore(opts ...StoreOption) (*Store, error) {
	var cfg StoreConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	if !cfg.Dialect.Valid() {
		return nil, ErrDialectRequired
	}
	table, err := database.ValidateIdentifier(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		cfg:     cfg,
		queries: newQueries(cfg.Dialect, table),
		table:   table,
	}, nil
}

// MustNewStore constructs a store or panics on error.
func MustNewStore(opts ...StoreOption) *Store {
	store, err := NewStore(opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Table returns the outbox table name.
func (s *Store) Table() string {
	return s.table
}

// Dialect returns the store dialect.
func (s *Store) Dialect() database.Dialect {
	return s.cfg.Dialect
}

// Insert writes a new row and returns its id. Call it with the business transaction's handle:
// rolling that transaction back also discards the event.
func (s *Store) Insert(ctx context.Context, q database.Querier, entry Entry) (int64, error) {
	if q == nil {
		return 0, ErrQuerierRequired
	}
	if err := entry.validate(s.cfg.ValidatePayload); err != nil {
		return 0, err
	}

	aggregateID, hasAggregate, err := NormalizeAggregateID(entry.AggregateID)
	if err != nil {
		return 0, err
	}
	routingKey, hasRouting := normalizeRoutingKey(entry.RoutingKey)

	now := s.cfg.Clock.Now().UTC()
	availableAt := now
	if !entry.AvailableAt.IsZero() {
		availableAt = entry.AvailableAt.UTC()
	}

	args := []any{
		entry.EventType,
		string(entry.Payload),
		nullString(routingKey, hasRouting),
		nullString(entry.Tenant, entry.Tenant != ""),
		nullString(entry.TraceID, entry.TraceID != ""),
		nullString(entry.AggregateTable, entry.AggregateTable != ""),
		nullString(aggregateID, hasAggregate),
		now,
		availableAt,
	}

	if s.cfg.Dialect == database.Postgres {
		value, err := q.FetchValueWithMeta(ctx, database.MetaFromContext(ctx), s.queries.insert, args...)
		if err != nil {
			return 0, fmt.Errorf("outbox: insert failed: %w", err)
		}
		id, err := database.Row{"id": value}.Int64("id")
		if err != nil {
			return 0, fmt.Errorf("outbox: insert returned id: %w", err)
		}
		return id, nil
	}

	res, err := q.ExecWithMeta(ctx, database.MetaFromContext(ctx), s.queries.insert, args...)
	if err != nil {
		return 0, fmt.Errorf("outbox: insert failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("outbox: insert id failed: %w", err)
	}

	return id, nil
}

// ClaimBatch locks and returns up to limit unacknowledged rows whose available_at has passed,
// oldest first. Rows locked by a concurrent claimant are skipped.
func (s *Store) ClaimBatch(ctx context.Context, q database.Querier, limit int) ([]Record, error) {
	if q == nil {
		return nil, ErrQuerierRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidBatchSize
	}

	rows, err := q.FetchAllWithMeta(ctx, database.MetaFromContext(ctx), s.queries.claim, s.cfg.Clock.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim failed: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		record, err := scanRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// Get returns the row with the given id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, q database.Querier, id int64) (*Record, error) {
	if q == nil {
		return nil, ErrQuerierRequired
	}

	row, err := q.FetchRowWithMeta(ctx, database.MetaFromContext(ctx), s.queries.get, id)
	if err != nil {
		return nil, fmt.Errorf("outbox: get failed: %w", err)
	}
	if row == nil {
		return nil, nil
	}

	record, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// Ack marks a claimed row as acknowledged. Acknowledged rows are never claimed again.
func (s *Store) Ack(ctx context.Context, q database.Querier, id int64) error {
	if q == nil {
		return ErrQuerierRequired
	}
	if _, err := q.ExecWithMeta(ctx, database.MetaFromContext(ctx), s.queries.ack, s.cfg.Clock.Now().UTC(), id); err != nil {
		return fmt.Errorf("outbox: ack update failed: %w", err)
	}

	return nil
}

// Fail increments fail_count by increment (at least 1), stores the error message and moves
// available_at forward by the retry backoff. The row stays unacknowledged.
func (s *Store) Fail(ctx context.Context, q database.Querier, id int64, message string, increment int) error {
	if q == nil {
		return ErrQuerierRequired
	}
	if increment < 1 {
		increment = 1
	}

	value, err := q.FetchValueWithMeta(ctx, database.MetaFromContext(ctx), s.queries.failCount, id)
	if err != nil {
		return fmt.Errorf("outbox: fail lookup failed: %w", err)
	}
	if value == nil {
		return nil
	}
	current, err := database.Row{"fail_count": value}.Int64("fail_count")
	if err != nil {
		return fmt.Errorf("outbox: fail lookup failed: %w", err)
	}

	now := s.cfg.Clock.Now().UTC()
	retryAt := now.Add(s.cfg.Backoff(int(current) + increment))

	if _, err := q.ExecWithMeta(ctx, database.MetaFromContext(ctx), s.queries.fail, increment, truncateMessage(message), retryAt, id); err != nil {
		return fmt.Errorf("outbox: fail update failed: %w", err)
	}

	return nil
}

// PendingCount returns the number of unacknowledged rows.
func (s *Store) PendingCount(ctx context.Context, q database.Querier) (int, error) {
	if q == nil {
		return 0, ErrQuerierRequired
	}

	value, err := q.FetchValueWithMeta(ctx, database.MetaFromContext(ctx), s.queries.countPending)
	if err != nil {
		return 0, fmt.Errorf("outbox: pending count failed: %w", err)
	}
	count, err := database.Row{"count": value}.Int64("count")
	if err != nil {
		return 0, fmt.Errorf("outbox: pending count failed: %w", err)
	}

	return int(count), nil
}

func scanRecord(row database.Row) (Record, error) {
	id, err := row.Int64("id")
	if err != nil {
		return Record{}, fmt.Errorf("outbox: scan id: %w", err)
	}
	failCount, err := row.Int64("fail_count")
	if err != nil {
		return Record{}, fmt.Errorf("outbox: scan fail_count: %w", err)
	}
	createdAt, _, err := row.Time("created_at")
	if err != nil {
		return Record{}, fmt.Errorf("outbox: scan created_at: %w", err)
	}
	availableAt, _, err := row.Time("available_at")
	if err != nil {
		return Record{}, fmt.Errorf("outbox: scan available_at: %w", err)
	}
	ackedAt, acked, err := row.Time("acked_at")
	if err != nil {
		return Record{}, fmt.Errorf("outbox: scan acked_at: %w", err)
	}

	record := Record{
		ID:             id,
		EventType:      row.String("event_type"),
		Payload:        []byte(row.String("payload")),
		RoutingKey:     row.String("routing_key"),
		Tenant:         row.String("tenant"),
		TraceID:        row.String("trace_id"),
		AggregateTable: row.String("aggregate_table"),
		AggregateID:    row.String("aggregate_id"),
		CreatedAt:      createdAt,
		AvailableAt:    availableAt,
		FailCount:      int(failCount),
		LastError:      row.String("last_error"),
	}
	if acked {
		record.AckedAt = &ackedAt
	}

	return record, nil
}

func nullString(value string, valid bool) sql.NullString {
	return sql.NullString{String: value, Valid: valid}
}

func truncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	return string([]rune(msg)[:maxErrorLen])
}
