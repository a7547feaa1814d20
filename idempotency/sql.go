package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	database "github.com/blackcatacademy/blackcat-database"
)

const maxErrorLen = 1024

var beginColumns = []string{"idempotency_key", "status", "created_at", "updated_at", "expires_at"}

type sqlQueries struct {
	begin  string
	commit string
	fail   string
	get    string
	purge  string
}

func newSQLQueries(d database.Dialect, table string) sqlQueries {
	t := d.Quote(table)
	p := d.Placeholder

	result := "result"
	if d == database.Postgres {
		result = "result::text AS result"
	}

	return sqlQueries{
		begin: d.InsertIfAbsent(table, beginColumns, "idempotency_key"),
		commit: fmt.Sprintf(
			"UPDATE %s SET status = '%s', result = %s, error_message = NULL, updated_at = %s WHERE idempotency_key = %s AND status = '%s'",
			t, StatusSuccess, p(1), p(2), p(3), StatusPending,
		),
		fail: fmt.Sprintf(
			"UPDATE %s SET status = '%s', result = NULL, error_message = %s, updated_at = %s WHERE idempotency_key = %s AND status = '%s'",
			t, StatusFailed, p(1), p(2), p(3), StatusPending,
		),
		get: fmt.Sprintf(
			"SELECT idempotency_key, status, %s, error_message, created_at, updated_at, expires_at FROM %s WHERE idempotency_key = %s",
			result, t, p(1),
		),
		purge: fmt.Sprintf(
			"DELETE FROM %s WHERE status IN ('%s', '%s') AND updated_at < %s",
			t, StatusSuccess, StatusFailed, p(1),
		),
	}
}

// SQLStore is the durable Store. Begin relies on the primary key of the idempotency table, so
// exactly one of any number of concurrent callers creates the row. Expiry is recorded in
// expires_at for operators but not enforced; terminal rows are removed by PurgeOlderThan.
//
// On MySQL ownership is read from the affected row count, which is wrong when the connection
// sets clientFoundRows=true. dbconn.Open refuses such DSNs.
type SQLStore struct {
	q       database.Querier
	cfg     SQLConfig
	queries sqlQueries
	table   string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore constructs a SQL store over q.
func NewSQLStore(q database.Querier, opts ...SQLOption) (*SQLStore, error) {
	if q == nil {
		return nil, ErrQuerierRequired
	}

	var cfg SQLConfig
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

	return &SQLStore{
		q:       q,
		cfg:     cfg,
		queries: newSQLQueries(cfg.Dialect, table),
		table:   table,
	}, nil
}

// Table returns the idempotency table name.
func (s *SQLStore) Table() string {
	return s.table
}

// Begin implements Store.
func (s *SQLStore) Begin(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}

	now := s.cfg.Clock.Now().UTC()
	var expires sql.NullTime
	if at := expiresAt(now, ttl); at != nil {
		expires = sql.NullTime{Time: *at, Valid: true}
	}

	res, err := s.q.ExecWithMeta(ctx, database.MetaFromContext(ctx), s.queries.begin, key, string(StatusPending), now, now, expires)
	if err != nil {
		return false, fmt.Errorf("idempotency: begin failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("idempotency: begin rows failed: %w", err)
	}

	return affected == 1, nil
}

// Commit implements Store.
func (s *SQLStore) Commit(ctx context.Context, key string, result json.RawMessage) error {
	if err := checkKey(key); err != nil {
		return err
	}

	var value sql.NullString
	if len(result) > 0 {
		value = sql.NullString{String: string(result), Valid: true}
	}

	return s.transition(ctx, "commit", s.queries.commit, value, key)
}

// Fail implements Store.
func (s *SQLStore) Fail(ctx context.Context, key string, message string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	return s.transition(ctx, "fail", s.queries.fail, truncateMessage(message), key)
}

func (s *SQLStore) transition(ctx context.Context, op, query string, value any, key string) error {
	res, err := s.q.ExecWithMeta(ctx, database.MetaFromContext(ctx), query, value, s.cfg.Clock.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("idempotency: %s failed: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency: %s rows failed: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotPending, key)
	}

	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) (*Record, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	row, err := s.q.FetchRowWithMeta(ctx, database.MetaFromContext(ctx), s.queries.get, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency: get failed: %w", err)
	}
	if row == nil {
		return nil, nil
	}

	return scanRecord(row)
}

// PurgeOlderThan implements Store.
func (s *SQLStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	before := s.cfg.Clock.Now().UTC().Add(-age)
	res, err := s.q.ExecWithMeta(ctx, database.MetaFromContext(ctx), s.queries.purge, before)
	if err != nil {
		return 0, fmt.Errorf("idempotency: purge failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency: purge rows failed: %w", err)
	}

	return affected, nil
}

func scanRecord(row database.Row) (*Record, error) {
	createdAt, _, err := row.Time("created_at")
	if err != nil {
		return nil, fmt.Errorf("idempotency: scan created_at: %w", err)
	}
	updatedAt, _, err := row.Time("updated_at")
	if err != nil {
		return nil, fmt.Errorf("idempotency: scan updated_at: %w", err)
	}
	expires, hasExpiry, err := row.Time("expires_at")
	if err != nil {
		return nil, fmt.Errorf("idempotency: scan expires_at: %w", err)
	}

	record := &Record{
		Key:       row.String("idempotency_key"),
		Status:    Status(row.String("status")),
		Error:     row.String("error_message"),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if result := row.String("result"); result != "" {
		record.Result = json.RawMessage(result)
	}
	if hasExpiry {
		record.ExpiresAt = &expires
	}

	return record, nil
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrKeyRequired
	}

	return nil
}

func truncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	return string([]rune(msg)[:maxErrorLen])
}
