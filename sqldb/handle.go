package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	database "github.com/blackcatacademy/blackcat-database"
)

// Option configures a Handle.
type Option func(*Handle)

// WithTxOptions sets the options used by Begin.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(h *Handle) {
		h.txOpts = opts
	}
}

// WithReadCommitted makes Begin use READ COMMITTED isolation, which avoids gap locks on claim queries.
func WithReadCommitted() Option {
	return WithTxOptions(&sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Handle is a database.Handle backed by database/sql.
type Handle struct {
	db     *sql.DB
	txOpts *sql.TxOptions

	mu sync.Mutex
	tx *sql.Tx
}

var _ database.Handle = (*Handle)(nil)

// New wraps db in a Handle.
func New(db *sql.DB, opts ...Option) (*Handle, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	h := &Handle{db: db}
	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// MustNew wraps db in a Handle or panics on error.
func MustNew(db *sql.DB, opts ...Option) *Handle {
	h, err := New(db, opts...)
	if err != nil {
		panic(err)
	}

	return h
}

// Session returns a new Handle sharing the connection pool and options but not the transaction state.
func (h *Handle) Session() *Handle {
	return &Handle{db: h.db, txOpts: h.txOpts}
}

// DB returns the underlying pool.
func (h *Handle) DB() *sql.DB {
	return h.db
}

// Begin opens a transaction.
func (h *Handle) Begin(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.tx != nil {
		return database.ErrTxAlreadyOpen
	}

	tx, err := h.db.BeginTx(ctx, h.txOpts)
	if err != nil {
		return fmt.Errorf("sqldb: begin tx failed: %w", err)
	}
	h.tx = tx

	return nil
}

// Commit commits the open transaction.
func (h *Handle) Commit() error {
	tx, err := h.takeTx()
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Rollback aborts the open transaction.
func (h *Handle) Rollback() error {
	tx, err := h.takeTx()
	if err != nil {
		return err
	}

	err = tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}

// InTransaction reports whether a transaction is open.
func (h *Handle) InTransaction() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.tx != nil
}

// ExecWithMeta executes a statement that does not return rows.
func (h *Handle) ExecWithMeta(ctx context.Context, _ database.Meta, query string, args ...any) (sql.Result, error) {
	return h.current().ExecContext(ctx, query, args...)
}

// FetchAllWithMeta returns every row produced by the query.
func (h *Handle) FetchAllWithMeta(ctx context.Context, _ database.Meta, query string, args ...any) ([]database.Row, error) {
	return h.fetch(ctx, 0, query, args)
}

// FetchRowWithMeta returns the first row, or nil when the query produced none.
func (h *Handle) FetchRowWithMeta(ctx context.Context, _ database.Meta, query string, args ...any) (database.Row, error) {
	rows, err := h.fetch(ctx, 1, query, args)
	if err != nil || len(rows) == 0 {
		return nil, err
	}

	return rows[0], nil
}

// FetchValueWithMeta returns the first column of the first row, or nil when there is no row.
func (h *Handle) FetchValueWithMeta(ctx context.Context, _ database.Meta, query string, args ...any) (any, error) {
	rows, err := h.current().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values, err := scanValues(rows, len(cols))
	if err != nil {
		return nil, err
	}

	return values[0], rows.Err()
}

// Exists reports whether the query produced at least one row.
func (h *Handle) Exists(ctx context.Context, _ database.Meta, query string, args ...any) (bool, error) {
	rows, err := h.current().QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	found := rows.Next()

	return found, rows.Err()
}

func (h *Handle) current() queryer {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.tx != nil {
		return h.tx
	}

	return h.db
}

func (h *Handle) takeTx() (*sql.Tx, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.tx == nil {
		return nil, database.ErrNoTx
	}
	tx := h.tx
	h.tx = nil

	return tx, nil
}

func (h *Handle) fetch(ctx context.Context, limit int, query string, args []any) ([]database.Row, error) {
	rows, err := h.current().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []database.Row
	for rows.Next() {
		values, err := scanValues(rows, len(cols))
		if err != nil {
			return nil, err
		}
		row := make(database.Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func scanValues(rows *sql.Rows, count int) ([]any, error) {
	values := make([]any, count)
	ptrs := make([]any, count)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("sqldb: scan failed: %w", err)
	}
	for i, v := range values {
		// Text columns come back from MySQL as []byte.
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}

	return values, nil
}
