package database

import (
	"context"
	"database/sql"
)

// Meta carries per-call metadata alongside a statement.
type Meta struct {
	// CorrelationID groups calls issued on behalf of the same caller (request, session, job).
	// An empty value is unscoped.
	CorrelationID string
}

// WithCorrelation returns Meta scoped to the given correlation identifier.
func WithCorrelation(id string) Meta {
	return Meta{CorrelationID: id}
}

type metaKey struct{}

// ContextWithMeta returns a copy of ctx carrying meta. Components that issue statements on
// behalf of a caller pass it to every call, so a router can keep the caller's reads on the
// primary after its writes.
func ContextWithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns the Meta stored by ContextWithMeta, or the zero Meta.
func MetaFromContext(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	meta, _ := ctx.Value(metaKey{}).(Meta)

	return meta
}

// Querier executes statements and fetches rows.
type Querier interface {
	// ExecWithMeta executes a statement that does not return rows.
	ExecWithMeta(ctx context.Context, meta Meta, query string, args ...any) (sql.Result, error)
	// FetchAllWithMeta returns every row produced by the query.
	FetchAllWithMeta(ctx context.Context, meta Meta, query string, args ...any) ([]Row, error)
	// FetchRowWithMeta returns the first row, or nil when the query produced none.
	FetchRowWithMeta(ctx context.Context, meta Meta, query string, args ...any) (Row, error)
	// FetchValueWithMeta returns the first column of the first row, or nil when there is no row.
	FetchValueWithMeta(ctx context.Context, meta Meta, query string, args ...any) (any, error)
	// Exists reports whether the query produced at least one row.
	Exists(ctx context.Context, meta Meta, query string, args ...any) (bool, error)
}

// Handle is a Querier with transaction boundaries.
//
// A Handle holds at most one open transaction. While it is open every call goes through it.
type Handle interface {
	Querier
	// Begin opens a transaction.
	Begin(ctx context.Context) error
	// Commit commits the open transaction.
	Commit() error
	// Rollback aborts the open transaction.
	Rollback() error
	// InTransaction reports whether a transaction is open.
	InTransaction() bool
}
