package replica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	database "github.com/blackcatacademy/blackcat-database"
)

// ErrPrimaryRequired is returned when a router is built without a primary handle.
var ErrPrimaryRequired = errors.New("replica: primary handle is required")

// Router implements database.Handle over a primary handle and an optional replica.
//
// Transaction control always targets the primary. Correlation ids come from the Meta of each
// call; calls without a correlation never record or consult stickiness, so their reads go to
// the replica unless the primary is in a transaction.
type Router struct {
	primary database.Handle
	replica database.Querier
	cfg     Config
	sticky  *stickyTable
}

var _ database.Handle = (*Router)(nil)

// NewRouter constructs a router. replica may be nil, in which case every call uses primary.
func NewRouter(primary database.Handle, replica database.Querier, opts ...Option) (*Router, error) {
	if primary == nil {
		return nil, ErrPrimaryRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Router{
		primary: primary,
		replica: replica,
		cfg:     cfg.withDefaults(),
		sticky:  newStickyTable(),
	}, nil
}

// WithPrimary returns a router that shares this router's replica and sticky state but sends
// primary traffic to h. Use it to pair a request-scoped session with the process-wide
// sticky table.
func (r *Router) WithPrimary(h database.Handle) *Router {
	if h == nil {
		panic("replica: nil primary handle")
	}

	clone := *r
	clone.primary = h

	return &clone
}

// Primary returns the primary handle.
func (r *Router) Primary() database.Handle {
	return r.primary
}

// Replica returns the replica querier, or nil.
func (r *Router) Replica() database.Querier {
	return r.replica
}

// StickyWindow returns the configured read-your-writes window.
func (r *Router) StickyWindow() time.Duration {
	return r.cfg.StickyWindow
}

// Begin opens a transaction on the primary.
func (r *Router) Begin(ctx context.Context) error {
	return r.primary.Begin(ctx)
}

// Commit commits the primary transaction.
func (r *Router) Commit() error {
	return r.primary.Commit()
}

// Rollback rolls the primary transaction back.
func (r *Router) Rollback() error {
	return r.primary.Rollback()
}

// InTransaction reports whether the primary has an open transaction.
func (r *Router) InTransaction() bool {
	return r.primary.InTransaction()
}

// ExecWithMeta runs a write on the primary and marks the correlation sticky.
func (r *Router) ExecWithMeta(ctx context.Context, meta database.Meta, query string, args ...any) (sql.Result, error) {
	r.markWrite(meta)

	return r.primary.ExecWithMeta(ctx, meta, query, args...)
}

// FetchAllWithMeta runs a read on the routed target. Statements that modify data or take
// row locks are treated as writes.
func (r *Router) FetchAllWithMeta(ctx context.Context, meta database.Meta, query string, args ...any) ([]database.Row, error) {
	return r.target(meta, query).FetchAllWithMeta(ctx, meta, query, args...)
}

// FetchRowWithMeta runs a read on the routed target. See FetchAllWithMeta.
func (r *Router) FetchRowWithMeta(ctx context.Context, meta database.Meta, query string, args ...any) (database.Row, error) {
	return r.target(meta, query).FetchRowWithMeta(ctx, meta, query, args...)
}

// FetchValueWithMeta runs a read on the routed target. See FetchAllWithMeta.
func (r *Router) FetchValueWithMeta(ctx context.Context, meta database.Meta, query string, args ...any) (any, error) {
	return r.target(meta, query).FetchValueWithMeta(ctx, meta, query, args...)
}

// Exists runs a read on the routed target. See FetchAllWithMeta.
func (r *Router) Exists(ctx context.Context, meta database.Meta, query string, args ...any) (bool, error) {
	return r.target(meta, query).Exists(ctx, meta, query, args...)
}

// Route reports where a read with meta would go right now, without executing anything.
func (r *Router) Route(meta database.Meta) (Target, Reason) {
	switch {
	case r.replica == nil:
		return TargetPrimary, ReasonNoReplica
	case r.primary.InTransaction():
		return TargetPrimary, ReasonTransaction
	case r.isSticky(meta):
		return TargetPrimary, ReasonSticky
	default:
		return TargetReplica, ReasonRead
	}
}

func (r *Router) target(meta database.Meta, query string) database.Querier {
	if IsWrite(query) {
		r.markWrite(meta)
		return r.primary
	}

	return r.readTarget(meta)
}

func (r *Router) readTarget(meta database.Meta) database.Querier {
	target, reason := r.Route(meta)
	r.cfg.Metrics.ObserveRoute(target, reason)
	if target == TargetReplica {
		return r.replica
	}

	return r.primary
}

func (r *Router) markWrite(meta database.Meta) {
	r.cfg.Metrics.ObserveRoute(TargetPrimary, ReasonWrite)
	if meta.CorrelationID == "" || r.cfg.StickyWindow <= 0 || r.replica == nil {
		return
	}

	r.sticky.mark(meta.CorrelationID, r.cfg.Clock.Now().Add(r.cfg.StickyWindow))
}

func (r *Router) isSticky(meta database.Meta) bool {
	if meta.CorrelationID == "" || r.cfg.StickyWindow <= 0 {
		return false
	}

	return r.sticky.active(meta.CorrelationID, r.cfg.Clock.Now())
}

// Sweep drops expired sticky entries and returns how many were removed.
func (r *Router) Sweep() int {
	removed, remaining := r.sticky.sweep(r.cfg.Clock.Now())
	r.cfg.Metrics.SetStickyEntries(remaining)
	if removed > 0 {
		r.cfg.Logger.Debug("replica sticky entries swept", "removed", removed, "remaining", remaining)
	}

	return removed
}

// StickyEntries returns the number of tracked correlations, expired or not.
func (r *Router) StickyEntries() int {
	return r.sticky.len()
}

// RunSweeper calls Sweep every interval until ctx is canceled. Expired entries are also
// dropped lazily on lookup, so the sweeper only bounds memory for correlations that never
// read again.
func (r *Router) RunSweeper(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = r.cfg.StickyWindow
	}
	if every <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep()
		}
	}
}
