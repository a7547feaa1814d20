package tenant

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	database "github.com/blackcatacademy/blackcat-database"
)

// Criteria is a query builder that accepts WHERE conditions with positional "?" arguments.
type Criteria interface {
	Where(condition string, args ...any)
}

// Scope is an immutable set of tenant identifiers. Identifiers compare by their string form,
// so 5 and "5" are the same tenant; the original values are kept for binding and stamping.
type Scope struct {
	ids  []any
	keys map[string]struct{}
}

// NewScope builds a scope from one or more identifiers. Duplicates are dropped, keeping the
// first occurrence.
func NewScope(ids ...any) (Scope, error) {
	if len(ids) == 0 {
		return Scope{}, ErrEmptyScope
	}

	s := Scope{
		ids:  make([]any, 0, len(ids)),
		keys: make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		value, key, ok := normalize(id)
		if !ok {
			return Scope{}, fmt.Errorf("%w: %v", ErrInvalidTenant, id)
		}
		if _, dup := s.keys[key]; dup {
			continue
		}
		s.keys[key] = struct{}{}
		s.ids = append(s.ids, value)
	}

	return s, nil
}

// MustNewScope builds a scope or panics.
func MustNewScope(ids ...any) Scope {
	s, err := NewScope(ids...)
	if err != nil {
		panic(err)
	}

	return s
}

// IDs returns a copy of the identifiers in insertion order.
func (s Scope) IDs() []any {
	return append([]any(nil), s.ids...)
}

// Len returns the number of distinct identifiers.
func (s Scope) Len() int {
	return len(s.ids)
}

// Single returns the only identifier when the scope holds exactly one.
func (s Scope) Single() (any, bool) {
	if len(s.ids) != 1 {
		return nil, false
	}

	return s.ids[0], true
}

// Contains reports whether id belongs to the scope.
func (s Scope) Contains(id any) bool {
	_, key, ok := normalize(id)
	if !ok {
		return false
	}
	_, found := s.keys[key]

	return found
}

// Apply adds "column IN (?, ...)" to c.
func (s Scope) Apply(c Criteria, column string) error {
	if len(s.ids) == 0 {
		return ErrEmptyScope
	}
	if _, err := database.ValidateIdentifier(column); err != nil {
		return err
	}

	c.Where(column+" IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(s.ids)), ", ")+")", s.IDs()...)

	return nil
}

// SQL returns a dialect-specific "column IN (...)" expression with its parameters.
// Postgres placeholders start at $1.
func (s Scope) SQL(d database.Dialect, column string) (string, []any, error) {
	return s.SQLAt(d, column, 1)
}

// SQLAt is SQL with Postgres placeholders numbered from start, for expressions appended
// after other parameters.
func (s Scope) SQLAt(d database.Dialect, column string, start int) (string, []any, error) {
	if len(s.ids) == 0 {
		return "", nil, ErrEmptyScope
	}
	if !d.Valid() {
		return "", nil, fmt.Errorf("%w: %d", database.ErrUnknownDialect, int(d))
	}
	name, err := database.ValidateIdentifier(column)
	if err != nil {
		return "", nil, err
	}
	if start < 1 {
		start = 1
	}

	expr := d.Quote(name) + " IN (" + d.Placeholders(start, len(s.ids)) + ")"

	return expr, s.IDs(), nil
}

// SQLNamed returns "column IN (:prefix0, :prefix1)" with a parameter map, for drivers and
// builders that bind named parameters. An empty prefix uses "tenant_".
func (s Scope) SQLNamed(prefix, column string) (string, map[string]any, error) {
	if len(s.ids) == 0 {
		return "", nil, ErrEmptyScope
	}
	if _, err := database.ValidateIdentifier(column); err != nil {
		return "", nil, err
	}
	if prefix == "" {
		prefix = "tenant_"
	}

	names := make([]string, len(s.ids))
	params := make(map[string]any, len(s.ids))
	for i, id := range s.ids {
		name := fmt.Sprintf("%s%d", prefix, i)
		names[i] = ":" + name
		params[name] = id
	}

	return column + " IN (" + strings.Join(names, ", ") + ")", params, nil
}

// Attach returns a copy of row with column set to the scope's tenant. The input row is not
// modified. A scope with more than one tenant cannot stamp inserts.
func (s Scope) Attach(row database.Row, column string) (database.Row, error) {
	id, ok := s.Single()
	if !ok {
		if len(s.ids) == 0 {
			return nil, ErrEmptyScope
		}
		return nil, fmt.Errorf("%w: %d tenants in scope", ErrAmbiguousTenant, len(s.ids))
	}

	out := row.Clone()
	out[column] = id

	return out, nil
}

// GuardRow returns ErrTenantMismatch unless row[column] belongs to the scope. A missing or
// NULL tenant column is a mismatch.
func (s Scope) GuardRow(row database.Row, column string) error {
	value, ok := row[column]
	if !ok || value == nil {
		return fmt.Errorf("%w: column %s is missing", ErrTenantMismatch, column)
	}
	if !s.Contains(value) {
		return fmt.Errorf("%w: %s=%v", ErrTenantMismatch, column, value)
	}

	return nil
}

// normalize dereferences pointers, turns []byte into string and returns the comparison key.
func normalize(id any) (any, string, bool) {
	if id == nil {
		return nil, "", false
	}

	rv := reflect.ValueOf(id)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, "", false
		}
		rv = rv.Elem()
	}
	value := rv.Interface()
	if b, ok := value.([]byte); ok {
		value = string(b)
	}

	// Keys compare exactly: " acme" is not "acme".
	key := fmt.Sprint(value)
	if strings.TrimSpace(key) == "" {
		return nil, "", false
	}

	return value, key, true
}

type contextKey struct{}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the scope stored by WithScope.
func FromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}

	s, ok := ctx.Value(contextKey{}).(Scope)
	if !ok || len(s.ids) == 0 {
		return Scope{}, false
	}

	return s, true
}
