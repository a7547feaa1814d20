package tenant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	database "github.com/blackcatacademy/blackcat-database"
	"github.com/blackcatacademy/blackcat-database/tenant"
)

type criteria struct {
	conditions []string
	args       []any
}

func (c *criteria) Where(condition string, args ...any) {
	c.conditions = append(c.conditions, condition)
	c.args = append(c.args, args...)
}

func TestNewScope(t *testing.T) {
	_, err := tenant.NewScope()
	require.ErrorIs(t, err, tenant.ErrEmptyScope)

	_, err = tenant.NewScope(1, nil)
	require.ErrorIs(t, err, tenant.ErrInvalidTenant)

	_, err = tenant.NewScope(" ")
	require.ErrorIs(t, err, tenant.ErrInvalidTenant)

	id := int64(9)
	scope, err := tenant.NewScope(5, "5", &id, []byte("acme"))
	require.NoError(t, err)
	require.Equal(t, []any{5, int64(9), "acme"}, scope.IDs())
	require.Equal(t, 3, scope.Len())

	_, ok := scope.Single()
	require.False(t, ok)
	single, ok := tenant.MustNewScope("acme").Single()
	require.True(t, ok)
	require.Equal(t, "acme", single)
}

func TestScopeContains(t *testing.T) {
	scope := tenant.MustNewScope(5, "acme")

	require.True(t, scope.Contains(5))
	require.True(t, scope.Contains("5"))
	require.True(t, scope.Contains(int64(5)))
	require.True(t, scope.Contains([]byte("acme")))
	require.False(t, scope.Contains(6))
	require.False(t, scope.Contains(nil))
}

func TestScopeIDsIsACopy(t *testing.T) {
	scope := tenant.MustNewScope(1, 2)
	ids := scope.IDs()
	ids[0] = 99

	require.Equal(t, []any{1, 2}, scope.IDs())
}

func TestScopeApply(t *testing.T) {
	c := &criteria{}
	require.NoError(t, tenant.MustNewScope(1, 2).Apply(c, "orders.tenant_id"))
	require.Equal(t, []string{"orders.tenant_id IN (?, ?)"}, c.conditions)
	require.Equal(t, []any{1, 2}, c.args)

	require.ErrorIs(t, tenant.MustNewScope(1).Apply(c, "tenant_id; --"), database.ErrInvalidIdentifier)
	require.Len(t, c.conditions, 1)

	require.ErrorIs(t, tenant.Scope{}.Apply(c, "tenant_id"), tenant.ErrEmptyScope)
}

func TestScopeSQL(t *testing.T) {
	scope := tenant.MustNewScope(7, 8, 9)

	tests := []struct {
		dialect database.Dialect
		want    string
	}{
		{dialect: database.MySQL, want: "`o`.`tenant_id` IN (?, ?, ?)"},
		{dialect: database.Postgres, want: `"o"."tenant_id" IN ($1, $2, $3)`},
		{dialect: database.SQLite, want: `"o"."tenant_id" IN (?, ?, ?)`},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			expr, args, err := scope.SQL(tt.dialect, "o.tenant_id")
			require.NoError(t, err)
			require.Equal(t, tt.want, expr)
			require.Equal(t, []any{7, 8, 9}, args)
		})
	}

	expr, _, err := scope.SQLAt(database.Postgres, "tenant_id", 3)
	require.NoError(t, err)
	require.Equal(t, `"tenant_id" IN ($3, $4, $5)`, expr)

	_, _, err = scope.SQL(database.Dialect(0), "tenant_id")
	require.ErrorIs(t, err, database.ErrUnknownDialect)
	_, _, err = scope.SQL(database.MySQL, "")
	require.ErrorIs(t, err, database.ErrIdentifierRequired)
}

func TestScopeSQLNamed(t *testing.T) {
	expr, params, err := tenant.MustNewScope("a", "b").SQLNamed("", "tenant_id")
	require.NoError(t, err)
	require.Equal(t, "tenant_id IN (:tenant_0, :tenant_1)", expr)
	require.Equal(t, map[string]any{"tenant_0": "a", "tenant_1": "b"}, params)

	expr, _, err = tenant.MustNewScope("a").SQLNamed("t", "tenant_id")
	require.NoError(t, err)
	require.Equal(t, "tenant_id IN (:t0)", expr)
}

func TestScopeAttach(t *testing.T) {
	row := database.Row{"name": "ann"}

	stamped, err := tenant.MustNewScope(42).Attach(row, "tenant_id")
	require.NoError(t, err)
	require.Equal(t, database.Row{"name": "ann", "tenant_id": 42}, stamped)
	require.Equal(t, database.Row{"name": "ann"}, row)

	stamped, err = tenant.MustNewScope(42).Attach(nil, "tenant_id")
	require.NoError(t, err)
	require.Equal(t, database.Row{"tenant_id": 42}, stamped)

	_, err = tenant.MustNewScope(1, 2).Attach(row, "tenant_id")
	require.ErrorIs(t, err, tenant.ErrAmbiguousTenant)
}

func TestScopeGuardRow(t *testing.T) {
	scope := tenant.MustNewScope(1, 2)

	require.NoError(t, scope.GuardRow(database.Row{"tenant_id": int64(2)}, "tenant_id"))
	require.NoError(t, scope.GuardRow(database.Row{"tenant_id": "1"}, "tenant_id"))
	require.ErrorIs(t, scope.GuardRow(database.Row{"tenant_id": 3}, "tenant_id"), tenant.ErrTenantMismatch)
	require.ErrorIs(t, scope.GuardRow(database.Row{"tenant_id": nil}, "tenant_id"), tenant.ErrTenantMismatch)
	require.ErrorIs(t, scope.GuardRow(database.Row{"id": 1}, "tenant_id"), tenant.ErrTenantMismatch)

	named := tenant.MustNewScope("acme")
	require.NoError(t, named.GuardRow(database.Row{"tenant_id": []byte("acme")}, "tenant_id"))
	for _, id := range []any{" acme", "acme ", "acme\n", "ACME", ""} {
		require.ErrorIs(t, named.GuardRow(database.Row{"tenant_id": id}, "tenant_id"), tenant.ErrTenantMismatch, "%q", id)
	}
}

func TestScopeContext(t *testing.T) {
	_, ok := tenant.FromContext(context.Background())
	require.False(t, ok)

	scope := tenant.MustNewScope("acme")
	got, ok := tenant.FromContext(tenant.WithScope(context.Background(), scope))
	require.True(t, ok)
	require.True(t, got.Contains("acme"))
}
