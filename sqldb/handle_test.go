package sqldb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	database "github.com/blackcatacademy/blackcat-database"
	"github.com/blackcatacademy/blackcat-database/internal/testutil"
	"github.com/blackcatacademy/blackcat-database/sqldb"
)

const usersDDL = `CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, tenant_id INTEGER NOT NULL)`

func TestHandleFetchHelpers(t *testing.T) {
	ctx := context.Background()
	h := sqldb.MustNew(testutil.OpenSQLite(t, usersDDL))
	meta := database.Meta{}

	res, err := h.ExecWithMeta(ctx, meta, "INSERT INTO users (name, tenant_id) VALUES (?, ?), (?, ?)", "ann", 1, "bob", 2)
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	require.EqualValues(t, 2, affected)

	rows, err := h.FetchAllWithMeta(ctx, meta, "SELECT id, name, tenant_id FROM users ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "ann", rows[0].String("name"))
	tenant, err := rows[1].Int64("tenant_id")
	require.NoError(t, err)
	require.EqualValues(t, 2, tenant)

	row, err := h.FetchRowWithMeta(ctx, meta, "SELECT name FROM users WHERE id = ?", 42)
	require.NoError(t, err)
	require.Nil(t, row)

	value, err := h.FetchValueWithMeta(ctx, meta, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	require.EqualValues(t, 2, value)

	exists, err := h.Exists(ctx, meta, "SELECT 1 FROM users WHERE name = ?", "bob")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = h.Exists(ctx, meta, "SELECT 1 FROM users WHERE name = ?", "eve")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestHandleTransactionBoundaries(t *testing.T) {
	ctx := context.Background()
	h := sqldb.MustNew(testutil.OpenSQLite(t, usersDDL))
	meta := database.Meta{}

	require.False(t, h.InTransaction())
	require.ErrorIs(t, h.Commit(), database.ErrNoTx)
	require.ErrorIs(t, h.Rollback(), database.ErrNoTx)

	require.NoError(t, h.Begin(ctx))
	require.True(t, h.InTransaction())
	require.ErrorIs(t, h.Begin(ctx), database.ErrTxAlreadyOpen)

	_, err := h.ExecWithMeta(ctx, meta, "INSERT INTO users (name, tenant_id) VALUES (?, ?)", "ann", 1)
	require.NoError(t, err)
	require.NoError(t, h.Rollback())
	require.False(t, h.InTransaction())

	count, err := h.FetchValueWithMeta(ctx, meta, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestTransactCommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	h := sqldb.MustNew(testutil.OpenSQLite(t, usersDDL))
	meta := database.Meta{}

	err := database.Transact(ctx, h, func(ctx context.Context) error {
		_, err := h.ExecWithMeta(ctx, meta, "INSERT INTO users (name, tenant_id) VALUES (?, ?)", "ann", 1)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = database.Transact(ctx, h, func(ctx context.Context) error {
		if _, err := h.ExecWithMeta(ctx, meta, "INSERT INTO users (name, tenant_id) VALUES (?, ?)", "bob", 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, h.InTransaction())

	count, err := h.FetchValueWithMeta(ctx, meta, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestSessionDoesNotShareTransaction(t *testing.T) {
	ctx := context.Background()
	h := sqldb.MustNew(testutil.OpenSQLite(t, usersDDL))
	require.NoError(t, h.Begin(ctx))
	t.Cleanup(func() { _ = h.Rollback() })

	session := h.Session()
	require.False(t, session.InTransaction())
	require.Same(t, h.DB(), session.DB())
}

func TestNewRequiresDB(t *testing.T) {
	_, err := sqldb.New(nil)
	require.ErrorIs(t, err, sqldb.ErrDBRequired)
}
