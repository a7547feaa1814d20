//go:build integration

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	database "github.com/blackcatacademy/blackcat-database"
	"github.com/blackcatacademy/blackcat-database/idempotency"
	"github.com/blackcatacademy/blackcat-database/internal/testutil"
	"github.com/blackcatacademy/blackcat-database/outbox"
	"github.com/blackcatacademy/blackcat-database/sqldb"
)

func TestCleanupCLIContainer(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartMySQLContainer(t, ctx)

	outboxDDL, err := outbox.Schema(database.MySQL, "outbox_events")
	require.NoError(t, err)
	keysDDL, err := idempotency.Schema(database.MySQL, "idempotency_keys")
	require.NoError(t, err)
	testutil.ApplyDDL(t, ctx, env.DB, append(outboxDDL, keysDDL...))

	handle := sqldb.MustNew(env.DB)
	store, err := outbox.NewStore(outbox.WithDialect(database.MySQL))
	require.NoError(t, err)

	ids := make([]int64, 0, 3)
	require.NoError(t, database.Transact(ctx, handle, func(ctx context.Context) error {
		for i := 0; i < 3; i++ {
			id, err := store.Insert(ctx, handle, outbox.Entry{
				EventType:   "order.created",
				Payload:     json.RawMessage(`{"id":1}`),
				AggregateID: "1",
			})
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	}))

	old := time.Now().Add(-48 * time.Hour).UTC()
	_, err = env.DB.ExecContext(ctx, "UPDATE outbox_events SET acked_at = ? WHERE id = ?", old, ids[0])
	require.NoError(t, err)
	_, err = env.DB.ExecContext(ctx, "UPDATE outbox_events SET acked_at = ? WHERE id = ?", time.Now().UTC(), ids[1])
	require.NoError(t, err)

	keys, err := idempotency.NewSQLStore(handle, idempotency.WithDialect(database.MySQL))
	require.NoError(t, err)
	for _, key := range []string{"done", "open"} {
		owned, err := keys.Begin(ctx, key, 0)
		require.NoError(t, err)
		require.True(t, owned)
	}
	require.NoError(t, keys.Commit(ctx, "done", json.RawMessage(`{}`)))
	_, err = env.DB.ExecContext(ctx, "UPDATE idempotency_keys SET updated_at = ?", old)
	require.NoError(t, err)

	bin := testutil.BuildBinary(t, ".")
	args := []string{
		"-dsn", env.DSN,
		"-retention", "24h",
		"-idempotency-table", "idempotency_keys",
		"-idempotency-retention", "24h",
		"-once",
	}
	code, logs := testutil.RunCLIContainer(t, ctx, env.Network.Name, bin, args)
	require.Zero(t, code, "cleanup logs: %s", logs)

	require.Equal(t, 2, count(t, ctx, env.DB, "SELECT COUNT(*) FROM outbox_events"))
	require.Equal(t, 0, count(t, ctx, env.DB, "SELECT COUNT(*) FROM outbox_events WHERE id = ?", ids[0]))

	record, err := keys.Get(ctx, "open")
	require.NoError(t, err)
	require.NotNil(t, record)
	record, err = keys.Get(ctx, "done")
	require.NoError(t, err)
	require.Nil(t, record)
}

func count(t *testing.T, ctx context.Context, db *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRowContext(ctx, query, args...).Scan(&n))

	return n
}
