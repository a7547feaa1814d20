package outbox

import (
	"fmt"

	database "github.com/blackcatacademy/blackcat-database"
)

const insertColumns = 9

type queries struct {
	insert       string
	claim        string
	get          string
	ack          string
	failCount    string
	fail         string
	cleanup      string
	countPending string
}

func newQueries(d database.Dialect, table string) queries {
	t := d.Quote(table)
	p := d.Placeholder

	payload := "payload"
	if d == database.Postgres {
		payload = "payload::text AS payload"
	}
	cols := "id, event_type, " + payload + ", routing_key, tenant, trace_id, aggregate_table, aggregate_id, " +
		"created_at, available_at, acked_at, fail_count, last_error"

	insert := fmt.Sprintf(
		"INSERT INTO %s (event_type, payload, routing_key, tenant, trace_id, aggregate_table, aggregate_id, created_at, available_at) VALUES (%s)",
		t,
		d.Placeholders(1, insertColumns),
	)
	if d == database.Postgres {
		insert += " RETURNING id"
	}

	claim := fmt.Sprintf(
		"SELECT %s FROM %s WHERE acked_at IS NULL AND available_at <= %s ORDER BY available_at ASC, id ASC LIMIT %s%s",
		cols, t, p(1), p(2), d.SkipLocked(),
	)
	get := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", cols, t, p(1))
	ack := fmt.Sprintf("UPDATE %s SET acked_at = %s WHERE id = %s AND acked_at IS NULL", t, p(1), p(2))
	failCount := fmt.Sprintf("SELECT fail_count FROM %s WHERE id = %s", t, p(1))
	fail := fmt.Sprintf(
		"UPDATE %s SET fail_count = fail_count + %s, last_error = %s, available_at = %s WHERE id = %s AND acked_at IS NULL",
		t, p(1), p(2), p(3), p(4),
	)
	// MySQL rejects LIMIT inside IN subqueries; the derived table works for every dialect.
	cleanup := fmt.Sprintf(
		"DELETE FROM %s WHERE id IN (SELECT id FROM (SELECT id FROM %s WHERE acked_at IS NOT NULL AND acked_at < %s ORDER BY id ASC LIMIT %s) AS doomed)",
		t, t, p(1), p(2),
	)
	countPending := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE acked_at IS NULL", t)

	return queries{
		insert:       insert,
		claim:        claim,
		get:          get,
		ack:          ack,
		failCount:    failCount,
		fail:         fail,
		cleanup:      cleanup,
		countPending: countPending,
	}
}
