package outbox

import (
	"fmt"
	"strings"

	database "github.com/blackcatacademy/blackcat-database"
)

const mysqlSchema = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	event_type VARCHAR(191) NOT NULL,
	payload JSON NOT NULL,
	routing_key VARCHAR(191) NULL,
	tenant VARCHAR(191) NULL,
	trace_id VARCHAR(128) NULL,
	aggregate_table VARCHAR(128) NULL,
	aggregate_id VARCHAR(255) NULL,
	created_at DATETIME(6) NOT NULL,
	available_at DATETIME(6) NOT NULL,
	acked_at DATETIME(6) NULL,
	fail_count INT NOT NULL DEFAULT 0,
	last_error VARCHAR(1024) NULL,
	PRIMARY KEY (id),
	INDEX %s (acked_at, available_at, id)
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	event_type VARCHAR(191) NOT NULL,
	payload JSONB NOT NULL,
	routing_key VARCHAR(191) NULL,
	tenant VARCHAR(191) NULL,
	trace_id VARCHAR(128) NULL,
	aggregate_table VARCHAR(128) NULL,
	aggregate_id VARCHAR(255) NULL,
	created_at TIMESTAMPTZ NOT NULL,
	available_at TIMESTAMPTZ NOT NULL,
	acked_at TIMESTAMPTZ NULL,
	fail_count INTEGER NOT NULL DEFAULT 0,
	last_error VARCHAR(1024) NULL
)`

const sqliteSchema = `CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	routing_key TEXT NULL,
	tenant TEXT NULL,
	trace_id TEXT NULL,
	aggregate_table TEXT NULL,
	aggregate_id TEXT NULL,
	created_at DATETIME NOT NULL,
	available_at DATETIME NOT NULL,
	acked_at DATETIME NULL,
	fail_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NULL
)`

const claimIndex = "CREATE INDEX IF NOT EXISTS %s ON %s (acked_at, available_at, id)"

// Schema returns the DDL statements that create an outbox table for the dialect.
func Schema(d database.Dialect, table string) ([]string, error) {
	name, err := database.ValidateIdentifier(table)
	if err != nil {
		return nil, err
	}
	index := d.Quote(indexName(name))

	switch d {
	case database.MySQL:
		return []string{fmt.Sprintf(mysqlSchema, d.Quote(name), index)}, nil
	case database.Postgres:
		return []string{
			fmt.Sprintf(postgresSchema, d.Quote(name)),
			fmt.Sprintf(claimIndex, index, d.Quote(name)),
		}, nil
	case database.SQLite:
		return []string{
			fmt.Sprintf(sqliteSchema, d.Quote(name)),
			fmt.Sprintf(claimIndex, index, d.Quote(name)),
		}, nil
	default:
		return nil, ErrDialectRequired
	}
}

func indexName(table string) string {
	parts := strings.Split(table, ".")

	return "idx_" + parts[len(parts)-1] + "_claim"
}
