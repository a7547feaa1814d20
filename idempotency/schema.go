package idempotency

import (
	"fmt"
	"strings"

	database "github.com/blackcatacademy/blackcat-database"
)

const mysqlSchema = `CREATE TABLE IF NOT EXISTS %s (
	idempotency_key VARCHAR(191) NOT NULL,
	status VARCHAR(16) NOT NULL,
	result JSON NULL,
	error_message VARCHAR(1024) NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	expires_at DATETIME(6) NULL,
	PRIMARY KEY (idempotency_key),
	INDEX %s (status, updated_at)
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS %s (
	idempotency_key VARCHAR(191) PRIMARY KEY,
	status VARCHAR(16) NOT NULL,
	result JSONB NULL,
	error_message VARCHAR(1024) NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NULL
)`

const sqliteSchema = `CREATE TABLE IF NOT EXISTS %s (
	idempotency_key TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	result TEXT NULL,
	error_message TEXT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	expires_at DATETIME NULL
)`

const purgeIndex = "CREATE INDEX IF NOT EXISTS %s ON %s (status, updated_at)"

// Schema returns the DDL statements that create an idempotency table for the dialect.
func Schema(d database.Dialect, table string) ([]string, error) {
	name, err := database.ValidateIdentifier(table)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(name, ".")
	index := d.Quote("idx_" + parts[len(parts)-1] + "_purge")

	switch d {
	case database.MySQL:
		return []string{fmt.Sprintf(mysqlSchema, d.Quote(name), index)}, nil
	case database.Postgres:
		return []string{fmt.Sprintf(postgresSchema, d.Quote(name)), fmt.Sprintf(purgeIndex, index, d.Quote(name))}, nil
	case database.SQLite:
		return []string{fmt.Sprintf(sqliteSchema, d.Quote(name)), fmt.Sprintf(purgeIndex, index, d.Quote(name))}, nil
	default:
		return nil, ErrDialectRequired
	}
}
