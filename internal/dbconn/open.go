// Package dbconn opens database/sql pools for the commands.
package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	// Drivers selectable by name.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	database "github.com/blackcatacademy/blackcat-database"
)

// ErrClientFoundRows is returned for MySQL DSNs with clientFoundRows=true. With it the server
// reports matched rows, so a duplicate insert looks like a successful claim.
var ErrClientFoundRows = errors.New("dbconn: mysql clientFoundRows=true is not supported")

// DriverName maps a dialect to its registered database/sql driver.
func DriverName(d database.Dialect) (string, error) {
	switch d {
	case database.MySQL:
		return "mysql", nil
	case database.Postgres:
		return "pgx", nil
	case database.SQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("%w: %v", database.ErrUnknownDialect, d)
	}
}

// Open opens and pings a pool for the named driver ("mysql", "postgres", "sqlite").
func Open(ctx context.Context, driver, dsn string, maxOpen int, timeout time.Duration) (*sql.DB, database.Dialect, error) {
	dialect, err := database.ParseDialect(driver)
	if err != nil {
		return nil, 0, err
	}
	if dsn == "" {
		return nil, 0, fmt.Errorf("dbconn: dsn is required")
	}
	name, err := DriverName(dialect)
	if err != nil {
		return nil, 0, err
	}
	if dialect == database.MySQL {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, 0, fmt.Errorf("dbconn: parse mysql dsn: %w", err)
		}
		if cfg.ClientFoundRows {
			return nil, 0, ErrClientFoundRows
		}
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, 0, fmt.Errorf("dbconn: open %s: %w", name, err)
	}
	if dialect == database.SQLite {
		// SQLite has a single writer.
		db.SetMaxOpenConns(1)
	} else if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, 0, fmt.Errorf("dbconn: ping %s: %w", name, err)
	}

	return db, dialect, nil
}
