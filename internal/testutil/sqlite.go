// Package testutil holds database fixtures shared by package tests.
package testutil

import (
	"database/sql"
	"testing"

	// SQLite driver for in-process tests.
	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite opens a private in-memory SQLite database and executes the given DDL statements.
// The pool is pinned to one connection so that every caller sees the same memory database.
func OpenSQLite(t *testing.T, ddl ...string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_loc=UTC")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})

	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec ddl: %v\n%s", err, stmt)
		}
	}

	return db
}
