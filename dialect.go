package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the placeholder style, identifier quoting and locking clauses of a backend.
type Dialect int

const (
	// MySQL targets MySQL 8.0+ (SKIP LOCKED support required).
	MySQL Dialect = iota + 1
	// Postgres targets PostgreSQL 9.5+.
	Postgres
	// SQLite targets SQLite 3.24+. Writers are serialized by the engine, so no locking clause is emitted.
	SQLite
)

// ParseDialect resolves a dialect by name ("mysql", "postgres", "pgx", "sqlite", "sqlite3").
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Valid reports whether d is a known dialect.
func (d Dialect) Valid() bool {
	return d == MySQL || d == Postgres || d == SQLite
}

// Placeholder returns the n-th (1-based) positional parameter marker.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}

	return "?"
}

// Placeholders returns count markers starting at position start, joined by commas.
func (d Dialect) Placeholders(start, count int) string {
	if count <= 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(start + i))
	}

	return b.String()
}

// Quote quotes an identifier, treating dots as schema separators.
// Callers validate identifiers with ValidateIdentifier first.
func (d Dialect) Quote(name string) string {
	open, closing := `"`, `"`
	if d == MySQL {
		open, closing = "`", "`"
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = open + strings.ReplaceAll(part, closing, closing+closing) + closing
	}

	return strings.Join(parts, ".")
}

// SkipLocked returns the locking clause appended to claim queries, with a leading space.
func (d Dialect) SkipLocked() string {
	if d == SQLite {
		return ""
	}

	return " FOR UPDATE SKIP LOCKED"
}

// InsertIfAbsent builds an insert that does nothing when a row with the same unique key exists.
// Callers inspect RowsAffected: 1 means the row was created by this statement.
func (d Dialect) InsertIfAbsent(table string, columns []string, conflictColumn string) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = d.Quote(col)
	}
	base := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table),
		strings.Join(quoted, ", "),
		d.Placeholders(1, len(columns)),
	)

	if d == MySQL {
		// Without CLIENT_FOUND_ROWS an unchanged duplicate reports zero affected rows.
		col := d.Quote(conflictColumn)
		return base + " ON DUPLICATE KEY UPDATE " + col + " = " + col
	}

	return base + " ON CONFLICT (" + d.Quote(conflictColumn) + ") DO NOTHING"
}
