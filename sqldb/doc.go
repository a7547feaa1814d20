// Package sqldb implements database.Handle on top of database/sql.
//
// A Handle wraps a *sql.DB and tracks at most one open transaction. Handles are cheap:
// share the *sql.DB and create one Handle per request or worker with Session, so that
// transaction state never leaks between callers.
package sqldb
