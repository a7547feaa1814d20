package database

import "errors"

var (
	// ErrTxAlreadyOpen is returned by Begin when the handle already holds a transaction.
	ErrTxAlreadyOpen = errors.New("database: transaction already open")
	// ErrNoTx is returned by Commit or Rollback when no transaction is open.
	ErrNoTx = errors.New("database: no open transaction")
	// ErrHandleRequired is returned when a nil handle is provided.
	ErrHandleRequired = errors.New("database: handle is required")
	// ErrIdentifierRequired is returned when a table or column name is empty.
	ErrIdentifierRequired = errors.New("database: identifier is required")
	// ErrInvalidIdentifier is returned when a table or column name has disallowed characters.
	ErrInvalidIdentifier = errors.New("database: invalid identifier")
	// ErrUnknownDialect is returned when a dialect name cannot be resolved.
	ErrUnknownDialect = errors.New("database: unknown dialect")
)
