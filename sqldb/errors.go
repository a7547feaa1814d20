package sqldb

import "errors"

// ErrDBRequired is returned when a nil *sql.DB is provided.
var ErrDBRequired = errors.New("sqldb: db is required")
