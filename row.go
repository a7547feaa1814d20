package database

import (
	"fmt"
	"strconv"
	"time"
)

// Row is a fetched row keyed by column name.
type Row map[string]any

var rowTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}

	return out
}

// String returns the column as a string, or "" when absent or NULL.
func (r Row) String(column string) string {
	switch v := r[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the column as an integer.
func (r Row) Int64(column string) (int64, error) {
	switch v := r[column].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case nil:
		return 0, fmt.Errorf("database: column %q is NULL", column)
	default:
		return 0, fmt.Errorf("database: column %q has unsupported type %T", column, v)
	}
}

// Time returns the column as a time. The boolean is false when the column is absent or NULL.
func (r Row) Time(column string) (time.Time, bool, error) {
	switch v := r[column].(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return v.UTC(), true, nil
	case string:
		return parseRowTime(column, v)
	case []byte:
		return parseRowTime(column, string(v))
	default:
		return time.Time{}, false, fmt.Errorf("database: column %q has unsupported type %T", column, v)
	}
}

func parseRowTime(column, value string) (time.Time, bool, error) {
	for _, layout := range rowTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true, nil
		}
	}

	return time.Time{}, false, fmt.Errorf("database: column %q has unparsable time %q", column, value)
}
