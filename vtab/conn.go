package vtab

import (
	"context"
	"database/sql/driver"
)

// exec runs query against the backing connection with positional
// parameters, used by Update to issue DML directly against
// the backing table within the same connection/transaction context the
// host is driving (spec §5: "all I/O operations are synchronous calls into
// the host driver").
func (v *VTab) exec(query string, args ...any) (driver.Result, error) {
	return v.conn.ExecContext(context.Background(), query, namedValues(args))
}

// query runs query against the backing connection, returning the raw
// driver.Rows the Cursor iterates directly (spec §4.4 "filter").
func (v *VTab) query(query string, args ...any) (driver.Rows, error) {
	return v.conn.QueryContext(context.Background(), query, namedValues(args))
}

func namedValues(args []any) []driver.NamedValue {
	nv := make([]driver.NamedValue, len(args))
	for i, a := range args {
		nv[i] = driver.NamedValue{Ordinal: i + 1, Value: driverValue(a)}
	}
	return nv
}

// driverValue coerces a value into one of the types driver.Value accepts,
// since driver.NamedValue.Value must be one of driver.Value's supported
// kinds (int64, float64, bool, []byte, string, time.Time, or nil).
func driverValue(v any) driver.Value {
	switch x := v.(type) {
	case nil, int64, float64, bool, []byte, string:
		return x
	case int:
		return int64(x)
	default:
		return x
	}
}
