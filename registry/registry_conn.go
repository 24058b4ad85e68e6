package registry

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
)

// connExecer is the subset of github.com/mattn/go-sqlite3's *SQLiteConn this
// package needs when no *sql.DB exists yet: the enable/disable/columns/stats
// SQL functions (spec §6 "SQL surface") run inside a RegisterFunc callback
// on the very connection driving the statement that invoked them, not
// through a separate database/sql handle.
type connExecer interface {
	ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error)
	QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error)
}

// EnsureTableViaConn is the connExecer twin of EnsureTable.
func EnsureTableViaConn(ctx context.Context, conn connExecer) error {
	if _, err := conn.ExecContext(ctx, createTableDDL, nil); err != nil {
		return fmt.Errorf("registry: create %s: %w", TableName, err)
	}
	return nil
}

// MarkViaConn is the connExecer twin of Registry.Mark.
func MarkViaConn(ctx context.Context, conn connExecer, table, column string) error {
	_, err := conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+TableName+` (table_name, column_name) VALUES (?, ?)`,
		stringArgs(table, column))
	if err != nil {
		return fmt.Errorf("registry: mark %s.%s: %w", table, column, err)
	}
	return nil
}

// UnmarkViaConn is the connExecer twin of Registry.Unmark.
func UnmarkViaConn(ctx context.Context, conn connExecer, table, column string) error {
	_, err := conn.ExecContext(ctx,
		`DELETE FROM `+TableName+` WHERE table_name = ? AND column_name = ?`,
		stringArgs(table, column))
	if err != nil {
		return fmt.Errorf("registry: unmark %s.%s: %w", table, column, err)
	}
	return nil
}

// ColumnsOfViaConn is the connExecer twin of Registry.ColumnsOf.
func ColumnsOfViaConn(ctx context.Context, conn connExecer, table string) ([]string, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT column_name FROM `+TableName+` WHERE table_name = ?`, stringArgs(table))
	if err != nil {
		return nil, fmt.Errorf("registry: columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	dest := make([]driver.Value, 1)
	for {
		if err := rows.Next(dest); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("registry: columns of %s: %w", table, err)
		}
		col, _ := dest[0].(string)
		cols = append(cols, col)
	}
	return cols, nil
}

// AnyRegisteredViaConn is the connExecer twin of Registry.AnyRegistered.
func AnyRegisteredViaConn(ctx context.Context, conn connExecer, table string) (bool, error) {
	cols, err := ColumnsOfViaConn(ctx, conn, table)
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}

func stringArgs(args ...string) []driver.NamedValue {
	nv := make([]driver.NamedValue, len(args))
	for i, a := range args {
		nv[i] = driver.NamedValue{Ordinal: i + 1, Value: a}
	}
	return nv
}
