package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Columns returns the compressed columns of table, in schema order, as a
// comma-separated list (spec §4.6 "columns").
func Columns(ctx context.Context, db *sql.DB, table string) (string, error) {
	names, err := columnNames(ctx, db, table)
	if err != nil {
		return "", err
	}
	return strings.Join(names, ","), nil
}

func columnNames(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	reg := newRegistry(db)
	names, err := reg.ColumnsOf(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	tbl, err := reflectBacking(ctx, db, table)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: columns %s: %w", table, err)
	}
	return tbl.OrderColumns(names), nil
}

// ColumnsViaConn is the connExecer twin of Columns, used by the SQL-callable
// `columns(table)` function registered on conn itself (spec §6).
func ColumnsViaConn(ctx context.Context, conn connExecer, table string) (string, error) {
	names, err := columnNamesViaConn(ctx, conn, table)
	if err != nil {
		return "", err
	}
	return strings.Join(names, ","), nil
}

func columnNamesViaConn(ctx context.Context, conn connExecer, table string) ([]string, error) {
	reg := newRegistryViaConn(conn)
	names, err := reg.ColumnsOf(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	tbl, err := reflectBackingViaConn(ctx, conn, table)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: columns %s: %w", table, err)
	}
	return tbl.OrderColumns(names), nil
}
