package lifecycle

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"

	"github.com/brianmacy/sqlite-zstd/registry"
	"github.com/brianmacy/sqlite-zstd/schema"
)

// connExecer is the subset of github.com/mattn/go-sqlite3's *SQLiteConn this
// package needs for the enable/disable/columns/stats SQL functions (spec §6
// "SQL surface"): those run inside a RegisterFunc callback on the very
// connection that is executing the calling statement, so there is no
// *sql.DB to hand them, only the raw driver connection — the same
// constraint schema.ReflectViaConn already solves for VTab.Create/Connect.
type connExecer interface {
	ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error)
	QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error)
}

// execConn runs query against conn with positional string/any arguments,
// discarding the result.
func execConn(ctx context.Context, conn connExecer, query string, args ...any) error {
	_, err := conn.ExecContext(ctx, query, namedValues(args))
	return err
}

func namedValues(args []any) []driver.NamedValue {
	if len(args) == 0 {
		return nil
	}
	nv := make([]driver.NamedValue, len(args))
	for i, a := range args {
		nv[i] = driver.NamedValue{Ordinal: i + 1, Value: a}
	}
	return nv
}

// tableKindViaConn is the connExecer twin of tableKind.
func tableKindViaConn(ctx context.Context, conn connExecer, name string) (string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT type FROM sqlite_master WHERE name = ?`, namedValues([]any{name}))
	if err != nil {
		return "", fmt.Errorf("lifecycle: look up %s: %w", name, err)
	}
	defer rows.Close()

	dest := make([]driver.Value, len(rows.Columns()))
	if err := rows.Next(dest); err != nil {
		if err == io.EOF {
			return "", nil
		}
		return "", fmt.Errorf("lifecycle: look up %s: %w", name, err)
	}
	kind, _ := dest[0].(string)
	return kind, nil
}

// reflectBackingViaConn is the connExecer twin of reflectBacking.
func reflectBackingViaConn(ctx context.Context, conn connExecer, table string) (*schema.Table, error) {
	return schema.ReflectViaConn(ctx, conn, backingName(table))
}

func newRegistryViaConn(conn connExecer) connRegistry {
	return connRegistry{conn: conn}
}

// connRegistry adapts the registry package's *ViaConn functions to a method
// set shaped like registry.Registry, so Enable/DisableViaConn read the same
// as their *sql.DB counterparts.
type connRegistry struct {
	conn connExecer
}

func (r connRegistry) Mark(ctx context.Context, table, column string) error {
	return registry.MarkViaConn(ctx, r.conn, table, column)
}

func (r connRegistry) Unmark(ctx context.Context, table, column string) error {
	return registry.UnmarkViaConn(ctx, r.conn, table, column)
}

func (r connRegistry) ColumnsOf(ctx context.Context, table string) ([]string, error) {
	return registry.ColumnsOfViaConn(ctx, r.conn, table)
}

func (r connRegistry) AnyRegistered(ctx context.Context, table string) (bool, error) {
	return registry.AnyRegisteredViaConn(ctx, r.conn, table)
}

func ensureTableViaConn(ctx context.Context, conn connExecer) error {
	return registry.EnsureTableViaConn(ctx, conn)
}
