// Package lifecycle implements enable/disable/columns/stats (spec §4.6):
// the scalar SQL functions that orchestrate renaming a user table behind a
// `zstd` virtual table of the original name, and keep the registry and
// physical/virtual tables in sync, transactionally.
package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/brianmacy/sqlite-zstd/registry"
	"github.com/brianmacy/sqlite-zstd/schema"
)

// Errors named after spec §7's LifecycleError kinds.
var (
	ErrAlreadyEnabled = errors.New("lifecycle: table is already enabled")
	ErrNoSuchTable    = errors.New("lifecycle: no such table")
	ErrNotEnabled     = errors.New("lifecycle: table is not enabled")
)

// backingName returns the physical table name a compressed table `table` is
// renamed to (spec §3: "_zstd_<table>").
func backingName(table string) string {
	return "_zstd_" + table
}

// tableKind returns sqlite_master's `type` for name ("table", "view",
// "index", ...), or "" if no such object exists.
func tableKind(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	var kind string
	err := tx.QueryRowContext(ctx, `SELECT type FROM sqlite_master WHERE name = ?`, name).Scan(&kind)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("lifecycle: look up %s: %w", name, err)
	default:
		return kind, nil
	}
}

// sqlExecer is the subset of *sql.DB / *sql.Tx the registry and schema
// packages need; letting lifecycle operations take either lets the
// transactional ones (enable, disable) and the read-only ones (columns,
// stats) share the same helpers.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// reflectBacking reflects the physical backing table of a compressed
// (possibly already-virtualized) table.
func reflectBacking(ctx context.Context, x sqlExecer, table string) (*schema.Table, error) {
	return schema.Reflect(ctx, x, backingName(table))
}

func newRegistry(x sqlExecer) *registry.Registry {
	return registry.New(x)
}

func ensureTable(ctx context.Context, x sqlExecer) error {
	return registry.EnsureTable(ctx, x)
}

// quoteIdent double-quotes a SQL identifier, escaping embedded quotes.
func quoteIdent(ident string) string {
	var b []byte
	b = append(b, '"')
	for i := 0; i < len(ident); i++ {
		if ident[i] == '"' {
			b = append(b, '"', '"')
			continue
		}
		b = append(b, ident[i])
	}
	b = append(b, '"')
	return string(b)
}
