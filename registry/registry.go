// Package registry manages the durable `_zstd_config` table, the single
// source of truth for which (table, column) pairs are currently compressed.
// See spec §4.2.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TableName is the name of the persisted registry table (spec §3).
const TableName = "_zstd_config"

const createTableDDL = `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	PRIMARY KEY (table_name, column_name)
)`

// Registry is a thin DAO over the _zstd_config table. The lifecycle
// functions create one per call, wrapping the *sql.Tx of that call; it must
// never be consulted from the VTab/cursor hot path (spec §5 "Shared
// resources").
type Registry struct {
	db execer
}

// execer is satisfied by both *sql.DB and *sql.Tx, so lifecycle operations
// that need registry changes to participate in a larger transaction can
// pass their *sql.Tx straight through.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New wraps db (a *sql.DB or *sql.Tx) in a Registry.
func New(db execer) *Registry {
	return &Registry{db: db}
}

// EnsureTable creates the registry table if it does not already exist.
// Safe to call on every connection open; idempotent.
func EnsureTable(ctx context.Context, db execer) error {
	if _, err := db.ExecContext(ctx, createTableDDL); err != nil {
		return fmt.Errorf("registry: create %s: %w", TableName, err)
	}
	return nil
}

// Mark records that column of table is compressed. Insert-or-ignore
// semantics: calling Mark twice for the same pair is a no-op.
func (r *Registry) Mark(ctx context.Context, table, column string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+TableName+` (table_name, column_name) VALUES (?, ?)`,
		table, column)
	if err != nil {
		return fmt.Errorf("registry: mark %s.%s: %w", table, column, err)
	}
	return nil
}

// Unmark removes the compressed marking for column of table. Idempotent:
// unmarking a pair that was never marked is not an error.
func (r *Registry) Unmark(ctx context.Context, table, column string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM `+TableName+` WHERE table_name = ? AND column_name = ?`,
		table, column)
	if err != nil {
		return fmt.Errorf("registry: unmark %s.%s: %w", table, column, err)
	}
	return nil
}

// ColumnsOf returns the compressed columns of table, in no particular order
// (registry rows carry no ordinal). Callers that need schema order should
// sort the result with (*schema.Table).OrderColumns.
func (r *Registry) ColumnsOf(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT column_name FROM `+TableName+` WHERE table_name = ?`, table)
	if err != nil {
		return nil, fmt.Errorf("registry: columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("registry: columns of %s: %w", table, err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: columns of %s: %w", table, err)
	}
	return cols, nil
}

// IsCompressed reports whether column of table is currently compressed.
func (r *Registry) IsCompressed(ctx context.Context, table, column string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+TableName+` WHERE table_name = ? AND column_name = ?`,
		table, column).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("registry: is compressed %s.%s: %w", table, column, err)
	default:
		return true, nil
	}
}

// AnyRegistered reports whether table has any compressed columns at all,
// used by lifecycle to detect "already enabled" / "not enabled" states.
func (r *Registry) AnyRegistered(ctx context.Context, table string) (bool, error) {
	cols, err := r.ColumnsOf(ctx, table)
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}
