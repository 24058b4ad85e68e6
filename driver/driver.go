// Package driver is the extension's loader entry point (spec §2 "A single
// initialization entry point registers: (a) a set of scalar functions
// usable from SQL, and (b) a virtual-table module"). It registers a
// database/sql driver named Name that wires scalarfn, lifecycle's SQL
// functions, and vtab into every connection mattn/go-sqlite3 opens, and
// ensures the registry table exists.
package driver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/brianmacy/sqlite-zstd/lifecycle"
	"github.com/brianmacy/sqlite-zstd/registry"
	"github.com/brianmacy/sqlite-zstd/scalarfn"
	"github.com/brianmacy/sqlite-zstd/vtab"
)

// Name is the database/sql driver name registered by Register.
const Name = "sqlite3_zstd"

// Options configures the registered driver.
type Options struct {
	// Level is the zstd compression level the virtual tables' write path
	// (INSERT and UPDATE through a compressed table) uses. Zero selects
	// vtab.DefaultLevel. Values already in a table when it is enabled are
	// compressed by the compress() SQL function at codec.DefaultLevel,
	// whatever Level is.
	Level int
}

var registered bool

// Register installs the "sqlite3_zstd" database/sql driver, configured per
// opts. The driver is registered at most once per process (database/sql
// itself panics on a duplicate registration); subsequent calls are no-ops,
// and their opts are ignored, so several callers can each call it.
func Register(opts Options) {
	if registered {
		return
	}
	registered = true

	module := &vtab.Module{Level: opts.Level}

	sql.Register(Name, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.CreateModule(vtab.ModuleName, module); err != nil {
				return fmt.Errorf("driver: register %s module: %w", vtab.ModuleName, err)
			}
			if err := scalarfn.Register(conn); err != nil {
				return fmt.Errorf("driver: register scalar functions: %w", err)
			}
			if err := lifecycle.RegisterSQLFunctions(conn); err != nil {
				return fmt.Errorf("driver: register lifecycle functions: %w", err)
			}
			return nil
		},
	})
}

// Open opens dsn through the registered driver and ensures the registry
// table exists, per spec §4.2 ("created on first enable call"): creating it
// eagerly on open keeps every later lifecycle call free of a first-use
// special case.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open(Name, dsn)
	if err != nil {
		return nil, fmt.Errorf("driver: open %s: %w", dsn, err)
	}
	if err := registry.EnsureTable(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
