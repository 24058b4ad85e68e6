// Package ffi isolates the one place in this module where a pointer crosses
// the C ABI outside of what github.com/mattn/go-sqlite3 already wraps: the
// host's conflict-resolution signal for the statement driving the current
// VTab.Update call (spec §4.5, §9 "Unsafe FFI boundary").
//
// mattn/go-sqlite3's public VTabUpdater interface does not surface
// sqlite3_vtab_on_conflict, so the conflict adapter in package vtab asks
// this package instead. Everything above OnConflict only ever sees the
// plain int constants below; no other package imports "C".
package ffi

/*
#include <sqlite3.h>

static int sqlite_zstd_vtab_on_conflict(sqlite3 *db) {
	return sqlite3_vtab_on_conflict(db);
}
*/
import "C"
import "unsafe"

// SQLite's conflict-resolution codes (SQLITE_ROLLBACK, SQLITE_IGNORE,
// SQLITE_FAIL, SQLITE_ABORT, SQLITE_REPLACE), as returned by
// sqlite3_vtab_on_conflict. These are stable, documented constants of the
// SQLite C API (sqlite3.h), not something this extension invents.
const (
	ConflictRollback = 1
	ConflictIgnore   = 2
	ConflictFail     = 3
	ConflictAbort    = 4
	ConflictReplace  = 5
)

// OnConflict calls sqlite3_vtab_on_conflict(db) against the raw connection
// handle and returns one of the Conflict* constants above. dbHandle must be
// the live *sqlite3 pointer for the connection driving the in-flight
// VTab.Update call; see vtab.rawHandle for how that pointer is obtained from
// a *sqlite3.SQLiteConn.
func OnConflict(dbHandle unsafe.Pointer) int {
	return int(C.sqlite_zstd_vtab_on_conflict((*C.sqlite3)(dbHandle)))
}
