package vtab

import (
	"reflect"
	"unsafe"

	"github.com/mattn/go-sqlite3"

	"github.com/brianmacy/sqlite-zstd/internal/ffi"
)

// ConflictMode is the host's conflict-resolution signal for the statement
// driving the current VTab.Update call (spec §4.5).
type ConflictMode string

const (
	ConflictRollback ConflictMode = "ROLLBACK"
	ConflictAbort    ConflictMode = "ABORT"
	ConflictFail     ConflictMode = "FAIL"
	ConflictIgnore   ConflictMode = "IGNORE"
	ConflictReplace  ConflictMode = "REPLACE"
)

// conflictModeOf translates sqlite3_vtab_on_conflict's numeric result into
// a ConflictMode, defaulting to ABORT per spec §4.5 ("The default when the
// host supplies no signal is ABORT") for any value it doesn't recognize.
func conflictModeOf(code int) ConflictMode {
	switch code {
	case ffi.ConflictRollback:
		return ConflictRollback
	case ffi.ConflictIgnore:
		return ConflictIgnore
	case ffi.ConflictFail:
		return ConflictFail
	case ffi.ConflictReplace:
		return ConflictReplace
	default:
		return ConflictAbort
	}
}

// currentConflictMode asks the host (via the ffi shim) which conflict
// resolution the in-flight statement requested against conn. If the raw
// handle cannot be recovered, it safely defaults to ABORT rather than
// guessing.
func currentConflictMode(conn *sqlite3.SQLiteConn) ConflictMode {
	h := rawHandle(conn)
	if h == nil {
		return ConflictAbort
	}
	return conflictModeOf(ffi.OnConflict(h))
}

// rawHandle recovers the *sqlite3 connection handle that
// github.com/mattn/go-sqlite3 keeps as an unexported field on
// *sqlite3.SQLiteConn. It is the one place in this module that reaches past
// a library's public API; see DESIGN.md, "Open question decisions /
// Conflict-mode detection".
func rawHandle(conn *sqlite3.SQLiteConn) unsafe.Pointer {
	if conn == nil {
		return nil
	}
	v := reflect.ValueOf(conn).Elem()
	f := v.FieldByName("db")
	if !f.IsValid() || f.Kind() != reflect.Ptr {
		return nil
	}
	return unsafe.Pointer(f.Pointer())
}

// insertClause and updateClause render the conflict-adapted DML verb form
// (spec §4.5: "INSERT OR <mode> INTO ..." / "UPDATE OR <mode> ...").
func (m ConflictMode) insertClause() string {
	return "INSERT OR " + string(m) + " INTO"
}

func (m ConflictMode) updateClause() string {
	return "UPDATE OR " + string(m)
}
