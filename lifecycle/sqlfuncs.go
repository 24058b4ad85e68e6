package lifecycle

import (
	"context"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// RegisterSQLFunctions installs enable/disable/columns/stats as SQL-callable
// scalar functions on conn (spec §6 "SQL surface": `enable(table [, col,
// …])`, `disable(table [, col])`, `columns(table)`, `stats(table)`),
// alongside scalarfn.Register's compress/decompress. Each closure captures
// conn and drives the *ViaConn functions above directly against it — the one
// other place (besides the conflict-mode adapter in internal/ffi) this
// module reaches past database/sql's pooled-connection abstraction, because
// a RegisterFunc callback only ever has the connection executing the
// calling statement to work with.
func RegisterSQLFunctions(conn *sqlite3.SQLiteConn) error {
	if err := conn.RegisterFunc("enable", func(table string, cols ...string) (string, error) {
		if err := EnableViaConn(context.Background(), conn, table, cols); err != nil {
			return "", err
		}
		return fmt.Sprintf("enabled: %s", table), nil
	}, false); err != nil {
		return fmt.Errorf("lifecycle: register enable: %w", err)
	}

	if err := conn.RegisterFunc("disable", func(table string, cols ...string) (string, error) {
		if err := DisableViaConn(context.Background(), conn, table, cols); err != nil {
			return "", err
		}
		return fmt.Sprintf("disabled: %s", table), nil
	}, false); err != nil {
		return fmt.Errorf("lifecycle: register disable: %w", err)
	}

	if err := conn.RegisterFunc("columns", func(table string) (string, error) {
		return ColumnsViaConn(context.Background(), conn, table)
	}, false); err != nil {
		return fmt.Errorf("lifecycle: register columns: %w", err)
	}

	if err := conn.RegisterFunc("stats", func(table string) (string, error) {
		return StatsViaConn(context.Background(), conn, table)
	}, false); err != nil {
		return fmt.Errorf("lifecycle: register stats: %w", err)
	}
	return nil
}
