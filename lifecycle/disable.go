package lifecycle

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brianmacy/sqlite-zstd/vtab"
)

// Disable reverses Enable (spec §4.6 "disable"), transactionally. If
// columns is empty, every currently compressed column is restored and the
// backing table is renamed back to table; otherwise only the named columns
// are decompressed and a new virtual table is created over whatever
// compressed columns remain.
func Disable(ctx context.Context, db *sql.DB, table string, columns []string) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lifecycle: disable %s: begin: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	reg := newRegistry(tx)
	if err := ensureTable(ctx, tx); err != nil {
		return err
	}
	all, err := reg.ColumnsOf(ctx, table)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return fmt.Errorf("%w: %s", ErrNotEnabled, table)
	}

	backing := backingName(table)
	tbl, err := reflectBacking(ctx, tx, table)
	if err != nil {
		return fmt.Errorf("lifecycle: disable %s: %w", table, err)
	}
	all = tbl.OrderColumns(all)

	toDisable := columns
	if len(toDisable) == 0 {
		toDisable = all
	}
	toDisable = tbl.OrderColumns(toDisable)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, quoteIdent(table))); err != nil {
		return fmt.Errorf("lifecycle: disable %s: drop virtual table: %w", table, err)
	}

	for _, c := range toDisable {
		stmt := fmt.Sprintf(`UPDATE %s SET %s = decompress(%s) WHERE %s IS NOT NULL`,
			quoteIdent(backing), quoteIdent(c), quoteIdent(c), quoteIdent(c))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("lifecycle: disable %s: decompress %s: %w", table, c, err)
		}
	}

	remaining := subtract(all, toDisable)
	if len(remaining) == 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, quoteIdent(backing), quoteIdent(table))); err != nil {
			return fmt.Errorf("lifecycle: disable %s: rename back: %w", table, err)
		}
	} else {
		createVTabSQL := fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING %s(%s%s)`,
			quoteIdent(table), vtab.ModuleName, quoteIdent(backing), columnArgList(remaining))
		if _, err := tx.ExecContext(ctx, createVTabSQL); err != nil {
			return fmt.Errorf("lifecycle: disable %s: recreate virtual table: %w", table, err)
		}
	}

	for _, c := range toDisable {
		if err := reg.Unmark(ctx, table, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lifecycle: disable %s: commit: %w", table, err)
	}
	return nil
}

// DisableViaConn is the connExecer twin of Disable, used by the SQL-callable
// `disable(table [, col])` function registered on conn itself (spec §6).
func DisableViaConn(ctx context.Context, conn connExecer, table string, columns []string) (err error) {
	if err := execConn(ctx, conn, `SAVEPOINT zstd_disable`); err != nil {
		return fmt.Errorf("lifecycle: disable %s: savepoint: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = execConn(ctx, conn, `ROLLBACK TO zstd_disable`)
		}
		_ = execConn(ctx, conn, `RELEASE zstd_disable`)
	}()

	reg := newRegistryViaConn(conn)
	all, err := reg.ColumnsOf(ctx, table)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return fmt.Errorf("%w: %s", ErrNotEnabled, table)
	}

	backing := backingName(table)
	tbl, err := reflectBackingViaConn(ctx, conn, table)
	if err != nil {
		return fmt.Errorf("lifecycle: disable %s: %w", table, err)
	}
	all = tbl.OrderColumns(all)

	toDisable := columns
	if len(toDisable) == 0 {
		toDisable = all
	}
	toDisable = tbl.OrderColumns(toDisable)

	if err := execConn(ctx, conn, fmt.Sprintf(`DROP TABLE %s`, quoteIdent(table))); err != nil {
		return fmt.Errorf("lifecycle: disable %s: drop virtual table: %w", table, err)
	}

	for _, c := range toDisable {
		stmt := fmt.Sprintf(`UPDATE %s SET %s = decompress(%s) WHERE %s IS NOT NULL`,
			quoteIdent(backing), quoteIdent(c), quoteIdent(c), quoteIdent(c))
		if err := execConn(ctx, conn, stmt); err != nil {
			return fmt.Errorf("lifecycle: disable %s: decompress %s: %w", table, c, err)
		}
	}

	remaining := subtract(all, toDisable)
	if len(remaining) == 0 {
		if err := execConn(ctx, conn, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, quoteIdent(backing), quoteIdent(table))); err != nil {
			return fmt.Errorf("lifecycle: disable %s: rename back: %w", table, err)
		}
	} else {
		createVTabSQL := fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING %s(%s%s)`,
			quoteIdent(table), vtab.ModuleName, quoteIdent(backing), columnArgList(remaining))
		if err := execConn(ctx, conn, createVTabSQL); err != nil {
			return fmt.Errorf("lifecycle: disable %s: recreate virtual table: %w", table, err)
		}
	}

	for _, c := range toDisable {
		if err := reg.Unmark(ctx, table, c); err != nil {
			return err
		}
	}
	return nil
}

func subtract(all, remove []string) []string {
	removed := make(map[string]bool, len(remove))
	for _, c := range remove {
		removed[c] = true
	}
	var out []string
	for _, c := range all {
		if !removed[c] {
			out = append(out, c)
		}
	}
	return out
}
