package lifecycle

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brianmacy/sqlite-zstd/schema"
	"github.com/brianmacy/sqlite-zstd/vtab"
)

// Enable compresses table, transactionally (spec §4.6 "enable"). If columns
// is empty, every column with TEXT affinity is targeted. Fails with
// ErrAlreadyEnabled if table already has compressed columns, or
// ErrNoSuchTable if it is not an ordinary table.
func Enable(ctx context.Context, db *sql.DB, table string, columns []string) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lifecycle: enable %s: begin: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	kind, err := tableKind(ctx, tx, table)
	if err != nil {
		return err
	}
	if kind == "" {
		return fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}
	if kind != "table" {
		return fmt.Errorf("%w: %s: not an ordinary table (sqlite_master.type=%q)", ErrNoSuchTable, table, kind)
	}

	reg := newRegistry(tx)
	if err := ensureTable(ctx, tx); err != nil {
		return err
	}
	already, err := reg.AnyRegistered(ctx, table)
	if err != nil {
		return err
	}
	if already {
		return fmt.Errorf("%w: %s", ErrAlreadyEnabled, table)
	}

	tbl, err := schema.Reflect(ctx, tx, table)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoSuchTable, table, err)
	}

	target := columns
	if len(target) == 0 {
		for _, c := range tbl.Columns {
			if schema.IsTextAffinity(c.DeclaredType) {
				target = append(target, c.Name)
			}
		}
	}
	target = tbl.OrderColumns(target)
	if len(target) == 0 {
		return fmt.Errorf("lifecycle: enable %s: no compressible (text-affinity) columns", table)
	}

	for _, c := range target {
		if err := reg.Mark(ctx, table, c); err != nil {
			return err
		}
	}

	backing := backingName(table)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, quoteIdent(table), quoteIdent(backing))); err != nil {
		return fmt.Errorf("lifecycle: enable %s: rename: %w", table, err)
	}

	for _, c := range target {
		stmt := fmt.Sprintf(`UPDATE %s SET %s = compress(%s) WHERE %s IS NOT NULL`,
			quoteIdent(backing), quoteIdent(c), quoteIdent(c), quoteIdent(c))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("lifecycle: enable %s: compress existing values of %s: %w", table, c, err)
		}
	}

	createVTabSQL := fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING %s(%s%s)`,
		quoteIdent(table), vtab.ModuleName, quoteIdent(backing), columnArgList(target))
	if _, err := tx.ExecContext(ctx, createVTabSQL); err != nil {
		return fmt.Errorf("lifecycle: enable %s: create virtual table: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lifecycle: enable %s: commit: %w", table, err)
	}
	return nil
}

// EnableViaConn is the connExecer twin of Enable, used by the SQL-callable
// `enable(table [, col, …])` function registered on conn itself (spec §6):
// there is no *sql.DB inside a RegisterFunc callback, only the connection
// driving the calling statement, so atomicity here comes from a SAVEPOINT
// rather than BEGIN/COMMIT (sqlite supports nesting those inside whatever
// transaction, implicit or not, the host already opened for that statement).
func EnableViaConn(ctx context.Context, conn connExecer, table string, columns []string) (err error) {
	if err := execConn(ctx, conn, `SAVEPOINT zstd_enable`); err != nil {
		return fmt.Errorf("lifecycle: enable %s: savepoint: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = execConn(ctx, conn, `ROLLBACK TO zstd_enable`)
		}
		_ = execConn(ctx, conn, `RELEASE zstd_enable`)
	}()

	kind, err := tableKindViaConn(ctx, conn, table)
	if err != nil {
		return err
	}
	if kind == "" {
		return fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}
	if kind != "table" {
		return fmt.Errorf("%w: %s: not an ordinary table (sqlite_master.type=%q)", ErrNoSuchTable, table, kind)
	}

	reg := newRegistryViaConn(conn)
	if err := ensureTableViaConn(ctx, conn); err != nil {
		return err
	}
	already, err := reg.AnyRegistered(ctx, table)
	if err != nil {
		return err
	}
	if already {
		return fmt.Errorf("%w: %s", ErrAlreadyEnabled, table)
	}

	tbl, err := schema.ReflectViaConn(ctx, conn, table)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoSuchTable, table, err)
	}

	target := columns
	if len(target) == 0 {
		for _, c := range tbl.Columns {
			if schema.IsTextAffinity(c.DeclaredType) {
				target = append(target, c.Name)
			}
		}
	}
	target = tbl.OrderColumns(target)
	if len(target) == 0 {
		return fmt.Errorf("lifecycle: enable %s: no compressible (text-affinity) columns", table)
	}

	for _, c := range target {
		if err := reg.Mark(ctx, table, c); err != nil {
			return err
		}
	}

	backing := backingName(table)
	if err := execConn(ctx, conn, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, quoteIdent(table), quoteIdent(backing))); err != nil {
		return fmt.Errorf("lifecycle: enable %s: rename: %w", table, err)
	}

	for _, c := range target {
		stmt := fmt.Sprintf(`UPDATE %s SET %s = compress(%s) WHERE %s IS NOT NULL`,
			quoteIdent(backing), quoteIdent(c), quoteIdent(c), quoteIdent(c))
		if err := execConn(ctx, conn, stmt); err != nil {
			return fmt.Errorf("lifecycle: enable %s: compress existing values of %s: %w", table, c, err)
		}
	}

	createVTabSQL := fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING %s(%s%s)`,
		quoteIdent(table), vtab.ModuleName, quoteIdent(backing), columnArgList(target))
	if err := execConn(ctx, conn, createVTabSQL); err != nil {
		return fmt.Errorf("lifecycle: enable %s: create virtual table: %w", table, err)
	}
	return nil
}

func columnArgList(cols []string) string {
	var b []byte
	for _, c := range cols {
		b = append(b, ',', ' ')
		b = append(b, quoteIdent(c)...)
	}
	return string(b)
}
