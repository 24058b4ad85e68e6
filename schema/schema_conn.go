package schema

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
)

// connQueryer is the subset of github.com/mattn/go-sqlite3's *SQLiteConn
// this package needs. VTab.Create/Connect only ever have the raw driver
// connection to work with (there is no *sql.DB yet when the host is still
// parsing `CREATE VIRTUAL TABLE`), so schema reflection there goes through
// driver.QueryerContext directly instead of database/sql.
type connQueryer interface {
	QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error)
}

// ReflectViaConn is the driver-level twin of Reflect, used by the vtab
// package's Module.Create/Connect where only a raw *sqlite3.SQLiteConn is
// available (spec §4.3).
func ReflectViaConn(ctx context.Context, conn connQueryer, table string) (*Table, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)), nil)
	if err != nil {
		return nil, fmt.Errorf("schema: reflect %s: %w", table, err)
	}
	defer rows.Close()

	t := &Table{Name: table}
	cols := rows.Columns()
	dest := make([]driver.Value, len(cols))
	for {
		if err := rows.Next(dest); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("schema: reflect %s: %w", table, err)
		}
		col, err := columnFromRow(cols, dest)
		if err != nil {
			return nil, fmt.Errorf("schema: reflect %s: %w", table, err)
		}
		t.Columns = append(t.Columns, col)
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}

	if t.UniqueSets, err = uniqueSetsViaConn(ctx, conn, table); err != nil {
		return nil, fmt.Errorf("schema: reflect %s: %w", table, err)
	}
	if t.CheckClauses, err = checkClausesViaConn(ctx, conn, table); err != nil {
		return nil, fmt.Errorf("schema: reflect %s: %w", table, err)
	}
	return t, nil
}

// uniqueSetsViaConn is the connQueryer twin of uniqueSets.
func uniqueSetsViaConn(ctx context.Context, conn connQueryer, table string) ([][]string, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list(%s)`, quoteIdent(table)), nil)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := rows.Columns()
	dest := make([]driver.Value, len(cols))
	index := columnIndex(cols)

	var indexNames []string
	for {
		if err := rows.Next(dest); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		var name, origin string
		if i, ok := index["name"]; ok {
			name, _ = dest[i].(string)
		}
		if i, ok := index["origin"]; ok {
			origin, _ = dest[i].(string)
		}
		if origin == "u" {
			indexNames = append(indexNames, name)
		}
	}

	var sets [][]string
	for _, idx := range indexNames {
		cols, err := indexColumnsViaConn(ctx, conn, idx)
		if err != nil {
			return nil, err
		}
		if cols != nil {
			sets = append(sets, cols)
		}
	}
	return sets, nil
}

// indexColumnsViaConn is the connQueryer twin of indexColumns.
func indexColumnsViaConn(ctx context.Context, conn connQueryer, idx string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_info(%s)`, quoteIdent(idx)), nil)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := rows.Columns()
	dest := make([]driver.Value, len(cols))
	index := columnIndex(cols)

	var names []string
	for {
		if err := rows.Next(dest); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		i, ok := index["name"]
		if !ok || dest[i] == nil {
			return nil, nil
		}
		name, ok := dest[i].(string)
		if !ok {
			return nil, nil
		}
		names = append(names, name)
	}
	return names, nil
}

// checkClausesViaConn is the connQueryer twin of checkClauses.
func checkClausesViaConn(ctx context.Context, conn connQueryer, table string) ([]string, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`,
		[]driver.NamedValue{{Ordinal: 1, Value: table}})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := rows.Columns()
	dest := make([]driver.Value, len(cols))
	index := columnIndex(cols)

	var createSQL string
	for {
		if err := rows.Next(dest); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if i, ok := index["sql"]; ok {
			createSQL, _ = dest[i].(string)
		}
	}
	return extractCheckClauses(createSQL), nil
}

func columnIndex(cols []string) map[string]int {
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}
	return index
}

// columnFromRow maps one PRAGMA table_info row (cid, name, type, notnull,
// dflt_value, pk) addressed by column name rather than position, so a
// driver that reorders or adds columns to the PRAGMA's result does not
// silently misparse.
func columnFromRow(cols []string, dest []driver.Value) (Column, error) {
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}

	var c Column
	if i, ok := index["name"]; ok {
		c.Name, _ = dest[i].(string)
	}
	if i, ok := index["type"]; ok {
		c.DeclaredType, _ = dest[i].(string)
	}
	if i, ok := index["notnull"]; ok {
		c.NotNull = toInt64(dest[i]) != 0
	}
	if i, ok := index["pk"]; ok {
		c.PKPosition = int(toInt64(dest[i]))
	}
	if c.Name == "" {
		return Column{}, fmt.Errorf("pragma table_info: missing name column")
	}
	return c, nil
}

func toInt64(v driver.Value) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
