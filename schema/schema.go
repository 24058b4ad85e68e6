// Package schema reflects a SQLite table's structure through PRAGMA
// introspection and renders the declarative schema the VTab module hands
// back to the host in Create/Connect (spec §4.3), plus the column-ordering
// helper lifecycle's `columns(table)` needs (spec §4.2/§4.6).
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// execer is the minimal database/sql surface schema needs; satisfied by
// *sql.DB and *sql.Tx.
type execer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Column describes one column of a reflected table.
type Column struct {
	Name         string
	DeclaredType string
	NotNull      bool
	PKPosition   int // 1-based position within the primary key, 0 if not part of it
}

// Table is the reflected shape of a single SQLite table, in column order.
type Table struct {
	Name    string
	Columns []Column

	// UniqueSets holds the table's non-primary-key UNIQUE constraints, each
	// as an ordered group of column names (spec §4.3 "uniqueness").
	UniqueSets [][]string

	// CheckClauses holds each CHECK(...) constraint's body, verbatim from
	// the CREATE TABLE text sqlite_master stored, in declaration order
	// (spec §4.3 "checks").
	CheckClauses []string
}

// Reflect reads table's shape via PRAGMA table_info, plus its non-PK UNIQUE
// constraints (PRAGMA index_list/index_info) and CHECK clauses
// (sqlite_master.sql) so DeclareVTabSQL can reproduce them on the virtual
// table (spec §4.3). It fails with ErrNoSuchTable if table_info reports zero
// columns, which is how SQLite signals "no such table" through this PRAGMA
// (it does not itself error).
func Reflect(ctx context.Context, db execer, table string) (*Table, error) {
	// table_info does not accept bound parameters for the table name, so the
	// name is spliced in through quoteIdent instead.
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("schema: reflect %s: %w", table, err)
	}
	defer rows.Close()

	t := &Table{Name: table}
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("schema: reflect %s: %w", table, err)
		}
		t.Columns = append(t.Columns, Column{
			Name:         name,
			DeclaredType: ctype,
			NotNull:      notnull != 0,
			PKPosition:   pk,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema: reflect %s: %w", table, err)
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}

	if t.UniqueSets, err = uniqueSets(ctx, db, table); err != nil {
		return nil, fmt.Errorf("schema: reflect %s: %w", table, err)
	}
	if t.CheckClauses, err = checkClauses(ctx, db, table); err != nil {
		return nil, fmt.Errorf("schema: reflect %s: %w", table, err)
	}
	return t, nil
}

// uniqueSets reads the table's non-primary-key UNIQUE constraints via
// PRAGMA index_list (filtering origin='u', the marker SQLite gives indices
// it created to enforce a UNIQUE constraint rather than an explicit CREATE
// INDEX or the PRIMARY KEY) and PRAGMA index_info for each index's ordered
// column list.
func uniqueSets(ctx context.Context, db execer, table string) ([][]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexNames []string
	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, err
		}
		if origin == "u" {
			indexNames = append(indexNames, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var sets [][]string
	for _, idx := range indexNames {
		cols, err := indexColumns(ctx, db, idx)
		if err != nil {
			return nil, err
		}
		if cols != nil {
			sets = append(sets, cols)
		}
	}
	return sets, nil
}

// indexColumns returns idx's columns in index order via PRAGMA index_info.
// It returns nil if any column is an expression rather than a plain column
// reference (index_info reports those with a NULL name), since those can't
// be declared as a plain UNIQUE(...) clause on the virtual table.
func indexColumns(ctx context.Context, db execer, idx string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_info(%s)`, quoteIdent(idx)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			seqno int
			cid   int
			name  sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if !name.Valid {
			return nil, nil
		}
		cols = append(cols, name.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

// checkClauses extracts CHECK(...) constraint bodies from the table's stored
// CREATE TABLE text. SQLite exposes no PRAGMA for parsed CHECK constraints,
// so this reads the text sqlite_master kept verbatim instead of parsing SQL
// in general (spec's dropped-dependency rationale for not pulling in a full
// SQL parser applies here too).
func checkClauses(ctx context.Context, db execer, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var createSQL string
	for rows.Next() {
		if err := rows.Scan(&createSQL); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return extractCheckClauses(createSQL), nil
}

// ErrNoSuchTable is returned by Reflect when the PRAGMA reports no columns.
var ErrNoSuchTable = errors.New("schema: no such table")

// ColumnNames returns the table's column names in schema order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKeyColumns returns the table's primary-key columns ordered by their
// position within a composite key (PRAGMA table_info's pk field is 1-based
// and already reflects declaration order).
func (t *Table) PrimaryKeyColumns() []string {
	type indexed struct {
		name string
		pos  int
	}
	var pk []indexed
	for _, c := range t.Columns {
		if c.PKPosition > 0 {
			pk = append(pk, indexed{c.Name, c.PKPosition})
		}
	}
	for i := 1; i < len(pk); i++ {
		for j := i; j > 0 && pk[j-1].pos > pk[j].pos; j-- {
			pk[j-1], pk[j] = pk[j], pk[j-1]
		}
	}
	names := make([]string, len(pk))
	for i, e := range pk {
		names[i] = e.name
	}
	return names
}

// IsTextAffinity reports whether a declared column type has TEXT affinity
// under SQLite's type-affinity rules (the declared type name contains
// "CHAR", "CLOB", or "TEXT"), matching what `enable` uses to pick default
// compression targets when the caller names no explicit column list.
func IsTextAffinity(declaredType string) bool {
	upper := strings.ToUpper(declaredType)
	for _, marker := range []string{"CHAR", "CLOB", "TEXT"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// OrderColumns filters names to those present in t (by name) and returns
// them in t's schema order, the ordering contract of registry.ColumnsOf /
// lifecycle.Columns (spec §4.2: "ordered sequence ... in the order they
// appear in the user's schema").
func (t *Table) OrderColumns(names []string) []string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var ordered []string
	for _, c := range t.Columns {
		if want[c.Name] {
			ordered = append(ordered, c.Name)
		}
	}
	return ordered
}

// DeclareVTabSQL renders the `CREATE TABLE(...)` fragment the host expects
// from sqlite3.SQLiteConn.DeclareVTab during Create/Connect: same columns,
// same declared affinities, same primary key (including composite keys),
// except that columns named in compressed get a BLOB affinity, matching
// spec §3 "Physical table" / "Virtual table object".
func (t *Table) DeclareVTabSQL(vtabName string, compressed map[string]bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", quoteIdent(vtabName))
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		declType := c.DeclaredType
		if compressed[c.Name] {
			declType = "BLOB"
		}
		fmt.Fprintf(&b, "%s %s", quoteIdent(c.Name), declType)
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
	}
	if pk := t.PrimaryKeyColumns(); len(pk) > 0 {
		quoted := make([]string, len(pk))
		for i, n := range pk {
			quoted[i] = quoteIdent(n)
		}
		fmt.Fprintf(&b, ", PRIMARY KEY (%s)", strings.Join(quoted, ", "))
	}
	for _, set := range t.UniqueSets {
		quoted := make([]string, len(set))
		for i, n := range set {
			quoted[i] = quoteIdent(n)
		}
		fmt.Fprintf(&b, ", UNIQUE (%s)", strings.Join(quoted, ", "))
	}
	for _, clause := range t.CheckClauses {
		fmt.Fprintf(&b, ", CHECK (%s)", clause)
	}
	b.WriteString(")")
	return b.String()
}

// extractCheckClauses scans createSQL (a CREATE TABLE statement as stored in
// sqlite_master.sql) for top-level `CHECK (...)` constraint clauses and
// returns each clause's parenthesized body, preserving declaration order.
// It is a small balanced-paren scan rather than a SQL parser: CHECK clause
// bodies are opaque to this package, which only needs to replay them
// verbatim on the virtual table's declared schema.
func extractCheckClauses(createSQL string) []string {
	var clauses []string
	upper := strings.ToUpper(createSQL)
	for i := 0; i < len(upper); {
		idx := strings.Index(upper[i:], "CHECK")
		if idx < 0 {
			break
		}
		pos := i + idx
		before := pos == 0 || !isIdentByte(upper[pos-1])
		after := pos+5 >= len(upper) || !isIdentByte(upper[pos+5])
		if !before || !after {
			i = pos + 5
			continue
		}
		open := strings.IndexByte(createSQL[pos+5:], '(')
		if open < 0 {
			i = pos + 5
			continue
		}
		start := pos + 5 + open
		end := matchingParen(createSQL, start)
		if end < 0 {
			i = pos + 5
			continue
		}
		clauses = append(clauses, strings.TrimSpace(createSQL[start+1:end]))
		i = end + 1
	}
	return clauses
}

// matchingParen returns the index of the ')' matching the '(' at open, or -1
// if unbalanced.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// quoteIdent double-quotes a SQL identifier, escaping embedded quotes. It is
// the only place identifiers meet string-built SQL in this package; PRAGMA
// statements and DDL cannot take identifiers as bound parameters.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
