package vtab

import (
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/brianmacy/sqlite-zstd/codec"
)

// Cursor is a per-scan iterator over the backing table, decompressing
// compressed columns on the fly (spec §4.4). It never caches decompressed
// values across rows; a dangling driver.Rows is the only resource it owns,
// and Close always releases it (spec §5 "Scoped acquisition").
type Cursor struct {
	vtab *VTab
	rows driver.Rows
	row  []driver.Value // rowid at [0], then one value per v.vtab.columns
	eof  bool
}

// Filter decodes the index id BestIndex produced and opens a new backing
// scan positioned on the first row (spec §4.4 "filter").
func (cur *Cursor) Filter(idxNum int, idxStr string, vals []any) error {
	if cur.rows != nil {
		_ = cur.rows.Close()
		cur.rows = nil
	}

	constraints, err := decodeIndexString(idxStr)
	if err != nil {
		return err
	}
	if len(constraints) != len(vals) {
		return fmt.Errorf("vtab: filter: index id has %d constraints but got %d argument(s)", len(constraints), len(vals))
	}

	var b strings.Builder
	b.WriteString("SELECT rowid")
	for _, c := range cur.vtab.columns {
		b.WriteString(", ")
		b.WriteString(quoteIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(cur.vtab.backing))

	if len(constraints) > 0 {
		b.WriteString(" WHERE ")
		for i, c := range constraints {
			if i > 0 {
				b.WriteString(" AND ")
			}
			sqlOp, _ := opSQL(c.Op)
			b.WriteString(quoteIdent(cur.vtab.columns[c.Column]))
			b.WriteString(" ")
			b.WriteString(sqlOp)
			b.WriteString(" ?")
		}
	}
	b.WriteString(" ORDER BY rowid")

	rows, err := cur.vtab.query(b.String(), vals...)
	if err != nil {
		return fmt.Errorf("vtab: filter: %w", err)
	}
	cur.rows = rows
	cur.eof = false
	return cur.advance()
}

// Next advances the cursor one row, setting EOF at the end of the scan
// (spec §4.4 "next").
func (cur *Cursor) Next() error {
	return cur.advance()
}

func (cur *Cursor) advance() error {
	dest := make([]driver.Value, len(cur.vtab.columns)+1)
	if err := cur.rows.Next(dest); err != nil {
		if err == io.EOF {
			cur.eof = true
			cur.row = nil
			return nil
		}
		return fmt.Errorf("vtab: next: %w", err)
	}
	cur.row = dest
	return nil
}

// EOF reports whether the scan has exhausted the backing table.
func (cur *Cursor) EOF() bool {
	return cur.eof
}

// Column fills res with the value of column col of the current row,
// decompressing it first if col is a compressed column (spec §4.4 "column").
func (cur *Cursor) Column(res *sqlite3.SQLiteContext, col int) error {
	if col < 0 || col >= len(cur.vtab.columns) {
		return fmt.Errorf("vtab: column: index %d out of range", col)
	}
	val := cur.row[col+1]
	name := cur.vtab.columns[col]

	if !cur.vtab.compressed[name] {
		setResult(res, val)
		return nil
	}

	if val == nil {
		res.ResultNull()
		return nil
	}
	raw, ok := val.([]byte)
	if !ok {
		// SQLite may hand back a string for a column whose affinity looks
		// textual even though it is declared BLOB; accept either.
		if s, ok := val.(string); ok {
			raw = []byte(s)
		} else {
			return fmt.Errorf("%w: column %q: unexpected stored type %T", ErrCodecError, name, val)
		}
	}
	text, err := codec.Decode(raw)
	if err != nil {
		return fmt.Errorf("%w: column %q: %w", ErrCodecError, name, err)
	}
	res.ResultText(text)
	return nil
}

// setResult passes a non-compressed column's stored value straight through
// to the host's result context, unchanged.
func setResult(res *sqlite3.SQLiteContext, val driver.Value) {
	switch v := val.(type) {
	case nil:
		res.ResultNull()
	case int64:
		res.ResultInt64(v)
	case float64:
		res.ResultDouble(v)
	case bool:
		res.ResultBool(v)
	case []byte:
		res.ResultBlob(v)
	case string:
		res.ResultText(v)
	default:
		res.ResultText(fmt.Sprintf("%v", v))
	}
}

// Rowid returns the backing table's rowid for the current row (spec §4.4
// "rowid").
func (cur *Cursor) Rowid() (int64, error) {
	if cur.row == nil {
		return 0, fmt.Errorf("vtab: rowid: cursor has no current row")
	}
	switch v := cur.row[0].(type) {
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("vtab: rowid: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("vtab: rowid: unexpected rowid type %T", v)
	}
}

// Close releases the iteration handle, unconditionally (spec §5 "every
// row-iteration handle opened by a cursor is guaranteed to be released when
// the cursor is closed, including when column fails").
func (cur *Cursor) Close() error {
	if cur.rows == nil {
		return nil
	}
	err := cur.rows.Close()
	cur.rows = nil
	return err
}
