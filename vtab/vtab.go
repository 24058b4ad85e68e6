// Package vtab implements the `zstd` virtual-table module (spec §4.3-§4.5):
// a polymorphic, writable table type the host engine drives through
// github.com/mattn/go-sqlite3's Module/VTab/VTabCursor callbacks.
package vtab

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/brianmacy/sqlite-zstd/codec"
	"github.com/brianmacy/sqlite-zstd/schema"
)

// Errors surfaced to the host, named after spec §7's VTabError kinds.
var (
	// ErrSchemaMismatch is returned by Create/Connect when the backing
	// table does not exist or its schema cannot be reflected.
	ErrSchemaMismatch = errors.New("vtab: schema mismatch")
	// ErrConstraint is returned by Update when the underlying mutation
	// violates a primary-key or NOT NULL constraint on the backing table.
	ErrConstraint = errors.New("vtab: constraint violation")
	// ErrCodecError is returned by Column/Update when encoding or decoding
	// a compressed value fails.
	ErrCodecError = errors.New("vtab: codec error")
)

// ModuleName is the name registered with the host for CREATE VIRTUAL TABLE
// ... USING zstd(...) statements (spec §4.3).
const ModuleName = "zstd"

// DefaultLevel is the zstd level used to encode values written through the
// virtual table when no other level has been configured (spec §4.3
// "update": "encode(text, default_level)").
const DefaultLevel = codec.DefaultLevel

// Module is the sqlite3.Module registered once per connection. It carries
// no per-table state; every table's state lives in the *VTab instance
// Create/Connect returns (spec §9 "Ownership of instances").
type Module struct {
	// Level overrides DefaultLevel for every table this module instance
	// creates, used by the driver package to make the default configurable
	// at registration time.
	Level int
}

func (m *Module) level() int {
	if m.Level == 0 {
		return DefaultLevel
	}
	return m.Level
}

// Create is called once, the first time `CREATE VIRTUAL TABLE T USING
// zstd(...)` is executed (spec §4.3 "create / connect").
func (m *Module) Create(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.connect(c, args)
}

// Connect is called on every subsequent reopen of a database that already
// has T declared; it must be idempotent with Create (spec §4.3: "connect is
// idempotent across reopens").
func (m *Module) Connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.connect(c, args)
}

// connect implements the shared body of Create/Connect. args follows
// SQLite's convention for virtual-table module arguments: args[0] is the
// module name, args[1] the database name, args[2] the name of the virtual
// table being declared, and args[3:] the parenthesized arguments from
// `USING zstd(backing, col1, col2, ...)`.
func (m *Module) connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("%w: zstd requires at least a backing table name", ErrSchemaMismatch)
	}
	vtabName := args[2]
	backing := unquoteArg(args[3])
	compressedArgs := args[4:]

	tbl, err := schema.ReflectViaConn(context.Background(), c, backing)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchemaMismatch, backing, err)
	}

	compressed := make(map[string]bool, len(compressedArgs))
	for _, a := range compressedArgs {
		compressed[unquoteArg(a)] = true
	}

	declareSQL := tbl.DeclareVTabSQL(vtabName, compressed)
	if err := c.DeclareVTab(declareSQL); err != nil {
		return nil, fmt.Errorf("%w: declare %s: %w", ErrSchemaMismatch, vtabName, err)
	}

	v := &VTab{
		conn:       c,
		name:       vtabName,
		backing:    backing,
		columns:    tbl.ColumnNames(),
		compressed: compressed,
		pk:         tbl.PrimaryKeyColumns(),
		level:      m.level(),
	}
	return v, nil
}

// VTab is the per-table instance the host holds between Create/Connect and
// Disconnect/Destroy. It exclusively owns its column metadata and the name
// of its backing table (spec §9 "Ownership of instances"); cursors borrow
// from it for the duration of a scan and never outlive it.
type VTab struct {
	conn       *sqlite3.SQLiteConn
	name       string
	backing    string
	columns    []string
	compressed map[string]bool
	pk         []string
	level      int
}

// columnIndex returns the 0-based index of name among v.columns, or -1.
func (v *VTab) columnIndex(name string) int {
	for i, c := range v.columns {
		if c == name {
			return i
		}
	}
	return -1
}

// BestIndex examines the host's constraint list and delegates what it can
// to the backing-table scan (spec §4.3 "best_index"). Compressed columns
// and operators other than {=, <, <=, >, >=} are left for the host to
// filter post-scan.
func (v *VTab) BestIndex(cst []sqlite3.InfoConstraint, ob []sqlite3.InfoOrderBy) (*sqlite3.IndexResult, error) {
	used := make([]bool, len(cst))
	var pushed []pushableConstraint

	for i, c := range cst {
		if !c.Usable {
			continue
		}
		if c.Column < 0 || c.Column >= len(v.columns) {
			continue
		}
		colName := v.columns[c.Column]
		if v.compressed[colName] {
			// Would require pre-decompression; leave for the host (§4.3).
			continue
		}
		if _, ok := opSQL(c.Op); !ok {
			continue
		}
		used[i] = true
		pushed = append(pushed, pushableConstraint{Column: c.Column, Op: c.Op})
	}

	idxStr := encodeIndexString(pushed)
	cost := fullScanCost
	rows := fullScanRows
	if len(pushed) > 0 {
		// A point lookup is far cheaper than a full scan; an equality
		// constraint on its own approximates a unique lookup, anything else
		// a narrowed range scan (spec §4.3: "cost estimate should be
		// proportional to the expected selectivity").
		if len(pushed) == 1 && pushed[0].Op == sqlite3.OpEQ {
			cost = pointLookupCost
			rows = 1
		} else {
			cost = fullScanCost / float64(len(pushed)+1)
			rows = fullScanRows / float64(len(pushed)+1)
		}
	}

	return &sqlite3.IndexResult{
		Used:          used,
		IdxNum:        len(pushed),
		IdxStr:        idxStr,
		EstimatedCost: cost,
		EstimatedRows: rows,
	}, nil
}

// Cost constants used by BestIndex. fullScanRows stands in for "rows" when
// the actual backing-table cardinality isn't cheaply available to this
// callback; relative ordering against pointLookupCost is what the planner
// actually needs (spec §4.3: "full scan cost ~ rows; a point lookup ~ log rows").
const (
	fullScanCost    = 1_000_000.0
	fullScanRows    = 1_000_000.0
	pointLookupCost = 20.0
)

// Open vends a new Cursor over the backing table (spec §4.4).
func (v *VTab) Open() (sqlite3.VTabCursor, error) {
	return &Cursor{vtab: v}, nil
}

// Disconnect releases the host's reference to this instance. The module
// keeps no additional per-instance resources beyond the struct itself, so
// there is nothing further to release.
func (v *VTab) Disconnect() error {
	return nil
}

// Destroy is invoked by the host when the virtual table declaration itself
// is dropped (e.g. the `DROP TABLE table` that lifecycle.Disable issues).
// It deliberately does not touch the backing table: disable's own
// decode-then-rename-or-recreate sequence (spec §4.6) owns the backing
// table's physical lifecycle, and runs that sequence around this same DROP
// TABLE statement, so the backing data must still exist on either side of
// it.
func (v *VTab) Destroy() error {
	return nil
}

// quoteIdent double-quotes a SQL identifier for use in generated DDL/DML.
func quoteIdent(ident string) string {
	var b []byte
	b = append(b, '"')
	for i := 0; i < len(ident); i++ {
		if ident[i] == '"' {
			b = append(b, '"', '"')
			continue
		}
		b = append(b, ident[i])
	}
	b = append(b, '"')
	return string(b)
}

// unquoteArg strips a single layer of surrounding quotes (' " `) SQLite may
// leave on module arguments and trims surrounding whitespace.
func unquoteArg(s string) string {
	start := 0
	for start < len(s) && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	end := len(s)
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	s = s[start:end]
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') || (first == '`' && last == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
