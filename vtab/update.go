package vtab

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/brianmacy/sqlite-zstd/codec"
)

// Update is the single mutation entry point covering INSERT, UPDATE and
// DELETE (spec §4.3 "update"). argv follows SQLite's xUpdate convention:
// len(argv)==1 is a delete (argv[0] is the rowid to remove); otherwise
// argv[0] is the old rowid (nil for insert), argv[1] the new rowid, and
// argv[2:] the new column values in column order.
func (v *VTab) Update(argv []any) (int64, error) {
	mode := currentConflictMode(v.conn)

	if len(argv) == 1 {
		return 0, v.delete(argv[0], mode)
	}

	oldRowid, newRowid := argv[0], argv[1]
	values := argv[2:]

	encoded, err := v.encodeRow(values)
	if err != nil {
		return 0, err
	}

	if oldRowid == nil {
		return v.insert(newRowid, encoded, mode)
	}
	return 0, v.update(oldRowid, newRowid, encoded, mode)
}

// encodeRow replaces every compressed, non-null text column's value with
// its marker-framed encoding (spec §4.3 "insert": "if the column is
// compressed and the value is non-null text, replace it with
// encode(text, default_level)").
func (v *VTab) encodeRow(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, val := range values {
		if i >= len(v.columns) {
			out[i] = val
			continue
		}
		name := v.columns[i]
		if !v.compressed[name] || val == nil {
			out[i] = val
			continue
		}
		text, ok := val.(string)
		if !ok {
			out[i] = val
			continue
		}
		encoded, err := codec.Encode(text, v.level)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %w", ErrCodecError, name, err)
		}
		out[i] = encoded
	}
	return out, nil
}

func (v *VTab) delete(rowid any, mode ConflictMode) error {
	_, err := v.exec("DELETE FROM "+quoteIdent(v.backing)+" WHERE rowid = ?", rowid)
	if err != nil {
		return wrapMutationErr(err)
	}
	_ = mode // DELETE has no conflict mode to adapt (nothing to conflict with).
	return nil
}

func (v *VTab) insert(newRowid any, values []any, mode ConflictMode) (int64, error) {
	var b strings.Builder
	b.WriteString(mode.insertClause())
	b.WriteString(" ")
	b.WriteString(quoteIdent(v.backing))
	b.WriteString(" (rowid")
	for _, c := range v.columns {
		b.WriteString(", ")
		b.WriteString(quoteIdent(c))
	}
	b.WriteString(") VALUES (?")
	for range v.columns {
		b.WriteString(", ?")
	}
	b.WriteString(")")

	args := make([]any, 0, len(values)+1)
	args = append(args, newRowid)
	args = append(args, values...)

	res, err := v.exec(b.String(), args...)
	if err != nil {
		return 0, wrapMutationErr(err)
	}
	return res.LastInsertId()
}

func (v *VTab) update(oldRowid, newRowid any, values []any, mode ConflictMode) error {
	var b strings.Builder
	b.WriteString(mode.updateClause())
	b.WriteString(" ")
	b.WriteString(quoteIdent(v.backing))
	b.WriteString(" SET rowid = ?")
	for _, c := range v.columns {
		b.WriteString(", ")
		b.WriteString(quoteIdent(c))
		b.WriteString(" = ?")
	}
	b.WriteString(" WHERE rowid = ?")

	args := make([]any, 0, len(values)+2)
	args = append(args, newRowid)
	args = append(args, values...)
	args = append(args, oldRowid)

	_, err := v.exec(b.String(), args...)
	if err != nil {
		return wrapMutationErr(err)
	}
	return nil
}

// wrapMutationErr maps a backing-table execution failure to ErrConstraint,
// the shape spec §7 expects ("Errors propagate as VTabError::Constraint
// when the underlying mutation violates a primary-key or NOT NULL
// constraint"). Any other driver error is returned unwrapped; the caller's
// conflict-adapted clause already encodes whatever leniency the host asked
// for (e.g. IGNORE), so an error reaching here is a genuine failure.
func wrapMutationErr(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}
