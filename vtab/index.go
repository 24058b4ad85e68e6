package vtab

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// pushableConstraint is one constraint BestIndex decided to delegate to the
// backing-table scan (spec §4.3 "best_index"): a non-compressed column
// compared with one of {=, <, <=, >, >=}.
type pushableConstraint struct {
	Column int
	Op     uint8
}

// opSQL renders a SQLite vtab constraint operator as the SQL it corresponds
// to. Only the operators BestIndex is willing to push down appear here;
// LIKE/MATCH/ordering operators and anything on a compressed column are
// left for the host to filter (spec §4.3).
func opSQL(op uint8) (string, bool) {
	switch op {
	case sqlite3.OpEQ:
		return "=", true
	case sqlite3.OpGT:
		return ">", true
	case sqlite3.OpLE:
		return "<=", true
	case sqlite3.OpLT:
		return "<", true
	case sqlite3.OpGE:
		return ">=", true
	default:
		return "", false
	}
}

// encodeIndexString serializes the pushed constraints into the idxStr the
// host hands back verbatim to VTabCursor.Filter. Format: "col:op,col:op,...".
func encodeIndexString(cs []pushableConstraint) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = strconv.Itoa(c.Column) + ":" + strconv.Itoa(int(c.Op))
	}
	return strings.Join(parts, ",")
}

// decodeIndexString reverses encodeIndexString.
func decodeIndexString(idxStr string) ([]pushableConstraint, error) {
	if idxStr == "" {
		return nil, nil
	}
	parts := strings.Split(idxStr, ",")
	cs := make([]pushableConstraint, 0, len(parts))
	for _, p := range parts {
		colStr, opStr, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("vtab: malformed index id fragment %q", p)
		}
		col, err := strconv.Atoi(colStr)
		if err != nil {
			return nil, fmt.Errorf("vtab: malformed index id fragment %q: %w", p, err)
		}
		op, err := strconv.Atoi(opStr)
		if err != nil {
			return nil, fmt.Errorf("vtab: malformed index id fragment %q: %w", p, err)
		}
		cs = append(cs, pushableConstraint{Column: col, Op: uint8(op)})
	}
	return cs, nil
}
