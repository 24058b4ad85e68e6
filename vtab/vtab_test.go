package vtab

import (
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeIndexStringRoundTrip(t *testing.T) {
	cs := []pushableConstraint{
		{Column: 2, Op: sqlite3.OpEQ},
		{Column: 0, Op: sqlite3.OpGE},
	}
	idxStr := encodeIndexString(cs)
	got, err := decodeIndexString(idxStr)
	require.NoError(t, err)
	require.Equal(t, cs, got)
}

func TestDecodeIndexStringEmpty(t *testing.T) {
	got, err := decodeIndexString("")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDecodeIndexStringMalformed(t *testing.T) {
	_, err := decodeIndexString("not-a-fragment")
	require.Error(t, err)
}

func TestOpSQLPushableOperators(t *testing.T) {
	cases := map[uint8]string{
		sqlite3.OpEQ: "=",
		sqlite3.OpGT: ">",
		sqlite3.OpLE: "<=",
		sqlite3.OpLT: "<",
		sqlite3.OpGE: ">=",
	}
	for op, want := range cases {
		got, ok := opSQL(op)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestOpSQLRejectsUnsupportedOperator(t *testing.T) {
	_, ok := opSQL(sqlite3.OpMATCH)
	require.False(t, ok)
}

func TestBestIndexPushesPointLookup(t *testing.T) {
	v := &VTab{columns: []string{"id", "content"}, compressed: map[string]bool{"content": true}}

	res, err := v.BestIndex([]sqlite3.InfoConstraint{
		{Column: 0, Op: sqlite3.OpEQ, Usable: true},
	}, nil)
	require.NoError(t, err)
	require.True(t, res.Used[0])
	require.Equal(t, pointLookupCost, res.EstimatedCost)
	require.Equal(t, float64(1), res.EstimatedRows)
}

func TestBestIndexSkipsCompressedColumn(t *testing.T) {
	v := &VTab{columns: []string{"id", "content"}, compressed: map[string]bool{"content": true}}

	res, err := v.BestIndex([]sqlite3.InfoConstraint{
		{Column: 1, Op: sqlite3.OpEQ, Usable: true},
	}, nil)
	require.NoError(t, err)
	require.False(t, res.Used[0])
	require.Equal(t, fullScanCost, res.EstimatedCost)
}

func TestBestIndexFullScanWithNoConstraints(t *testing.T) {
	v := &VTab{columns: []string{"id", "content"}, compressed: map[string]bool{}}

	res, err := v.BestIndex(nil, nil)
	require.NoError(t, err)
	require.Equal(t, fullScanCost, res.EstimatedCost)
	require.Equal(t, fullScanRows, res.EstimatedRows)
	require.Equal(t, "", res.IdxStr)
}

func TestConflictModeOfKnownCodes(t *testing.T) {
	require.Equal(t, ConflictRollback, conflictModeOf(1))
	require.Equal(t, ConflictIgnore, conflictModeOf(2))
	require.Equal(t, ConflictFail, conflictModeOf(3))
	require.Equal(t, ConflictAbort, conflictModeOf(4))
	require.Equal(t, ConflictReplace, conflictModeOf(5))
}

func TestConflictModeOfUnknownCodeDefaultsToAbort(t *testing.T) {
	require.Equal(t, ConflictAbort, conflictModeOf(999))
}

func TestConflictClauses(t *testing.T) {
	require.Equal(t, "INSERT OR IGNORE INTO", ConflictIgnore.insertClause())
	require.Equal(t, "UPDATE OR REPLACE", ConflictReplace.updateClause())
}

func TestRawHandleNilConn(t *testing.T) {
	require.Nil(t, rawHandle(nil))
}
