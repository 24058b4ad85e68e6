package schema

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestReflectSimpleTable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, title TEXT NOT NULL, body TEXT)`)
	require.NoError(t, err)

	tbl, err := Reflect(ctx, db, "docs")
	require.NoError(t, err)

	require.Equal(t, []string{"id", "title", "body"}, tbl.ColumnNames())
	require.Equal(t, []string{"id"}, tbl.PrimaryKeyColumns())

	require.True(t, IsTextAffinity("TEXT"))
	require.True(t, IsTextAffinity("VARCHAR(255)"))
	require.False(t, IsTextAffinity("INTEGER"))
	require.False(t, IsTextAffinity("BLOB"))
}

func TestReflectCompositePrimaryKey(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE t (b TEXT, a TEXT, v TEXT, PRIMARY KEY (a, b))`)
	require.NoError(t, err)

	tbl, err := Reflect(ctx, db, "t")
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b"}, tbl.PrimaryKeyColumns())
}

func TestReflectNoSuchTable(t *testing.T) {
	db := openTestDB(t)
	_, err := Reflect(context.Background(), db, "nope")
	require.ErrorIs(t, err, ErrNoSuchTable)
}

func TestOrderColumns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, title TEXT, body TEXT, notes TEXT)`)
	require.NoError(t, err)

	tbl, err := Reflect(ctx, db, "docs")
	require.NoError(t, err)

	ordered := tbl.OrderColumns([]string{"notes", "title"})
	require.Equal(t, []string{"title", "notes"}, ordered)
}

func TestDeclareVTabSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, title TEXT NOT NULL, body TEXT)`)
	require.NoError(t, err)

	tbl, err := Reflect(ctx, db, "docs")
	require.NoError(t, err)

	sql := tbl.DeclareVTabSQL("docs", map[string]bool{"body": true})
	require.Contains(t, sql, `"body" BLOB`)
	require.Contains(t, sql, `"title" TEXT NOT NULL`)
	require.Contains(t, sql, `PRIMARY KEY ("id")`)
}

func TestReflectUniqueAndCheckConstraints(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE t (
		id INTEGER PRIMARY KEY,
		email TEXT UNIQUE,
		age INTEGER CHECK(age > 0),
		name TEXT NOT NULL CHECK(length(name) > 0)
	)`)
	require.NoError(t, err)

	tbl, err := Reflect(ctx, db, "t")
	require.NoError(t, err)

	require.Len(t, tbl.UniqueSets, 1)
	require.Equal(t, []string{"email"}, tbl.UniqueSets[0])

	require.Len(t, tbl.CheckClauses, 2)
	require.Equal(t, "age > 0", tbl.CheckClauses[0])
	require.Equal(t, "length(name) > 0", tbl.CheckClauses[1])

	declared := tbl.DeclareVTabSQL("t", nil)
	require.Contains(t, declared, `UNIQUE ("email")`)
	require.Contains(t, declared, `CHECK (age > 0)`)
	require.Contains(t, declared, `CHECK (length(name) > 0)`)
}

func TestReflectCompositeUniqueConstraint(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE t (a TEXT, b TEXT, v TEXT, UNIQUE (a, b))`)
	require.NoError(t, err)

	tbl, err := Reflect(ctx, db, "t")
	require.NoError(t, err)

	require.Len(t, tbl.UniqueSets, 1)
	require.Equal(t, []string{"a", "b"}, tbl.UniqueSets[0])
}

func TestReflectNoConstraintsIsEmpty(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)

	tbl, err := Reflect(ctx, db, "t")
	require.NoError(t, err)

	require.Empty(t, tbl.UniqueSets)
	require.Empty(t, tbl.CheckClauses)
}
