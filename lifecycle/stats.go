package lifecycle

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"

	"github.com/brianmacy/sqlite-zstd/codec"
)

// Stats reports, for every compressed column of table, the stored (on-disk,
// marker-prefixed) and original (decoded) byte totals across all non-null
// values, plus their ratio (spec §4.6 "stats", supplemented format: one line
// per column, "column: stored=<N>B original=<N>B ratio=<N.NN>").
func Stats(ctx context.Context, db *sql.DB, table string) (string, error) {
	names, err := columnNames(ctx, db, table)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotEnabled, table)
	}

	backing := backingName(table)
	var lines []string
	for _, c := range names {
		stored, original, err := columnByteTotals(ctx, db, backing, c)
		if err != nil {
			return "", fmt.Errorf("lifecycle: stats %s: %w", table, err)
		}
		ratio := 1.0
		if stored > 0 {
			ratio = float64(original) / float64(stored)
		}
		lines = append(lines, fmt.Sprintf("%s: stored=%dB original=%dB ratio=%.2f", c, stored, original, ratio))
	}
	return strings.Join(lines, "\n"), nil
}

func columnByteTotals(ctx context.Context, db *sql.DB, backing, column string) (stored, original int64, err error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NOT NULL`, quoteIdent(column), quoteIdent(backing), quoteIdent(column)))
	if err != nil {
		return 0, 0, fmt.Errorf("scan %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return 0, 0, fmt.Errorf("scan %s: %w", column, err)
		}
		stored += int64(len(data))
		text, err := codec.Decode(data)
		if err != nil {
			return 0, 0, fmt.Errorf("decode %s: %w", column, err)
		}
		original += int64(len(text))
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("scan %s: %w", column, err)
	}
	return stored, original, nil
}

// StatsViaConn is the connExecer twin of Stats, used by the SQL-callable
// `stats(table)` function registered on conn itself (spec §6).
func StatsViaConn(ctx context.Context, conn connExecer, table string) (string, error) {
	names, err := columnNamesViaConn(ctx, conn, table)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotEnabled, table)
	}

	backing := backingName(table)
	var lines []string
	for _, c := range names {
		stored, original, err := columnByteTotalsViaConn(ctx, conn, backing, c)
		if err != nil {
			return "", fmt.Errorf("lifecycle: stats %s: %w", table, err)
		}
		ratio := 1.0
		if stored > 0 {
			ratio = float64(original) / float64(stored)
		}
		lines = append(lines, fmt.Sprintf("%s: stored=%dB original=%dB ratio=%.2f", c, stored, original, ratio))
	}
	return strings.Join(lines, "\n"), nil
}

func columnByteTotalsViaConn(ctx context.Context, conn connExecer, backing, column string) (stored, original int64, err error) {
	rows, err := conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NOT NULL`, quoteIdent(column), quoteIdent(backing), quoteIdent(column)), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("scan %s: %w", column, err)
	}
	defer rows.Close()

	dest := make([]driver.Value, 1)
	for {
		if err := rows.Next(dest); err != nil {
			if err == io.EOF {
				break
			}
			return 0, 0, fmt.Errorf("scan %s: %w", column, err)
		}
		data, _ := dest[0].([]byte)
		stored += int64(len(data))
		text, err := codec.Decode(data)
		if err != nil {
			return 0, 0, fmt.Errorf("decode %s: %w", column, err)
		}
		original += int64(len(text))
	}
	return stored, original, nil
}
