// Package scalarfn implements the thin scalar SQL functions that wrap the
// codec directly: compress(text[, level]) and decompress(bytes) (spec
// §4.7).
package scalarfn

import (
	"github.com/mattn/go-sqlite3"

	"github.com/brianmacy/sqlite-zstd/codec"
)

// Register installs compress/compress(level)/decompress on conn. Called
// once per connection from the driver package's ConnectHook, alongside
// vtab module registration (spec §6 "Loader entry point").
func Register(conn *sqlite3.SQLiteConn) error {
	if err := conn.RegisterFunc("compress", compressDefault, true); err != nil {
		return err
	}
	if err := conn.RegisterFunc("compress", compressWithLevel, true); err != nil {
		return err
	}
	if err := conn.RegisterFunc("decompress", decompress, true); err != nil {
		return err
	}
	return nil
}

// compressDefault implements compress(text) at codec.DefaultLevel. Deterministic
// where its input is (a `pure` registration, spec §6).
func compressDefault(text any) (any, error) {
	return compressAt(text, codec.DefaultLevel)
}

// compressWithLevel implements compress(text, level).
func compressWithLevel(text any, level int64) (any, error) {
	return compressAt(text, int(level))
}

func compressAt(text any, level int) (any, error) {
	if text == nil {
		return nil, nil
	}
	s, ok := text.(string)
	if !ok {
		return nil, codec.ErrBadUtf8
	}
	return codec.Encode(s, level)
}

// decompress implements decompress(bytes). Null input yields null (spec
// §4.7); any decode failure surfaces the underlying codec error.
func decompress(data any) (any, error) {
	if data == nil {
		return nil, nil
	}
	b, ok := data.([]byte)
	if !ok {
		if s, ok := data.(string); ok {
			b = []byte(s)
		} else {
			return nil, codec.ErrBadMarker
		}
	}
	return codec.Decode(b)
}
