// Package codec implements the marker-byte framing format used to store
// compressed text values in a backing SQLite column.
//
// Every encoded value is a byte sequence of length >= 1 whose first byte is
// a marker: 0x00 means the remaining bytes are the original text verbatim,
// 0x01 means the remaining bytes are a zstd frame of the original text. No
// other marker value is legal. See spec §3/§4.1 for the exact policy.
package codec

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
)

// Marker bytes, the first byte of every encoded value.
const (
	markerRaw        byte = 0x00
	markerCompressed byte = 0x01
)

// MinLevel and MaxLevel bound the accepted zstd compression level. Values
// outside this range fail with ErrBadLevel.
const (
	MinLevel     = 1
	MaxLevel     = 22
	DefaultLevel = 3
)

// rawThreshold is the byte length below which values are never compressed
// (spec §3 encode policy): small values carry no decoder cost.
const rawThreshold = 64

var (
	// ErrEmptyFrame is returned by Decode when given a zero-length input.
	ErrEmptyFrame = errors.New("codec: empty frame")
	// ErrBadMarker is returned by Decode when the leading byte is not a
	// recognised marker.
	ErrBadMarker = errors.New("codec: bad marker byte")
	// ErrBadUtf8 is returned by Decode when the decoded bytes (raw or
	// decompressed) are not valid UTF-8 text.
	ErrBadUtf8 = errors.New("codec: decoded bytes are not valid utf-8")
	// ErrEncode wraps a failure reported by the underlying compressor during
	// Encode.
	ErrEncode = errors.New("codec: encode failed")
	// ErrDecode wraps a failure reported by the underlying compressor during
	// Decode.
	ErrDecode = errors.New("codec: decode failed")
	// ErrBadLevel is returned by Encode (and the compress() scalar function)
	// when level is outside [MinLevel, MaxLevel].
	ErrBadLevel = errors.New("codec: bad compression level")
)

// shared decoder: decoding never depends on the level the value was
// encoded at, so one decoder serves every caller. zstd.Decoder is documented
// as safe for concurrent use.
var sharedDecoder = mustNewDecoder()

func mustNewDecoder() *zstd.Decoder {
	d, err := zstd.NewReader(nil)
	if err != nil {
		// Construction only fails on invalid options; none are passed here.
		panic(fmt.Sprintf("codec: failed to construct zstd decoder: %v", err))
	}
	return d
}

// encoderFor returns a cached zstd encoder pinned to level, constructing it
// on first use. Reusing encoders (rather than building one per Encode call)
// matters for determinism as much as for cost: every configurable encoder
// parameter is pinned once here, so two processes encoding at the same
// level always produce identical frames.
func encoderFor(level int) (*zstd.Encoder, error) {
	if level < MinLevel || level > MaxLevel {
		return nil, fmt.Errorf("%w: %d (must be in [%d,%d])", ErrBadLevel, level, MinLevel, MaxLevel)
	}
	return encoderCache.get(level)
}

// Encode applies the §3 encode policy to text at the given zstd level and
// returns the marker-prefixed wire form. level must be in [MinLevel,
// MaxLevel]; use DefaultLevel when the caller has no preference.
func Encode(text string, level int) ([]byte, error) {
	enc, err := encoderFor(level)
	if err != nil {
		return nil, err
	}

	if text == "" {
		return []byte{markerRaw}, nil
	}

	raw := make([]byte, 0, len(text)+1)
	raw = append(raw, markerRaw)
	raw = append(raw, text...)

	if len(text) < rawThreshold {
		return raw, nil
	}

	frame := enc.EncodeAll([]byte(text), []byte{markerCompressed})
	if len(frame)-1 >= len(text) {
		// Compression bought nothing (or lost); take the raw branch.
		return raw, nil
	}
	return frame, nil
}

// Decode reverses Encode, validating the marker byte and the UTF-8 of the
// resulting text (for raw and compressed frames alike).
func Decode(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFrame
	}

	marker, rest := data[0], data[1:]
	switch marker {
	case markerRaw:
		if !utf8.Valid(rest) {
			return "", ErrBadUtf8
		}
		return string(rest), nil
	case markerCompressed:
		plain, err := sharedDecoder.DecodeAll(rest, nil)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if !utf8.Valid(plain) {
			return "", ErrBadUtf8
		}
		return string(plain), nil
	default:
		return "", fmt.Errorf("%w: 0x%02X", ErrBadMarker, marker)
	}
}

// IsCompressed reports whether data's marker byte indicates a compressed
// frame. It returns false for empty input rather than erroring, matching
// spec §4.1: "pure inspection of the marker byte; false for empty input."
func IsCompressed(data []byte) bool {
	return len(data) > 0 && data[0] == markerCompressed
}
