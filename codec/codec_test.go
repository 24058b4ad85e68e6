// Round-trip and edge-case tests for the marker-byte codec. See spec §8
// "Testable Properties" for the properties these tests check.
package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"single byte", "x"},
		{"63 bytes", strings.Repeat("x", 63)},
		{"64 bytes", strings.Repeat("x", 64)},
		{"unicode", "日本語テキスト"},
		{"json", `{"key": "value", "num": 123}`},
		{"large repetitive", strings.Repeat("hello world ", 1000)},
		{"large random-ish", strings.Repeat("a1b2c3d4e5f6g7h8", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for level := MinLevel; level <= MaxLevel; level += 7 {
				encoded, err := Encode(tt.text, level)
				require.NoError(t, err)

				decoded, err := Decode(encoded)
				require.NoError(t, err)
				assert.Equal(t, tt.text, decoded)
			}
		})
	}
}

func TestEncodeEmptyIsSingleRawMarker(t *testing.T) {
	encoded, err := Encode("", DefaultLevel)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, encoded)

	decoded, err := Decode([]byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, "", decoded)
}

func TestEncodeBelowThresholdIsRaw(t *testing.T) {
	text := strings.Repeat("x", 63)
	encoded, err := Encode(text, DefaultLevel)
	require.NoError(t, err)

	assert.Equal(t, byte(0x00), encoded[0])
	assert.Equal(t, text, string(encoded[1:]))
}

func TestEncodeAtThresholdCompresses(t *testing.T) {
	// 64 repeated bytes compress extremely well, so the 64-byte boundary
	// case must take the compressed branch.
	text := strings.Repeat("x", 64)
	encoded, err := Encode(text, DefaultLevel)
	require.NoError(t, err)

	assert.Equal(t, byte(0x01), encoded[0])
	assert.Less(t, len(encoded), 65)
}

func TestEncodeWorstCaseBound(t *testing.T) {
	// Whichever branch Encode takes for this input at each level, the
	// encoded length is bounded by len(text)+1.
	text := strings.Repeat("x", 65) + "\x00\x01\x02\x03"
	for level := MinLevel; level <= MaxLevel; level += 5 {
		encoded, err := Encode(text, level)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(encoded), len(text)+1)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	text := strings.Repeat("deterministic payload ", 50)
	a, err := Encode(text, 9)
	require.NoError(t, err)
	b, err := Encode(text, 9)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeBadLevel(t *testing.T) {
	_, err := Encode(strings.Repeat("x", 100), 0)
	assert.ErrorIs(t, err, ErrBadLevel)

	_, err = Encode(strings.Repeat("x", 100), 23)
	assert.ErrorIs(t, err, ErrBadLevel)
}

func TestDecodeEmptyFrame(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = Decode([]byte{})
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestDecodeBadMarker(t *testing.T) {
	_, err := Decode([]byte{0x02, 'a', 'b'})
	assert.ErrorIs(t, err, ErrBadMarker)
}

func TestDecodeBadUtf8(t *testing.T) {
	_, err := Decode([]byte{0x00, 0xff, 0xfe})
	assert.ErrorIs(t, err, ErrBadUtf8)
}

func TestIsCompressed(t *testing.T) {
	assert.False(t, IsCompressed(nil))
	assert.False(t, IsCompressed([]byte{0x00, 'a'}))
	assert.True(t, IsCompressed([]byte{0x01, 'a'}))

	longText := strings.Repeat("compressible text payload ", 50)
	encoded, err := Encode(longText, DefaultLevel)
	require.NoError(t, err)
	assert.True(t, IsCompressed(encoded))

	shortText := "short"
	encoded, err = Encode(shortText, DefaultLevel)
	require.NoError(t, err)
	assert.False(t, IsCompressed(encoded))
}
