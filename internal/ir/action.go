package ir

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxActions is the largest batch a DAO executes in one call. It equals the
// width of the failure bitmap.
const MaxActions = 256

// Action is a call the DAO performs on behalf of its members.
type Action struct {
	To    Address `json:"to" yaml:"to" cbor:"1,keyasint"`
	Value uint64  `json:"value" yaml:"value" cbor:"2,keyasint"`
	Data  []byte  `json:"data" yaml:"data" cbor:"3,keyasint"`
}

// Bitmap is a 256-bit set indexed by action position. Word 0 holds bits 0-63.
type Bitmap [4]uint64

// Has reports whether bit i is set.
func (b Bitmap) Has(i int) bool {
	if i < 0 || i >= MaxActions {
		return false
	}
	return b[i/64]&(1<<(uint(i)%64)) != 0
}

// With returns a copy of b with bit i set.
func (b Bitmap) With(i int) Bitmap {
	if i >= 0 && i < MaxActions {
		b[i/64] |= 1 << (uint(i) % 64)
	}
	return b
}

// IsZero reports whether no bit is set.
func (b Bitmap) IsZero() bool {
	return b == Bitmap{}
}

// BitmapOf returns a bitmap with the given indexes set.
func BitmapOf(indexes ...int) Bitmap {
	var b Bitmap
	for _, i := range indexes {
		b = b.With(i)
	}
	return b
}

// String renders the bitmap as a 0x-prefixed big-endian 256-bit integer.
func (b Bitmap) String() string {
	buf := make([]byte, 32)
	for i := 0; i < 4; i++ {
		binary.BigEndian.PutUint64(buf[(3-i)*8:], b[i])
	}
	return "0x" + hex.EncodeToString(buf)
}

// ParseBitmap parses the form produced by String. Shorter hex strings are
// treated as left-padded integers.
func ParseBitmap(s string) (Bitmap, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) > 64 {
		return Bitmap{}, fmt.Errorf("bitmap wider than 256 bits")
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Bitmap{}, fmt.Errorf("invalid bitmap %q: %w", s, err)
	}
	buf := make([]byte, 32)
	copy(buf[32-len(raw):], raw)
	var b Bitmap
	for i := 0; i < 4; i++ {
		b[i] = binary.BigEndian.Uint64(buf[(3-i)*8:])
	}
	return b, nil
}
