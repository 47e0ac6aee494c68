package ir

import "encoding/binary"

// Words is a fixed-width, order-sensitive encoding: every element occupies one
// 32-byte word, integers are big-endian and left-padded, and lists are
// prefixed with their length. It is the only encoding used for
// content-addressed setup identifiers. Element order is significant and is
// never normalized.
type Words struct {
	buf []byte
}

// Uint64Word encodes n as a single left-padded 32-byte word.
func Uint64Word(n uint64) []byte {
	w := make([]byte, 32)
	binary.BigEndian.PutUint64(w[24:], n)
	return w
}

// Uint appends an unsigned integer word.
func (w *Words) Uint(n uint64) *Words {
	w.buf = append(w.buf, Uint64Word(n)...)
	return w
}

// Address appends an address word.
func (w *Words) Address(a Address) *Words {
	w.buf = append(w.buf, a.Word()...)
	return w
}

// Hash appends a 32-byte word verbatim.
func (w *Words) Hash(h Hash) *Words {
	w.buf = append(w.buf, h[:]...)
	return w
}

// Bytes returns the encoded buffer.
func (w *Words) Bytes() []byte {
	return w.buf
}

// Sum returns keccak256 of the encoded buffer.
func (w *Words) Sum() Hash {
	return Keccak256(w.buf)
}
