package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// HashLength is the byte length of a content hash.
const HashLength = 32

// Hash is a 32-byte keccak-256 digest.
type Hash [HashLength]byte

// ZeroHash is the empty hash. An installation with a zero applied setup id
// has no plugin installed.
var ZeroHash = Hash{}

// Keccak256 returns keccak-256 (the pre-standard SHA-3 padding) of the
// concatenated inputs.
func Keccak256(data ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var h Hash
	d.Sum(h[:0])
	return h
}

// ParseHash parses a 0x-prefixed (or bare) 64 hex character hash.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != HashLength*2 {
		return ZeroHash, fmt.Errorf("invalid hash length %d: want %d hex characters", len(s), HashLength*2)
	}
	var h Hash
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return ZeroHash, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return h, nil
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the lowercase 0x-prefixed hex form.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Domain prefixes for journal record identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvent       = "govkit/event/v1"
	DomainTransaction = "govkit/transaction/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed journal id of an event emitted at
// position index of the transaction with logical sequence seq.
func EventID(seq int64, index int, ev Event) (string, error) {
	obj := map[string]any{
		"seq":     seq,
		"index":   index,
		"emitter": ev.Emitter.String(),
		"name":    ev.Name,
		"fields":  map[string]any(ev.Fields),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// TransactionID computes the content-addressed journal id of a transaction.
func TransactionID(seq int64, sender Address, label string) string {
	obj := map[string]any{
		"seq":    seq,
		"sender": sender.String(),
		"label":  label,
	}
	// Only strings and integers: cannot fail.
	canonical, _ := MarshalCanonical(obj)
	return hashWithDomain(DomainTransaction, canonical)
}
