package ir

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Selector is a 4-byte function or interface identifier.
type Selector [4]byte

// SelectorOf returns the first four bytes of keccak256(signature).
func SelectorOf(signature string) Selector {
	h := Keccak256([]byte(signature))
	var s Selector
	copy(s[:], h[:4])
	return s
}

// InterfaceID XORs the selectors of every function in an interface.
func InterfaceID(signatures ...string) Selector {
	var id Selector
	for _, sig := range signatures {
		s := SelectorOf(sig)
		for i := range id {
			id[i] ^= s[i]
		}
	}
	return id
}

// ParseSelector parses a 0x-prefixed 8-digit hex selector.
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) != 8 {
		return sel, fmt.Errorf("selector %q: want 8 hex digits", s)
	}
	if _, err := hex.Decode(sel[:], []byte(raw)); err != nil {
		return sel, fmt.Errorf("selector %q: %w", s, err)
	}
	return sel, nil
}

// IsZero reports whether s is all zeros.
func (s Selector) IsZero() bool {
	return s == Selector{}
}

func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// MarshalText implements encoding.TextMarshaler.
func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Selector) UnmarshalText(text []byte) error {
	parsed, err := ParseSelector(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
