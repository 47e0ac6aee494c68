package ir

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte length of an account identifier.
const AddressLength = 20

// Address identifies an account on the ledger (DAO, plugin, repository,
// condition, externally owned account).
type Address [AddressLength]byte

var (
	// Zero is the empty address. It never identifies a deployed account.
	Zero = Address{}

	// Any is the wildcard address. It may appear on the where or the who side
	// of a conditional permission entry to match any account on that side.
	Any = Address{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}

	// AllowFlag is the value stored for an unconditional grant.
	AllowFlag = Address{19: 0x02}
)

// ParseAddress parses a 0x-prefixed (or bare) 40 hex character address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != AddressLength*2 {
		return Zero, fmt.Errorf("invalid address length %d: want %d hex characters", len(s), AddressLength*2)
	}
	var a Address
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return Zero, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Use only in tests or for compile-time constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// DeriveAddress computes a deterministic account address from a deployer and
// a nonce, in the manner of contract creation: the low 20 bytes of
// keccak256(deployer || nonce).
func DeriveAddress(deployer Address, nonce uint64) Address {
	h := Keccak256(deployer[:], Uint64Word(nonce))
	var a Address
	copy(a[:], h[12:])
	return a
}

// LabelAddress derives a stable address from a human-readable label. Used for
// named fixtures (scenario accounts, manifest entries).
func LabelAddress(label string) Address {
	h := Keccak256([]byte("govkit/label/v1"), []byte{0x00}, []byte(label))
	var a Address
	copy(a[:], h[12:])
	return a
}

// IsZero reports whether a is the empty address.
func (a Address) IsZero() bool {
	return a == Zero
}

// IsAny reports whether a is the wildcard address.
func (a Address) IsAny() bool {
	return a == Any
}

// String returns the lowercase 0x-prefixed hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Word returns the address left-padded to a 32-byte encoding word.
func (a Address) Word() []byte {
	w := make([]byte, 32)
	copy(w[12:], a[:])
	return w
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
