package ir

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// PermissionID is an opaque 32-byte capability tag naming a privileged action.
// By convention it is keccak256 of an upper-case name such as "ROOT_PERMISSION".
type PermissionID Hash

var (
	permissionNamesMu sync.RWMutex
	permissionNames   = map[PermissionID]string{}
)

// NewPermissionID returns keccak256(name) and records the name so traces and
// CLI output can print a readable label instead of a hash.
func NewPermissionID(name string) PermissionID {
	id := PermissionID(Keccak256([]byte(name)))
	permissionNamesMu.Lock()
	permissionNames[id] = name
	permissionNamesMu.Unlock()
	return id
}

// PermissionName returns the registered name of id, or "" if none.
func PermissionName(id PermissionID) string {
	permissionNamesMu.RLock()
	defer permissionNamesMu.RUnlock()
	return permissionNames[id]
}

// ParsePermissionID accepts either a 0x-prefixed hash or a permission name.
// Names are hashed (and registered) the same way NewPermissionID does.
func ParsePermissionID(s string) (PermissionID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PermissionID{}, fmt.Errorf("empty permission id")
	}
	if strings.HasPrefix(s, "0x") {
		h, err := ParseHash(s)
		if err != nil {
			return PermissionID{}, err
		}
		return PermissionID(h), nil
	}
	return NewPermissionID(s), nil
}

// String returns the hex form of the id.
func (p PermissionID) String() string {
	return "0x" + hex.EncodeToString(p[:])
}

// Label returns the registered name when known, otherwise the hex form.
func (p PermissionID) Label() string {
	if name := PermissionName(p); name != "" {
		return name
	}
	return p.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p PermissionID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PermissionID) UnmarshalText(text []byte) error {
	parsed, err := ParsePermissionID(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Operation selects what a permission item does inside a bulk call.
type Operation uint8

const (
	OpGrant Operation = iota
	OpRevoke
	OpFreeze
	OpGrantWithCondition
)

// String returns the operation name used in events and scenarios.
func (o Operation) String() string {
	switch o {
	case OpGrant:
		return "grant"
	case OpRevoke:
		return "revoke"
	case OpFreeze:
		return "freeze"
	case OpGrantWithCondition:
		return "grantWithCondition"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}

// ParseOperation is the inverse of Operation.String.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "grant":
		return OpGrant, nil
	case "revoke":
		return OpRevoke, nil
	case "freeze":
		return OpFreeze, nil
	case "grantWithCondition":
		return OpGrantWithCondition, nil
	default:
		return 0, fmt.Errorf("unknown permission operation %q", s)
	}
}

// MultiTargetPermission is one item of a permission list carried through the
// setup protocol. Condition is only meaningful for OpGrantWithCondition.
type MultiTargetPermission struct {
	Operation    Operation    `json:"operation" cbor:"1,keyasint"`
	Where        Address      `json:"where" cbor:"2,keyasint"`
	Who          Address      `json:"who" cbor:"3,keyasint"`
	Condition    Address      `json:"condition" cbor:"4,keyasint"`
	PermissionID PermissionID `json:"permission_id" cbor:"5,keyasint"`
}

// Fields renders the item for event payloads.
func (p MultiTargetPermission) Fields() map[string]any {
	m := map[string]any{
		"operation":     p.Operation.String(),
		"where":         p.Where.String(),
		"who":           p.Who.String(),
		"permission_id": p.PermissionID.Label(),
	}
	if p.Operation == OpGrantWithCondition {
		m["condition"] = p.Condition.String()
	}
	return m
}
