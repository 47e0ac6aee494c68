package condition

import (
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/permission"
)

// Func adapts an ordinary function to permission.Condition.
type Func func(where, who ir.Address, id ir.PermissionID, data []byte) bool

// Check implements permission.Condition.
func (f Func) Check(where, who ir.Address, id ir.PermissionID, data []byte) bool {
	return f(where, who, id, data)
}

// Allow is a condition that always grants.
var Allow permission.Condition = Func(func(ir.Address, ir.Address, ir.PermissionID, []byte) bool { return true })

// Deny is a condition that never grants.
var Deny permission.Condition = Func(func(ir.Address, ir.Address, ir.PermissionID, []byte) bool { return false })

type allOf []permission.Condition

// AllOf grants only when every condition grants. An empty AllOf grants.
func AllOf(conds ...permission.Condition) permission.Condition {
	return allOf(conds)
}

func (a allOf) Check(where, who ir.Address, id ir.PermissionID, data []byte) bool {
	for _, c := range a {
		if !c.Check(where, who, id, data) {
			return false
		}
	}
	return true
}

type anyOf []permission.Condition

// AnyOf grants when at least one condition grants. An empty AnyOf denies.
func AnyOf(conds ...permission.Condition) permission.Condition {
	return anyOf(conds)
}

func (a anyOf) Check(where, who ir.Address, id ir.PermissionID, data []byte) bool {
	for _, c := range a {
		if c.Check(where, who, id, data) {
			return true
		}
	}
	return false
}

type not struct {
	inner permission.Condition
}

// Not inverts c.
func Not(c permission.Condition) permission.Condition {
	return not{inner: c}
}

func (n not) Check(where, who ir.Address, id ir.PermissionID, data []byte) bool {
	return !n.inner.Check(where, who, id, data)
}

// Callers grants only to the listed callers.
func Callers(allowed ...ir.Address) permission.Condition {
	set := make(map[ir.Address]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return Func(func(_ ir.Address, who ir.Address, _ ir.PermissionID, _ []byte) bool {
		_, ok := set[who]
		return ok
	})
}
