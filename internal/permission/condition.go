package permission

import (
	"log/slog"

	"github.com/roach88/govkit/internal/ir"
)

// Condition is a pluggable run-time policy evaluator attached to a
// permission entry at grant time.
type Condition interface {
	Check(where, who ir.Address, permissionID ir.PermissionID, data []byte) bool
}

// ConditionResolver maps a stored condition address to its evaluator.
type ConditionResolver interface {
	ResolveCondition(addr ir.Address) (Condition, bool)
}

// Conditions is a map-backed ConditionResolver.
type Conditions map[ir.Address]Condition

// ResolveCondition implements ConditionResolver.
func (c Conditions) ResolveCondition(addr ir.Address) (Condition, bool) {
	cond, ok := c[addr]
	return cond, ok
}

type noConditions struct{}

func (noConditions) ResolveCondition(ir.Address) (Condition, bool) { return nil, false }

// evaluate runs a stored condition. A condition that cannot be resolved or
// that panics denies.
func evaluate(resolver ConditionResolver, addr ir.Address, where, who ir.Address, id ir.PermissionID, data []byte) (granted bool) {
	cond, ok := resolver.ResolveCondition(addr)
	if !ok {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("condition panicked",
				"condition", addr,
				"permission_id", id.Label(),
				"panic", r,
			)
			granted = false
		}
	}()
	return cond.Check(where, who, id, data)
}
