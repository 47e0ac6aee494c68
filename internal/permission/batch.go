package permission

import (
	"strconv"

	"github.com/roach88/govkit/internal/ir"
)

// batch is a staged builder over a Manager's committed state. Reads see the
// staged writes; nothing reaches the Manager until commit.
type batch struct {
	m       *Manager
	entries map[entryKey]*ir.Address // nil value means cleared
	order   []entryKey
	frozen  map[pairKey]bool
	events  []ir.Event
}

func newBatch(m *Manager) *batch {
	return &batch{
		m:       m,
		entries: make(map[entryKey]*ir.Address),
		frozen:  make(map[pairKey]bool),
	}
}

func (b *batch) get(k entryKey) (ir.Address, bool) {
	if v, ok := b.entries[k]; ok {
		if v == nil {
			return ir.Zero, false
		}
		return *v, true
	}
	return b.m.st.get(k)
}

func (b *batch) set(k entryKey, v *ir.Address) {
	if _, seen := b.entries[k]; !seen {
		b.order = append(b.order, k)
	}
	b.entries[k] = v
}

func (b *batch) isFrozen(where ir.Address, id ir.PermissionID) bool {
	p := pairKey{where, id}
	return b.frozen[p] || b.m.st.frozen[p]
}

func (b *batch) apply(caller ir.Address, p ir.MultiTargetPermission) error {
	switch p.Operation {
	case ir.OpGrant:
		return b.grant(caller, p.Where, p.Who, p.PermissionID)
	case ir.OpRevoke:
		return b.revoke(caller, p.Where, p.Who, p.PermissionID)
	case ir.OpFreeze:
		return b.freeze(caller, p.Where, p.PermissionID)
	case ir.OpGrantWithCondition:
		return b.grantWithCondition(caller, p.Where, p.Who, p.PermissionID, p.Condition)
	default:
		return ir.NewError(ir.ErrCodeUnknownMethod, "unknown permission operation",
			"operation", p.Operation.String())
	}
}

func (b *batch) grant(caller, where, who ir.Address, id ir.PermissionID) error {
	if b.isFrozen(where, id) {
		return errFrozen(where, id)
	}
	if where == ir.Any || who == ir.Any {
		return errAnyDisallowed(id)
	}
	if _, ok := b.get(entryKey{where, who, id}); ok {
		return errAlreadyGranted(where, who, id)
	}
	flag := ir.AllowFlag
	b.set(entryKey{where, who, id}, &flag)
	b.events = append(b.events, grantedEvent(b.m.self, caller, where, who, id, flag))
	return nil
}

func (b *batch) grantWithCondition(caller, where, who ir.Address, id ir.PermissionID, cond ir.Address) error {
	if b.isFrozen(where, id) {
		return errFrozen(where, id)
	}
	if where == ir.Any && who == ir.Any {
		return errAnyForWhoAndWhere()
	}
	if (where == ir.Any || who == ir.Any) && (id == RootPermissionID || b.m.restrictedForAny(id)) {
		return errAnyDisallowed(id)
	}
	if cond.IsZero() || cond == ir.AllowFlag || cond == ir.Any {
		return errConditionNotAContract(cond)
	}
	if _, ok := b.m.resolver.ResolveCondition(cond); !ok {
		return errConditionNotAContract(cond)
	}
	if _, ok := b.get(entryKey{where, who, id}); ok {
		return errAlreadyGranted(where, who, id)
	}
	b.set(entryKey{where, who, id}, &cond)
	b.events = append(b.events, grantedEvent(b.m.self, caller, where, who, id, cond))
	return nil
}

func (b *batch) revoke(caller, where, who ir.Address, id ir.PermissionID) error {
	if b.isFrozen(where, id) {
		return errFrozen(where, id)
	}
	if _, ok := b.get(entryKey{where, who, id}); !ok {
		return errAlreadyRevoked(where, who, id)
	}
	b.set(entryKey{where, who, id}, nil)
	b.events = append(b.events, ir.Event{
		Emitter: b.m.self,
		Name:    "Revoked",
		Fields: ir.Fields{
			"permission_id": id.Label(),
			"here":          caller.String(),
			"where":         where.String(),
			"who":           who.String(),
		},
	})
	return nil
}

func (b *batch) freeze(caller, where ir.Address, id ir.PermissionID) error {
	if where == ir.Any {
		return errAnyDisallowed(id)
	}
	if b.isFrozen(where, id) {
		return errAlreadyFrozen(where, id)
	}
	b.frozen[pairKey{where, id}] = true
	b.events = append(b.events, ir.Event{
		Emitter: b.m.self,
		Name:    "Frozen",
		Fields: ir.Fields{
			"permission_id": id.Label(),
			"here":          caller.String(),
			"where":         where.String(),
		},
	})
	return nil
}

// commit writes the staged changes in the order they were first touched and
// emits the staged events.
func (b *batch) commit() {
	for _, k := range b.order {
		if v := b.entries[k]; v == nil {
			b.m.st.del(k)
		} else {
			b.m.st.put(k, *v)
		}
	}
	for p := range b.frozen {
		b.m.st.frozen[p] = true
	}
	for _, ev := range b.events {
		b.m.sink.Emit(ev)
	}
}

func grantedEvent(emitter, caller, where, who ir.Address, id ir.PermissionID, value ir.Address) ir.Event {
	fields := ir.Fields{
		"permission_id": id.Label(),
		"here":          caller.String(),
		"where":         where.String(),
		"who":           who.String(),
	}
	if value != ir.AllowFlag {
		fields["condition"] = value.String()
	}
	return ir.Event{Emitter: emitter, Name: "Granted", Fields: fields}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
