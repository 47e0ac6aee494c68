package permission

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"

	"github.com/roach88/govkit/internal/ir"
)

// RootPermissionID authorizes permission management itself.
var RootPermissionID = ir.NewPermissionID("ROOT_PERMISSION")

type entryKey struct {
	where ir.Address
	who   ir.Address
	id    ir.PermissionID
}

type pairKey struct {
	addr ir.Address
	id   ir.PermissionID
}

// state is the committed permission table.
type state struct {
	entries  map[entryKey]ir.Address
	anyWho   map[pairKey]ir.Address
	anyWhere map[pairKey]ir.Address
	frozen   map[pairKey]bool
}

func newState() *state {
	return &state{
		entries:  make(map[entryKey]ir.Address),
		anyWho:   make(map[pairKey]ir.Address),
		anyWhere: make(map[pairKey]ir.Address),
		frozen:   make(map[pairKey]bool),
	}
}

func (s *state) get(k entryKey) (ir.Address, bool) {
	var v ir.Address
	var ok bool
	switch {
	case k.who == ir.Any:
		v, ok = s.anyWho[pairKey{k.where, k.id}]
	case k.where == ir.Any:
		v, ok = s.anyWhere[pairKey{k.who, k.id}]
	default:
		v, ok = s.entries[k]
	}
	return v, ok
}

func (s *state) put(k entryKey, v ir.Address) {
	switch {
	case k.who == ir.Any:
		s.anyWho[pairKey{k.where, k.id}] = v
	case k.where == ir.Any:
		s.anyWhere[pairKey{k.who, k.id}] = v
	default:
		s.entries[k] = v
	}
}

func (s *state) del(k entryKey) {
	switch {
	case k.who == ir.Any:
		delete(s.anyWho, pairKey{k.where, k.id})
	case k.where == ir.Any:
		delete(s.anyWhere, pairKey{k.who, k.id})
	default:
		delete(s.entries, k)
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.anyWho {
		c.anyWho[k] = v
	}
	for k, v := range s.anyWhere {
		c.anyWhere[k] = v
	}
	for k, v := range s.frozen {
		c.frozen[k] = v
	}
	return c
}

// Manager is the permission table of one account (a DAO or a repository).
type Manager struct {
	self     ir.Address
	st       *state
	resolver ConditionResolver
	sink     ir.EventSink

	// restrictedForAny lists permission ids that may never be granted to or
	// on the wildcard, even with a condition. ROOT is always restricted.
	restrictedForAny func(ir.PermissionID) bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithConditionResolver sets how condition addresses are resolved.
// Default: no condition resolves, so every conditional entry denies.
func WithConditionResolver(r ConditionResolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithEventSink sets where Granted, Revoked and Frozen events go.
// Default: events are discarded.
func WithEventSink(s ir.EventSink) Option {
	return func(m *Manager) {
		m.sink = s
	}
}

// WithRestrictedForAny marks permission ids that may not be combined with the
// wildcard address.
func WithRestrictedForAny(fn func(ir.PermissionID) bool) Option {
	return func(m *Manager) {
		m.restrictedForAny = fn
	}
}

// New creates the permission table for the account self and grants ROOT on
// self to initialOwner. A zero initialOwner leaves the table empty, in which
// case only self (through the self-consistency rule) can manage it.
func New(self, initialOwner ir.Address, opts ...Option) *Manager {
	m := &Manager{
		self:             self,
		st:               newState(),
		resolver:         noConditions{},
		sink:             ir.Discard,
		restrictedForAny: func(ir.PermissionID) bool { return false },
	}
	for _, opt := range opts {
		opt(m)
	}

	if !initialOwner.IsZero() {
		m.st.put(entryKey{self, initialOwner, RootPermissionID}, ir.AllowFlag)
		m.sink.Emit(grantedEvent(self, self, self, initialOwner, RootPermissionID, ir.AllowFlag))
	}
	return m
}

// Self returns the address of the account that owns this table.
func (m *Manager) Self() ir.Address {
	return m.self
}

// SetEventSink redirects events. Used by the ledger when an account is deployed.
func (m *Manager) SetEventSink(s ir.EventSink) {
	m.sink = s
}

// SetConditionResolver redirects condition resolution.
func (m *Manager) SetConditionResolver(r ConditionResolver) {
	m.resolver = r
}

// IsGranted reports whether who may act on where under id. data is passed
// to condition evaluators unchanged.
func (m *Manager) IsGranted(where, who ir.Address, id ir.PermissionID, data []byte) bool {
	if where == m.self && who == m.self && id == RootPermissionID {
		return true
	}

	if v, ok := m.st.entries[entryKey{where, who, id}]; ok {
		if v == ir.AllowFlag || evaluate(m.resolver, v, where, who, id, data) {
			return true
		}
	}

	if v, ok := m.st.anyWho[pairKey{where, id}]; ok {
		if v == ir.AllowFlag || evaluate(m.resolver, v, where, who, id, data) {
			return true
		}
	}

	if v, ok := m.st.anyWhere[pairKey{who, id}]; ok {
		if v == ir.AllowFlag || evaluate(m.resolver, v, where, who, id, data) {
			return true
		}
	}

	return false
}

// HasPermission is IsGranted under the name DAO callers use.
func (m *Manager) HasPermission(where, who ir.Address, id ir.PermissionID, data []byte) bool {
	return m.IsGranted(where, who, id, data)
}

// IsFrozen reports whether (where, id) is frozen.
func (m *Manager) IsFrozen(where ir.Address, id ir.PermissionID) bool {
	return m.st.frozen[pairKey{where, id}]
}

// Entry returns the raw stored value: ir.AllowFlag, a condition address, or
// ok=false when unset.
func (m *Manager) Entry(where, who ir.Address, id ir.PermissionID) (ir.Address, bool) {
	return m.st.get(entryKey{where, who, id})
}

// Grant stores an unconditional allow for (where, who, id).
func (m *Manager) Grant(caller, where, who ir.Address, id ir.PermissionID) error {
	return m.run(caller, func(b *batch) error {
		return b.grant(caller, where, who, id)
	})
}

// GrantWithCondition stores cond as the evaluator for (where, who, id).
func (m *Manager) GrantWithCondition(caller, where, who ir.Address, id ir.PermissionID, cond ir.Address) error {
	return m.run(caller, func(b *batch) error {
		return b.grantWithCondition(caller, where, who, id, cond)
	})
}

// Revoke clears (where, who, id).
func (m *Manager) Revoke(caller, where, who ir.Address, id ir.PermissionID) error {
	return m.run(caller, func(b *batch) error {
		return b.revoke(caller, where, who, id)
	})
}

// Freeze permanently blocks grant and revoke on (where, id).
func (m *Manager) Freeze(caller, where ir.Address, id ir.PermissionID) error {
	return m.run(caller, func(b *batch) error {
		return b.freeze(caller, where, id)
	})
}

// Item is one operation of a single-target bulk call.
type Item struct {
	Operation    ir.Operation
	Who          ir.Address
	PermissionID ir.PermissionID
	Condition    ir.Address
}

// Bulk applies items to where in order. Either every item applies or none does.
func (m *Manager) Bulk(caller, where ir.Address, items []Item) error {
	return m.run(caller, func(b *batch) error {
		for i, it := range items {
			p := ir.MultiTargetPermission{
				Operation:    it.Operation,
				Where:        where,
				Who:          it.Who,
				Condition:    it.Condition,
				PermissionID: it.PermissionID,
			}
			if err := b.apply(caller, p); err != nil {
				return withIndex(err, i)
			}
		}
		return nil
	})
}

// ApplyMultiTargetPermissions applies items, each with its own where, in
// order. Either every item applies or none does.
func (m *Manager) ApplyMultiTargetPermissions(caller ir.Address, items []ir.MultiTargetPermission) error {
	return m.run(caller, func(b *batch) error {
		for i, p := range items {
			if err := b.apply(caller, p); err != nil {
				return withIndex(err, i)
			}
		}
		return nil
	})
}

// run checks that caller holds ROOT on the manager, stages fn, and commits
// only if fn succeeds.
func (m *Manager) run(caller ir.Address, fn func(b *batch) error) error {
	if !m.IsGranted(m.self, caller, RootPermissionID, nil) {
		return ErrUnauthorized(m.self, caller, RootPermissionID)
	}
	b := newBatch(m)
	if err := fn(b); err != nil {
		slog.Debug("permission change rejected",
			"manager", m.self,
			"caller", caller,
			"error", err,
		)
		return err
	}
	b.commit()
	return nil
}

// withIndex tags the batch item that failed. A wrapped *ir.Error is found
// through the chain.
func withIndex(err error, i int) error {
	var e *ir.Error
	if errors.As(err, &e) {
		c := *e
		c.Details = make(map[string]string, len(e.Details)+1)
		for k, v := range e.Details {
			c.Details[k] = v
		}
		c.Details["index"] = itoa(i)
		return &c
	}
	return err
}

// Snapshot captures the table. Calling the returned function restores it.
func (m *Manager) Snapshot() func() {
	saved := m.st.clone()
	return func() {
		m.st = saved.clone()
	}
}

// Entry describes one stored permission for listing.
type Entry struct {
	Where        ir.Address
	Who          ir.Address
	PermissionID ir.PermissionID
	// Condition is ir.AllowFlag for unconditional entries.
	Condition ir.Address
}

// Entries lists every stored entry ordered by (where, who, id).
func (m *Manager) Entries() []Entry {
	var out []Entry
	for k, v := range m.st.entries {
		out = append(out, Entry{k.where, k.who, k.id, v})
	}
	for k, v := range m.st.anyWho {
		out = append(out, Entry{k.addr, ir.Any, k.id, v})
	}
	for k, v := range m.st.anyWhere {
		out = append(out, Entry{ir.Any, k.addr, k.id, v})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := bytes.Compare(a.Where[:], b.Where[:]); c != 0 {
			return c
		}
		if c := bytes.Compare(a.Who[:], b.Who[:]); c != 0 {
			return c
		}
		return bytes.Compare(a.PermissionID[:], b.PermissionID[:])
	})
	return out
}
