package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/govkit/internal/ir"
)

// PermissionEntry is one live permission rebuilt from the journal.
type PermissionEntry struct {
	Where        ir.Address
	Who          ir.Address
	PermissionID ir.PermissionID
	// Condition is the zero address for unconditional grants.
	Condition ir.Address
}

// PermissionState is the permission table of one manager rebuilt from its
// Granted, Revoked and Frozen events.
type PermissionState struct {
	Manager ir.Address
	Entries []PermissionEntry
	Frozen  []FrozenEntry
	LastSeq int64
}

// FrozenEntry is a frozen (where, permissionId) pair.
type FrozenEntry struct {
	Where        ir.Address
	PermissionID ir.PermissionID
}

type permKey struct {
	where, who ir.Address
	id         ir.PermissionID
}

// ReplayPermissions folds the permission events emitted by manager, in
// journal order, into its current permission table. Only committed
// transactions have events, so reverted calls never show up.
func (s *Store) ReplayPermissions(ctx context.Context, manager ir.Address) (PermissionState, error) {
	events, err := s.ReadEvents(ctx, EventFilter{Emitter: manager})
	if err != nil {
		return PermissionState{}, fmt.Errorf("replay permissions: %w", err)
	}

	state := PermissionState{Manager: manager}
	entries := make(map[permKey]ir.Address)
	frozen := make(map[FrozenEntry]bool)

	for _, ev := range events {
		if ev.TxSeq > state.LastSeq {
			state.LastSeq = ev.TxSeq
		}
		switch ev.Name {
		case "Granted", "Revoked", "Frozen":
		default:
			continue
		}

		where, err := addressField(ev, "where")
		if err != nil {
			return PermissionState{}, err
		}
		id, err := permissionField(ev)
		if err != nil {
			return PermissionState{}, err
		}

		if ev.Name == "Frozen" {
			frozen[FrozenEntry{Where: where, PermissionID: id}] = true
			continue
		}
		who, err := addressField(ev, "who")
		if err != nil {
			return PermissionState{}, err
		}
		k := permKey{where: where, who: who, id: id}
		if ev.Name == "Revoked" {
			delete(entries, k)
			continue
		}
		cond := ir.Zero
		if _, ok := ev.Fields["condition"]; ok {
			if cond, err = addressField(ev, "condition"); err != nil {
				return PermissionState{}, err
			}
		}
		entries[k] = cond
	}

	state.Entries = make([]PermissionEntry, 0, len(entries))
	for k, cond := range entries {
		state.Entries = append(state.Entries, PermissionEntry{
			Where:        k.where,
			Who:          k.who,
			PermissionID: k.id,
			Condition:    cond,
		})
	}
	slices.SortFunc(state.Entries, func(a, b PermissionEntry) int {
		if c := strings.Compare(a.Where.String(), b.Where.String()); c != 0 {
			return c
		}
		if c := strings.Compare(a.PermissionID.Label(), b.PermissionID.Label()); c != 0 {
			return c
		}
		return strings.Compare(a.Who.String(), b.Who.String())
	})

	state.Frozen = make([]FrozenEntry, 0, len(frozen))
	for f := range frozen {
		state.Frozen = append(state.Frozen, f)
	}
	slices.SortFunc(state.Frozen, func(a, b FrozenEntry) int {
		if c := strings.Compare(a.Where.String(), b.Where.String()); c != 0 {
			return c
		}
		return strings.Compare(a.PermissionID.Label(), b.PermissionID.Label())
	})
	return state, nil
}

func addressField(ev Event, key string) (ir.Address, error) {
	s, ok := ev.Fields[key].(string)
	if !ok {
		return ir.Zero, fmt.Errorf("event %s: field %q is missing", ev.ID, key)
	}
	a, err := ir.ParseAddress(s)
	if err != nil {
		return ir.Zero, fmt.Errorf("event %s: field %q: %w", ev.ID, key, err)
	}
	return a, nil
}

func permissionField(ev Event) (ir.PermissionID, error) {
	s, ok := ev.Fields["permission_id"].(string)
	if !ok {
		return ir.PermissionID{}, fmt.Errorf("event %s: field \"permission_id\" is missing", ev.ID)
	}
	id, err := ir.ParsePermissionID(s)
	if err != nil {
		return ir.PermissionID{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	return id, nil
}
