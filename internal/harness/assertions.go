package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/govkit/internal/ir"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// assert evaluates one assertion against the final state and the trace.
func (r *runner) assert(result *Result, a Assertion) error {
	switch a.Type {
	case AssertGranted, AssertNotGranted:
		return r.assertGranted(a)
	case AssertFrozen:
		return r.assertFrozen(a)
	case AssertEventCount:
		return assertEventCount(result, a)
	case AssertEventOrder:
		return assertEventOrder(result, a)
	case AssertInstalled, AssertNotInstalled:
		return r.assertInstalled(a)
	case AssertPhase:
		return r.assertPhase(a)
	case AssertBalance:
		return r.assertBalance(a)
	case AssertMetadata:
		return r.assertMetadata(a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (r *runner) assertGranted(a Assertion) error {
	d, err := r.env.DAO(a.DAO)
	if err != nil {
		return err
	}
	args, err := r.permissionArgs(a.Where, a.Who, a.Permission, "")
	if err != nil {
		return err
	}
	want := a.Type == AssertGranted
	got := d.IsGranted(args.Where, args.Who, args.PermissionID, nil)
	if got != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("granted=%t for %s on %s (%s)", want, a.Who, a.Where, a.Permission),
			Actual:   fmt.Sprintf("granted=%t", got),
		}
	}
	return nil
}

func (r *runner) assertFrozen(a Assertion) error {
	d, err := r.env.DAO(a.DAO)
	if err != nil {
		return err
	}
	args, err := r.permissionArgs(a.Where, "", a.Permission, "")
	if err != nil {
		return err
	}
	if !d.IsFrozen(args.Where, args.PermissionID) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s frozen on %s", a.Permission, a.Where),
			Actual:   "not frozen",
		}
	}
	return nil
}

func assertEventCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Events() {
		if ev.Name == a.Event && (a.Emitter == "" || ev.Emitter == a.Emitter) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}

// assertEventOrder checks that the named events occur in the given order.
// Other events may appear in between.
func assertEventOrder(result *Result, a Assertion) error {
	events := result.Events()
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name
	}

	next := 0
	for _, name := range names {
		if next < len(a.Events) && name == a.Events[next] {
			next++
		}
	}
	if next != len(a.Events) {
		return &AssertionError{
			Type:     a.Type,
			Expected: strings.Join(a.Events, " -> "),
			Actual:   strings.Join(names, " -> "),
		}
	}
	return nil
}

func (r *runner) assertInstalled(a Assertion) error {
	d, err := r.env.DAO(a.DAO)
	if err != nil {
		return err
	}
	pluginAddr, err := r.env.Resolve(a.Plugin)
	if err != nil {
		return err
	}
	want := a.Type == AssertInstalled
	got := r.env.Processor.AppliedSetupID(d.Address(), pluginAddr) != ir.Hash{}
	if got != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("installed=%t for %s in %s", want, a.Plugin, a.DAO),
			Actual:   fmt.Sprintf("installed=%t", got),
		}
	}
	return nil
}

func (r *runner) assertPhase(a Assertion) error {
	d, err := r.env.DAO(a.DAO)
	if err != nil {
		return err
	}
	pluginAddr, err := r.env.Resolve(a.Plugin)
	if err != nil {
		return err
	}
	lc, err := r.env.Processor.Lifecycle(d.Address(), pluginAddr)
	if err != nil {
		return err
	}
	if string(lc.Phase) != a.Phase {
		return &AssertionError{
			Type:     a.Type,
			Expected: a.Phase,
			Actual:   string(lc.Phase),
		}
	}
	return nil
}

func (r *runner) assertBalance(a Assertion) error {
	addr, err := r.env.Resolve(a.Account)
	if err != nil {
		return err
	}
	if got := r.env.Ledger.Balance(addr); got != a.Amount {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s holds %d", a.Account, a.Amount),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func (r *runner) assertMetadata(a Assertion) error {
	d, err := r.env.DAO(a.DAO)
	if err != nil {
		return err
	}
	if got := string(d.Metadata()); got != a.Metadata {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%q", a.Metadata),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}
