package processor

import (
	"context"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/repo"
	"github.com/roach88/govkit/internal/setup"
)

// Permission ids a DAO grants to let callers apply setups.
var (
	ApplyInstallationPermissionID   = ir.NewPermissionID("APPLY_INSTALLATION_PERMISSION")
	ApplyUpdatePermissionID         = ir.NewPermissionID("APPLY_UPDATE_PERMISSION")
	ApplyUninstallationPermissionID = ir.NewPermissionID("APPLY_UNINSTALLATION_PERMISSION")
)

// DAO is what the processor needs from a DAO account.
type DAO interface {
	IsGranted(where, who ir.Address, id ir.PermissionID, data []byte) bool
	ApplyMultiTargetPermissions(caller ir.Address, items []ir.MultiTargetPermission) error
}

type pluginState struct {
	// blockNumber is the block of the last apply for this installation.
	blockNumber           uint64
	currentAppliedSetupID ir.Hash
	preparedSetupIDs      map[ir.Hash]uint64
	history               []string
}

func (s *pluginState) clone() *pluginState {
	return &pluginState{
		blockNumber:           s.blockNumber,
		currentAppliedSetupID: s.currentAppliedSetupID,
		preparedSetupIDs:      maps.Clone(s.preparedSetupIDs),
		history:               slices.Clone(s.history),
	}
}

// pending reports whether id was prepared after the last apply.
func (s *pluginState) pending(id ir.Hash) bool {
	return s.blockNumber < s.preparedSetupIDs[id]
}

// Processor is the plugin setup processor.
type Processor struct {
	addr     ir.Address
	ledger   *ledger.Ledger
	registry *repo.Registry
	states   map[ir.Hash]*pluginState
}

// New creates a processor at addr that accepts repos from registry.
func New(l *ledger.Ledger, addr ir.Address, registry *repo.Registry) *Processor {
	return &Processor{
		addr:     addr,
		ledger:   l,
		registry: registry,
		states:   make(map[ir.Hash]*pluginState),
	}
}

// Deploy creates a processor at the next address of deployer and registers it.
func Deploy(l *ledger.Ledger, deployer ir.Address, registry *repo.Registry) (*Processor, error) {
	return ledger.Deploy(l, deployer, func(addr ir.Address) (*Processor, error) {
		return New(l, addr, registry), nil
	})
}

// Address implements ledger.Account.
func (p *Processor) Address() ir.Address {
	return p.addr
}

// AppliedSetupID returns the applied setup id of the installation, or the
// zero hash when nothing is installed.
func (p *Processor) AppliedSetupID(dao, plugin ir.Address) ir.Hash {
	if s, ok := p.states[ir.PluginInstallationID(dao, plugin)]; ok {
		return s.currentAppliedSetupID
	}
	return ir.ZeroHash
}

// PreparedBlock returns the block at which id was last prepared for the
// installation, or 0.
func (p *Processor) PreparedBlock(dao, plugin ir.Address, id ir.Hash) uint64 {
	if s, ok := p.states[ir.PluginInstallationID(dao, plugin)]; ok {
		return s.preparedSetupIDs[id]
	}
	return 0
}

// IsPending reports whether id can currently be applied for the installation.
func (p *Processor) IsPending(dao, plugin ir.Address, id ir.Hash) bool {
	if s, ok := p.states[ir.PluginInstallationID(dao, plugin)]; ok {
		return s.pending(id)
	}
	return false
}

// Snapshot implements ledger.Snapshotter.
func (p *Processor) Snapshot() func() {
	saved := make(map[ir.Hash]*pluginState, len(p.states))
	for k, v := range p.states {
		saved[k] = v.clone()
	}
	return func() {
		p.states = saved
	}
}

func (p *Processor) state(dao, plugin ir.Address) *pluginState {
	id := ir.PluginInstallationID(dao, plugin)
	s, ok := p.states[id]
	if !ok {
		s = &pluginState{preparedSetupIDs: make(map[ir.Hash]uint64)}
		p.states[id] = s
	}
	return s
}

// resolveVersion checks that the repo is registered and returns the setup
// published under tag.
func (p *Processor) resolveVersion(repoAddr ir.Address, tag ir.VersionTag) (setup.PluginSetup, error) {
	r, err := p.registry.Repo(repoAddr)
	if err != nil {
		return nil, err
	}
	v, err := r.GetVersion(tag)
	if err != nil {
		return nil, err
	}
	return setup.Resolve(p.ledger, v.PluginSetup)
}

func (p *Processor) dao(addr ir.Address) (DAO, error) {
	acct, ok := p.ledger.Account(addr)
	if !ok {
		return nil, ir.NewError(ir.ErrCodeAccountNotFound, "no DAO at address", "dao", addr.String())
	}
	d, ok := acct.(DAO)
	if !ok {
		return nil, fmt.Errorf("account %s is not a DAO", addr)
	}
	return d, nil
}

// canApply reports whether caller may apply setups on dao: either the DAO
// itself or a holder of id on the processor in the DAO's table.
func (p *Processor) canApply(d DAO, dao, caller ir.Address, id ir.PermissionID) error {
	if caller == dao || d.IsGranted(p.addr, caller, id, nil) {
		return nil
	}
	return errSetupApplicationUnauthorized(dao, caller, id)
}

func (p *Processor) applyPermissions(d DAO, perms []ir.MultiTargetPermission) error {
	if len(perms) == 0 {
		return nil
	}
	return d.ApplyMultiTargetPermissions(p.addr, perms)
}

func (p *Processor) submit(ctx context.Context, caller ir.Address, label string, fn func(ctx context.Context) error) error {
	_, err := p.ledger.Submit(ctx, caller, label, fn)
	return err
}

func (p *Processor) emit(name string, fields ir.Fields) {
	p.ledger.Emit(ir.Event{Emitter: p.addr, Name: name, Fields: fields})
}

func helperFields(helpers []ir.Address) []any {
	out := make([]any, len(helpers))
	for i, h := range helpers {
		out[i] = h.String()
	}
	return out
}

func permissionFields(perms []ir.MultiTargetPermission) []any {
	out := make([]any, len(perms))
	for i, perm := range perms {
		out[i] = perm.Fields()
	}
	return out
}

func hexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
