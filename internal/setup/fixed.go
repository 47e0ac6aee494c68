package setup

import (
	"context"
	"fmt"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/plugin"
)

// FixedConfig describes what a Fixed setup returns.
type FixedConfig struct {
	// Logic backs the plugin instances. Nil leaves Implementation zero and
	// deploys nothing.
	Logic plugin.Logic

	// Kind is the instance type. Default: plugin.UUPS.
	Kind plugin.Type

	// Plugin pins the instance address. When zero, every installation
	// deploys a fresh proxy.
	Plugin ir.Address

	Helpers              []ir.Address
	InstallPermissions   []ir.MultiTargetPermission
	UpdatePermissions    []ir.MultiTargetPermission
	UninstallPermissions []ir.MultiTargetPermission
	UpdateInitData       []byte
}

// Fixed is a deterministic PluginSetup: every preparation returns the
// configured values, with placeholders bound to the DAO and the plugin.
type Fixed struct {
	addr   ir.Address
	ledger *ledger.Ledger
	cfg    FixedConfig
}

// NewFixed creates a Fixed setup at addr.
func NewFixed(l *ledger.Ledger, addr ir.Address, cfg FixedConfig) *Fixed {
	if cfg.Kind == 0 {
		cfg.Kind = plugin.UUPS
	}
	return &Fixed{addr: addr, ledger: l, cfg: cfg}
}

// DeployFixed creates a Fixed setup at the next address of deployer and
// registers it.
func DeployFixed(l *ledger.Ledger, deployer ir.Address, cfg FixedConfig) (*Fixed, error) {
	return ledger.Deploy(l, deployer, func(addr ir.Address) (*Fixed, error) {
		return NewFixed(l, addr, cfg), nil
	})
}

func (f *Fixed) Address() ir.Address {
	return f.addr
}

func (f *Fixed) Implementation() ir.Address {
	if f.cfg.Logic == nil {
		return ir.Zero
	}
	return f.cfg.Logic.Address()
}

// PrepareInstallation returns the pinned plugin address, or deploys a proxy.
// A pinned address without an account gets a proxy deployed there.
func (f *Fixed) PrepareInstallation(ctx context.Context, dao ir.Address, data []byte) (ir.Address, PreparedSetupData, error) {
	pluginAddr := f.cfg.Plugin
	switch {
	case f.cfg.Logic == nil:
		if pluginAddr.IsZero() {
			return ir.Zero, PreparedSetupData{}, fmt.Errorf("fixed setup %s has neither logic nor a pinned plugin", f.addr)
		}
	case pluginAddr.IsZero():
		p, err := plugin.DeployProxy(ctx, f.ledger, f.addr, dao, f.cfg.Kind, f.cfg.Logic, data)
		if err != nil {
			return ir.Zero, PreparedSetupData{}, err
		}
		pluginAddr = p.Address()
	case !f.ledger.IsContract(pluginAddr):
		p, err := plugin.NewProxy(ctx, f.ledger, pluginAddr, dao, f.cfg.Kind, f.cfg.Logic, data)
		if err != nil {
			return ir.Zero, PreparedSetupData{}, err
		}
		if err := f.ledger.Register(p); err != nil {
			return ir.Zero, PreparedSetupData{}, err
		}
	}

	return pluginAddr, PreparedSetupData{
		Helpers:     cloneAddresses(f.cfg.Helpers),
		Permissions: Bind(f.cfg.InstallPermissions, dao, pluginAddr),
	}, nil
}

func (f *Fixed) PrepareUpdate(_ context.Context, dao ir.Address, _ uint16, payload SetupPayload) ([]byte, PreparedSetupData, error) {
	return f.cfg.UpdateInitData, PreparedSetupData{
		Helpers:     cloneAddresses(f.cfg.Helpers),
		Permissions: Bind(f.cfg.UpdatePermissions, dao, payload.Plugin),
	}, nil
}

func (f *Fixed) PrepareUninstallation(_ context.Context, dao ir.Address, payload SetupPayload) ([]ir.MultiTargetPermission, error) {
	return Bind(f.cfg.UninstallPermissions, dao, payload.Plugin), nil
}

func cloneAddresses(in []ir.Address) []ir.Address {
	if in == nil {
		return []ir.Address{}
	}
	out := make([]ir.Address, len(in))
	copy(out, in)
	return out
}
