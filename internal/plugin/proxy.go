package plugin

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
)

// Logic is the behavior behind a proxy. A Logic is deployed once at its own
// address and shared by every proxy that points at it.
type Logic interface {
	Address() ir.Address
	// Build orders initializers: Initialize runs only when Build is greater
	// than the proxy's initialized version.
	Build() uint16
	SupportsInterface(id ir.Selector) bool
	Initialize(ctx context.Context, p *Proxy, data []byte) error
	Call(ctx context.Context, p *Proxy, msg ledger.Msg) ([]byte, error)
}

// PermissionChecker answers permission queries. A DAO implements it.
type PermissionChecker interface {
	IsGranted(where, who ir.Address, id ir.PermissionID, data []byte) bool
}

// Proxy is a plugin instance.
type Proxy struct {
	addr   ir.Address
	dao    ir.Address
	ledger *ledger.Ledger
	kind   Type

	impl        Logic
	initialized uint16
	storage     map[string][]byte
}

// NewProxy creates an instance of impl at addr owned by dao and initializes
// it with data. The proxy is not registered on the ledger; use DeployProxy.
func NewProxy(ctx context.Context, l *ledger.Ledger, addr, dao ir.Address, kind Type, impl Logic, data []byte) (*Proxy, error) {
	p := &Proxy{
		addr:    addr,
		dao:     dao,
		ledger:  l,
		kind:    kind,
		impl:    impl,
		storage: make(map[string][]byte),
	}
	if err := p.initialize(ctx, impl, data); err != nil {
		return nil, err
	}
	return p, nil
}

// DeployProxy creates a proxy at the next address of deployer and registers it.
func DeployProxy(ctx context.Context, l *ledger.Ledger, deployer, dao ir.Address, kind Type, impl Logic, data []byte) (*Proxy, error) {
	return ledger.Deploy(l, deployer, func(addr ir.Address) (*Proxy, error) {
		return NewProxy(ctx, l, addr, dao, kind, impl, data)
	})
}

// Address implements ledger.Account.
func (p *Proxy) Address() ir.Address {
	return p.addr
}

// DAO returns the owning DAO.
func (p *Proxy) DAO() ir.Address {
	return p.dao
}

// Ledger returns the ledger the proxy lives on.
func (p *Proxy) Ledger() *ledger.Ledger {
	return p.ledger
}

// PluginType returns how the instance was deployed.
func (p *Proxy) PluginType() Type {
	return p.kind
}

// Implementation returns the current logic address.
func (p *Proxy) Implementation() ir.Address {
	return p.impl.Address()
}

// InitializedVersion returns the build of the last initializer that ran.
func (p *Proxy) InitializedVersion() uint16 {
	return p.initialized
}

// SupportsInterface implements Introspector.
func (p *Proxy) SupportsInterface(id ir.Selector) bool {
	switch id {
	case ERC165InterfaceID, IPluginInterfaceID:
		return true
	case UUPSInterfaceID:
		return p.kind == UUPS
	}
	return p.impl.SupportsInterface(id)
}

// Get reads a storage slot.
func (p *Proxy) Get(key string) []byte {
	return p.storage[key]
}

// Set writes a storage slot.
func (p *Proxy) Set(key string, value []byte) {
	p.storage[key] = value
}

// HasDAOPermission reports whether who holds id on this proxy in the owning
// DAO's permission table.
func (p *Proxy) HasDAOPermission(who ir.Address, id ir.PermissionID, data []byte) bool {
	acct, ok := p.ledger.Account(p.dao)
	if !ok {
		return false
	}
	checker, ok := acct.(PermissionChecker)
	if !ok {
		return false
	}
	return checker.IsGranted(p.addr, who, id, data)
}

// UpgradeTo swaps the logic without running an initializer.
func (p *Proxy) UpgradeTo(ctx context.Context, caller, impl ir.Address) error {
	return p.upgrade(ctx, caller, impl, nil, false)
}

// UpgradeToAndCall swaps the logic and runs its initializer with data.
func (p *Proxy) UpgradeToAndCall(ctx context.Context, caller, impl ir.Address, data []byte) error {
	return p.upgrade(ctx, caller, impl, data, true)
}

func (p *Proxy) upgrade(ctx context.Context, caller, implAddr ir.Address, data []byte, call bool) error {
	if p.kind != UUPS {
		return fmt.Errorf("plugin %s is %s and cannot be upgraded", p.addr, p.kind)
	}
	if !p.HasDAOPermission(caller, UpgradePluginPermissionID, nil) {
		return ir.NewError(ir.ErrCodeDaoUnauthorized, "caller lacks the required permission in the DAO",
			"dao", p.dao.String(),
			"where", p.addr.String(),
			"who", caller.String(),
			"permission_id", UpgradePluginPermissionID.Label(),
		)
	}
	acct, ok := p.ledger.Account(implAddr)
	if !ok {
		return fmt.Errorf("no logic deployed at %s", implAddr)
	}
	impl, ok := acct.(Logic)
	if !ok {
		return fmt.Errorf("account %s is not plugin logic", implAddr)
	}

	p.impl = impl
	if call {
		if err := p.initialize(ctx, impl, data); err != nil {
			return err
		}
	}
	p.ledger.Emit(ir.Event{
		Emitter: p.addr,
		Name:    "Upgraded",
		Fields:  ir.Fields{"implementation": implAddr.String()},
	})
	return nil
}

func (p *Proxy) initialize(ctx context.Context, impl Logic, data []byte) error {
	if impl.Build() <= p.initialized {
		return ir.NewError(ir.ErrCodeAlreadyInitialized, "initializer already ran",
			"plugin", p.addr.String(),
			"version", fmt.Sprint(p.initialized),
		)
	}
	if err := impl.Initialize(ctx, p, data); err != nil {
		return fmt.Errorf("initialize %s: %w", p.addr, err)
	}
	p.initialized = impl.Build()
	p.ledger.Emit(ir.Event{
		Emitter: p.addr,
		Name:    "Initialized",
		Fields:  ir.Fields{"version": int(p.initialized)},
	})
	return nil
}

// Call implements ledger.Callable by forwarding to the logic.
func (p *Proxy) Call(ctx context.Context, msg ledger.Msg) ([]byte, error) {
	return p.impl.Call(ctx, p, msg)
}

// Snapshot implements ledger.Snapshotter.
func (p *Proxy) Snapshot() func() {
	impl := p.impl
	initialized := p.initialized
	storage := maps.Clone(p.storage)
	return func() {
		p.impl = impl
		p.initialized = initialized
		p.storage = storage
	}
}
