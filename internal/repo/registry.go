package repo

import (
	"maps"
	"slices"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/permission"
)

// RegisterPluginRepoPermissionID gates direct registration.
var RegisterPluginRepoPermissionID = ir.NewPermissionID("REGISTER_PLUGIN_REPO_PERMISSION")

// Registry names plugin repos by subdomain. It doubles as the repo factory:
// anyone may create and register a new repo through CreatePluginRepo.
type Registry struct {
	*permission.Manager

	addr   ir.Address
	ledger *ledger.Ledger

	bySubdomain map[string]ir.Address
	subdomains  map[ir.Address]string
}

// NewRegistry creates a registry at addr and grants ROOT on it to
// initialOwner.
func NewRegistry(l *ledger.Ledger, addr, initialOwner ir.Address) *Registry {
	return &Registry{
		Manager: permission.New(addr, initialOwner,
			permission.WithEventSink(l),
			permission.WithConditionResolver(l),
		),
		addr:        addr,
		ledger:      l,
		bySubdomain: make(map[string]ir.Address),
		subdomains:  make(map[ir.Address]string),
	}
}

// DeployRegistry creates a registry at the next address of deployer and
// registers it.
func DeployRegistry(l *ledger.Ledger, deployer, initialOwner ir.Address) (*Registry, error) {
	return ledger.Deploy(l, deployer, func(addr ir.Address) (*Registry, error) {
		return NewRegistry(l, addr, initialOwner), nil
	})
}

// Address implements ledger.Account.
func (g *Registry) Address() ir.Address {
	return g.addr
}

// RegisterPluginRepo names an existing repo. Requires
// REGISTER_PLUGIN_REPO_PERMISSION on the registry.
func (g *Registry) RegisterPluginRepo(caller ir.Address, subdomain string, repoAddr ir.Address) error {
	if !g.IsGranted(g.addr, caller, RegisterPluginRepoPermissionID, nil) {
		return permission.ErrUnauthorized(g.addr, caller, RegisterPluginRepoPermissionID)
	}
	return g.register(subdomain, repoAddr)
}

func (g *Registry) register(subdomain string, repoAddr ir.Address) error {
	if !ValidSubdomain(subdomain) {
		return ir.NewError(ir.ErrCodeInvalidPluginSubdomain, "subdomain must be non-empty and use only a-z, 0-9 and '-'",
			"subdomain", subdomain)
	}
	if existing, ok := g.bySubdomain[subdomain]; ok {
		return ir.NewError(ir.ErrCodeSubdomainAlreadyRegistered, "subdomain is taken",
			"subdomain", subdomain,
			"repo", existing.String(),
		)
	}
	if name, ok := g.subdomains[repoAddr]; ok {
		return ir.NewError(ir.ErrCodeRepoAlreadyRegistered, "repo is already registered",
			"repo", repoAddr.String(),
			"subdomain", name,
		)
	}
	g.bySubdomain[subdomain] = repoAddr
	g.subdomains[repoAddr] = subdomain
	g.ledger.Emit(ir.Event{
		Emitter: g.addr,
		Name:    "PluginRepoRegistered",
		Fields: ir.Fields{
			"subdomain":   subdomain,
			"plugin_repo": repoAddr.String(),
		},
	})
	return nil
}

// CreatePluginRepo deploys a repo owned by maintainer and registers it under
// subdomain.
func (g *Registry) CreatePluginRepo(subdomain string, maintainer ir.Address) (*Repo, error) {
	r, err := Deploy(g.ledger, g.addr, maintainer)
	if err != nil {
		return nil, err
	}
	if err := g.register(subdomain, r.Address()); err != nil {
		return nil, err
	}
	return r, nil
}

// CreatePluginRepoWithFirstVersion deploys a repo, publishes setupAddr as
// v1.1, hands ROOT, MAINTAINER and UPGRADE_REPO to maintainer and registers
// the repo under subdomain. The registry keeps no permission on the repo.
func (g *Registry) CreatePluginRepoWithFirstVersion(subdomain string, setupAddr, maintainer ir.Address, releaseMetadata, buildMetadata []byte) (*Repo, error) {
	r, err := Deploy(g.ledger, g.addr, g.addr)
	if err != nil {
		return nil, err
	}
	if _, err := r.CreateVersion(g.addr, 1, setupAddr, buildMetadata, releaseMetadata); err != nil {
		return nil, err
	}

	where := r.Address()
	items := []ir.MultiTargetPermission{
		{Operation: ir.OpGrant, Where: where, Who: maintainer, PermissionID: MaintainerPermissionID},
		{Operation: ir.OpGrant, Where: where, Who: maintainer, PermissionID: UpgradeRepoPermissionID},
		{Operation: ir.OpGrant, Where: where, Who: maintainer, PermissionID: permission.RootPermissionID},
		{Operation: ir.OpRevoke, Where: where, Who: g.addr, PermissionID: MaintainerPermissionID},
		{Operation: ir.OpRevoke, Where: where, Who: g.addr, PermissionID: UpgradeRepoPermissionID},
		{Operation: ir.OpRevoke, Where: where, Who: g.addr, PermissionID: permission.RootPermissionID},
	}
	if err := r.ApplyMultiTargetPermissions(g.addr, items); err != nil {
		return nil, err
	}
	if err := g.register(subdomain, r.Address()); err != nil {
		return nil, err
	}
	return r, nil
}

// Entries reports whether repoAddr is registered.
func (g *Registry) Entries(repoAddr ir.Address) bool {
	_, ok := g.subdomains[repoAddr]
	return ok
}

// Lookup returns the repo registered under subdomain.
func (g *Registry) Lookup(subdomain string) (ir.Address, bool) {
	a, ok := g.bySubdomain[subdomain]
	return a, ok
}

// Subdomain returns the name of a registered repo.
func (g *Registry) Subdomain(repoAddr ir.Address) (string, bool) {
	s, ok := g.subdomains[repoAddr]
	return s, ok
}

// Subdomains lists every registered name in sorted order.
func (g *Registry) Subdomains() []string {
	return slices.Sorted(maps.Keys(g.bySubdomain))
}

// Repo resolves a registered repo. Unregistered addresses fail with
// REPO_NONEXISTENT.
func (g *Registry) Repo(repoAddr ir.Address) (*Repo, error) {
	if !g.Entries(repoAddr) {
		return nil, ir.NewError(ir.ErrCodeRepoNonexistent, "repo is not registered",
			"repo", repoAddr.String())
	}
	acct, ok := g.ledger.Account(repoAddr)
	if !ok {
		return nil, ir.NewError(ir.ErrCodeRepoNonexistent, "repo account is missing",
			"repo", repoAddr.String())
	}
	r, ok := acct.(*Repo)
	if !ok {
		return nil, ir.NewError(ir.ErrCodeRepoNonexistent, "account is not a repo",
			"repo", repoAddr.String())
	}
	return r, nil
}

// Snapshot implements ledger.Snapshotter.
func (g *Registry) Snapshot() func() {
	restorePerms := g.Manager.Snapshot()
	bySubdomain := maps.Clone(g.bySubdomain)
	subdomains := maps.Clone(g.subdomains)
	return func() {
		restorePerms()
		g.bySubdomain = bySubdomain
		g.subdomains = subdomains
	}
}

// ValidSubdomain reports whether s is a non-empty run of a-z, 0-9 and '-'.
func ValidSubdomain(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}
