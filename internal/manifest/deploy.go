package manifest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/govkit/internal/codec"
	"github.com/roach88/govkit/internal/condition"
	"github.com/roach88/govkit/internal/dao"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/permission"
	"github.com/roach88/govkit/internal/plugin"
	"github.com/roach88/govkit/internal/plugin/admin"
	"github.com/roach88/govkit/internal/processor"
	"github.com/roach88/govkit/internal/repo"
	"github.com/roach88/govkit/internal/setup"
)

var (
	fixedInstallPermissions = []ir.MultiTargetPermission{
		{Operation: ir.OpGrant, Where: setup.DAOPlaceholder, Who: setup.PluginPlaceholder, PermissionID: dao.ExecutePermissionID},
	}
	fixedUninstallPermissions = []ir.MultiTargetPermission{
		{Operation: ir.OpRevoke, Where: setup.DAOPlaceholder, Who: setup.PluginPlaceholder, PermissionID: dao.ExecutePermissionID},
	}
)

// Deploy stands up the registry, the processor and everything d declares on
// l. Every step is its own transaction; the first failing step aborts the
// deployment and its error names the step.
func Deploy(ctx context.Context, l *ledger.Ledger, d *Deployment) (*Env, error) {
	e := newEnv(l)

	if _, err := l.Submit(ctx, e.Deployer, "deploy infrastructure", func(ctx context.Context) error {
		reg, err := repo.DeployRegistry(l, e.Deployer, e.Deployer)
		if err != nil {
			return err
		}
		proc, err := processor.Deploy(l, e.Deployer, reg)
		if err != nil {
			return err
		}
		e.Registry, e.Processor = reg, proc
		if err := e.Bind(NameRegistry, reg.Address()); err != nil {
			return err
		}
		return e.Bind(NameProcessor, proc.Address())
	}); err != nil {
		return nil, fmt.Errorf("deploy infrastructure: %w", err)
	}

	for _, spec := range d.DAOs {
		if err := e.deployDAO(ctx, spec); err != nil {
			return nil, fmt.Errorf("dao %s: %w", spec.Name, err)
		}
	}
	for _, spec := range d.Repos {
		if err := e.deployRepo(ctx, spec); err != nil {
			return nil, fmt.Errorf("repo %s: %w", spec.Subdomain, err)
		}
	}
	for _, spec := range d.Funds {
		if err := e.fund(ctx, spec); err != nil {
			return nil, fmt.Errorf("fund %s: %w", spec.Account, err)
		}
	}
	for _, spec := range d.Installs {
		if err := e.install(ctx, spec); err != nil {
			return nil, fmt.Errorf("install %s: %w", spec.Name, err)
		}
	}
	for _, spec := range d.Conditions {
		if err := e.DeployCondition(ctx, spec); err != nil {
			return nil, fmt.Errorf("condition %s: %w", spec.Name, err)
		}
	}
	for i, spec := range d.Grants {
		if err := e.grant(ctx, spec); err != nil {
			return nil, fmt.Errorf("grant %d: %w", i, err)
		}
	}

	slog.Info("deployment complete",
		"daos", len(d.DAOs),
		"repos", len(d.Repos),
		"installs", len(d.Installs),
		"conditions", len(d.Conditions),
		"grants", len(d.Grants),
		"block", l.Block(),
	)
	return e, nil
}

// deployDAO deploys the DAO and grants the processor ROOT on it so that
// setups can apply their permissions.
func (e *Env) deployDAO(ctx context.Context, spec DAOSpec) error {
	owner, err := e.Resolve(spec.Owner)
	if err != nil {
		return err
	}
	_, err = e.Ledger.Submit(ctx, owner, "deploy dao "+spec.Name, func(ctx context.Context) error {
		var opts []dao.Option
		if spec.Metadata != "" {
			opts = append(opts, dao.WithMetadata([]byte(spec.Metadata)))
		}
		if spec.URI != "" {
			opts = append(opts, dao.WithDaoURI(spec.URI))
		}
		d, err := dao.Deploy(e.Ledger, e.Deployer, owner, opts...)
		if err != nil {
			return err
		}
		if err := d.Grant(owner, d.Address(), e.Processor.Address(), permission.RootPermissionID); err != nil {
			return err
		}
		if err := e.Bind(spec.Name, d.Address()); err != nil {
			return err
		}
		e.daos[spec.Name] = d
		return nil
	})
	return err
}

func (e *Env) deployRepo(ctx context.Context, spec RepoSpec) error {
	maintainer, err := e.Resolve(spec.Maintainer)
	if err != nil {
		return err
	}
	_, err = e.Ledger.Submit(ctx, maintainer, "create repo "+spec.Subdomain, func(ctx context.Context) error {
		r, err := e.Registry.CreatePluginRepo(spec.Subdomain, maintainer)
		if err != nil {
			return err
		}
		if err := e.Bind(spec.Subdomain, r.Address()); err != nil {
			return err
		}
		e.repos[spec.Subdomain] = r
		for i, b := range spec.Builds {
			if _, err := e.CreateVersion(ctx, maintainer, spec.Subdomain, b); err != nil {
				return fmt.Errorf("build %d: %w", i+1, err)
			}
		}
		return nil
	})
	return err
}

// CreateVersion deploys the setup b describes and publishes it as the next
// build of b.Release in the repo registered under subdomain. sender must
// hold MAINTAINER_PERMISSION on the repo.
func (e *Env) CreateVersion(ctx context.Context, sender ir.Address, subdomain string, b BuildSpec) (ir.VersionTag, error) {
	r, err := e.Repo(subdomain)
	if err != nil {
		return ir.VersionTag{}, err
	}
	var tag ir.VersionTag
	_, err = e.Ledger.Submit(ctx, sender, "create version "+subdomain, func(ctx context.Context) error {
		setupAddr, err := e.deploySetup(sender, b.Setup, e.setups[subdomain])
		if err != nil {
			return err
		}
		tag, err = r.CreateVersion(sender, b.Release, setupAddr, []byte(b.Metadata), []byte(b.ReleaseMetadata))
		if err != nil {
			return err
		}
		e.setups[subdomain] = append(e.setups[subdomain], setupAddr)
		slog.Debug("version published",
			"repo", subdomain,
			"version", tag.String(),
			"setup", setupAddr.String(),
		)
		return nil
	})
	return tag, err
}

// deploySetup deploys the setup behind one build, or returns an earlier
// build's setup when the build entry reuses it.
func (e *Env) deploySetup(maintainer ir.Address, spec SetupSpec, published []ir.Address) (ir.Address, error) {
	if spec.Reuse != 0 {
		if spec.Reuse < 1 || spec.Reuse > len(published) {
			return ir.Zero, fmt.Errorf("reuse %d: no such build", spec.Reuse)
		}
		return published[spec.Reuse-1], nil
	}
	switch spec.Type {
	case SetupAdmin:
		s, err := admin.DeploySetup(e.Ledger, maintainer)
		if err != nil {
			return ir.Zero, err
		}
		return s.Address(), nil
	case SetupFixed:
		kind, err := ParseKind(spec.Kind)
		if err != nil {
			return ir.Zero, err
		}
		build := spec.LogicBuild
		if build == 0 {
			build = 1
		}
		logic, err := plugin.DeploySimple(e.Ledger, maintainer, spec.Logic, build)
		if err != nil {
			return ir.Zero, err
		}
		helpers := make([]ir.Address, 0, len(spec.Helpers))
		for _, name := range spec.Helpers {
			addr, err := e.Resolve(name)
			if err != nil {
				return ir.Zero, err
			}
			helpers = append(helpers, addr)
		}
		s, err := setup.DeployFixed(e.Ledger, maintainer, setup.FixedConfig{
			Logic:                logic,
			Kind:                 kind,
			Helpers:              helpers,
			InstallPermissions:   fixedInstallPermissions,
			UninstallPermissions: fixedUninstallPermissions,
		})
		if err != nil {
			return ir.Zero, err
		}
		return s.Address(), nil
	default:
		return ir.Zero, fmt.Errorf("unknown setup type %q", spec.Type)
	}
}

func (e *Env) fund(ctx context.Context, spec FundSpec) error {
	addr, err := e.Resolve(spec.Account)
	if err != nil {
		return err
	}
	_, err = e.Ledger.Submit(ctx, e.Deployer, "fund "+spec.Account, func(ctx context.Context) error {
		e.Ledger.Mint(addr, spec.Amount)
		return nil
	})
	return err
}

// InstallData encodes the installation data for a repo version. Admin
// setups take the admin address; other setups take the raw data.
func (e *Env) InstallData(ref processor.PluginSetupRef, spec InstallSpec) ([]byte, error) {
	r, err := e.Registry.Repo(ref.PluginSetupRepo)
	if err != nil {
		return nil, err
	}
	v, err := r.GetVersion(ref.VersionTag)
	if err != nil {
		return nil, err
	}
	acct, ok := e.Ledger.Account(v.PluginSetup)
	if !ok {
		return nil, fmt.Errorf("setup %s is not deployed", v.PluginSetup)
	}
	if _, isAdmin := acct.(*admin.Setup); isAdmin {
		adminAddr, err := e.Resolve(spec.Admin)
		if err != nil {
			return nil, fmt.Errorf("admin: %w", err)
		}
		return codec.Marshal(admin.InitArgs{Admin: adminAddr})
	}
	if spec.Data == "" {
		return nil, nil
	}
	return []byte(spec.Data), nil
}

// Install prepares and applies an installation in one transaction sent by
// the DAO, and records it under spec.Name.
func (e *Env) Install(ctx context.Context, spec InstallSpec) (Installation, error) {
	d, err := e.DAO(spec.DAO)
	if err != nil {
		return Installation{}, err
	}
	r, err := e.Repo(spec.Repo)
	if err != nil {
		return Installation{}, err
	}
	tag, err := ir.ParseVersionTag(spec.Version)
	if err != nil {
		return Installation{}, err
	}
	ref := processor.PluginSetupRef{VersionTag: tag, PluginSetupRepo: r.Address()}
	data, err := e.InstallData(ref, spec)
	if err != nil {
		return Installation{}, err
	}

	daoAddr := d.Address()
	var inst Installation
	_, err = e.Ledger.Submit(ctx, daoAddr, "install "+spec.Name, func(ctx context.Context) error {
		pluginAddr, prepared, err := e.Processor.PrepareInstallation(ctx, daoAddr, daoAddr, processor.PrepareInstallationParams{Ref: ref, Data: data})
		if err != nil {
			return err
		}
		if err := e.Processor.ApplyInstallation(ctx, daoAddr, daoAddr, processor.ApplyInstallationParams{
			Ref:         ref,
			Plugin:      pluginAddr,
			Permissions: prepared.Permissions,
			HelpersHash: ir.HashHelpers(prepared.Helpers),
		}); err != nil {
			return err
		}
		inst = Installation{DAO: daoAddr, Plugin: pluginAddr, Ref: ref, Helpers: prepared.Helpers}
		return nil
	})
	if err != nil {
		return Installation{}, err
	}
	if err := e.SetInstallation(spec.Name, inst); err != nil {
		return Installation{}, err
	}
	return inst, nil
}

func (e *Env) install(ctx context.Context, spec InstallSpec) error {
	_, err := e.Install(ctx, spec)
	return err
}

func (e *Env) grant(ctx context.Context, spec GrantSpec) error {
	d, err := e.DAO(spec.DAO)
	if err != nil {
		return err
	}
	where, err := e.Resolve(spec.Where)
	if err != nil {
		return err
	}
	who, err := e.Resolve(spec.Who)
	if err != nil {
		return err
	}
	id, err := ir.ParsePermissionID(spec.Permission)
	if err != nil {
		return err
	}
	var cond ir.Address
	if spec.Condition != "" {
		if cond, err = e.Resolve(spec.Condition); err != nil {
			return err
		}
	}
	owner := e.ownerOf(d)
	_, err = e.Ledger.Submit(ctx, owner, "grant "+id.Label(), func(ctx context.Context) error {
		if spec.Condition != "" {
			return d.GrantWithCondition(owner, where, who, id, cond)
		}
		return d.Grant(owner, where, who, id)
	})
	return err
}

// DeployCondition builds the evaluator the condition entry describes, deploys it and binds
// its address to spec.Name.
func (e *Env) DeployCondition(ctx context.Context, spec ConditionSpec) error {
	declared := make(map[string]bool, len(e.conditions))
	for name := range e.conditions {
		declared[name] = true
	}
	if err := ValidateCondition(spec, declared); err != nil {
		return err
	}
	cond, err := e.buildCondition(spec)
	if err != nil {
		return err
	}
	_, err = e.Ledger.Submit(ctx, e.Deployer, "deploy condition "+spec.Name, func(ctx context.Context) error {
		acct, err := condition.Deploy(e.Ledger, e.Deployer, cond)
		if err != nil {
			return err
		}
		if err := e.Bind(spec.Name, acct.Address()); err != nil {
			return err
		}
		e.conditions[spec.Name] = acct
		return nil
	})
	if err != nil {
		if l, ok := cond.(*condition.Lua); ok {
			l.Close()
		}
	}
	return err
}

func (e *Env) buildCondition(spec ConditionSpec) (permission.Condition, error) {
	switch {
	case spec.Lua != "":
		return condition.NewLua(spec.Lua)
	case len(spec.Callers) > 0:
		callers := make([]ir.Address, 0, len(spec.Callers))
		for _, name := range spec.Callers {
			addr, err := e.Resolve(name)
			if err != nil {
				return nil, err
			}
			callers = append(callers, addr)
		}
		return condition.Callers(callers...), nil
	case len(spec.AllOf) > 0:
		return condition.AllOf(e.conditionsNamed(spec.AllOf)...), nil
	case len(spec.AnyOf) > 0:
		return condition.AnyOf(e.conditionsNamed(spec.AnyOf)...), nil
	default:
		return condition.Not(e.conditions[spec.Not].Condition), nil
	}
}

func (e *Env) conditionsNamed(names []string) []permission.Condition {
	out := make([]permission.Condition, 0, len(names))
	for _, name := range names {
		out = append(out, e.conditions[name].Condition)
	}
	return out
}

// ownerOf returns an account holding ROOT on d, preferring named external
// accounts over the processor.
func (e *Env) ownerOf(d *dao.DAO) ir.Address {
	var fallback ir.Address
	for _, entry := range d.Entries() {
		if entry.Where != d.Address() || entry.PermissionID != permission.RootPermissionID {
			continue
		}
		if entry.Who == e.Processor.Address() {
			fallback = entry.Who
			continue
		}
		return entry.Who
	}
	return fallback
}
