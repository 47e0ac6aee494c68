package processor

import (
	"context"
	"log/slog"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/plugin"
	"github.com/roach88/govkit/internal/setup"
)

// typed is a plugin that reports how it was deployed.
type typed interface {
	plugin.Introspector
	PluginType() plugin.Type
}

// PrepareUpdate prepares moving an installed plugin to a newer build of the
// same release. When both builds share one setup the update only changes
// metadata: the current helpers are kept and no permissions are requested.
func (p *Processor) PrepareUpdate(ctx context.Context, caller, dao ir.Address, params PrepareUpdateParams) ([]byte, setup.PreparedSetupData, error) {
	var (
		initData []byte
		prepared setup.PreparedSetupData
	)
	err := p.submit(ctx, caller, "prepareUpdate", func(ctx context.Context) error {
		cur, next := params.CurrentVersionTag, params.NewVersionTag
		if cur.Release != next.Release || cur.Build >= next.Build {
			return errInvalidUpdateVersion(cur, next)
		}

		pluginAddr := params.Payload.Plugin
		st := p.state(dao, pluginAddr)
		expected := ir.AppliedSetupID(cur, params.PluginSetupRepo, ir.HashHelpers(params.Payload.CurrentHelpers))
		if st.currentAppliedSetupID != expected {
			return errInvalidAppliedSetupID(st.currentAppliedSetupID, expected)
		}

		r, err := p.registry.Repo(params.PluginSetupRepo)
		if err != nil {
			return err
		}
		curVersion, err := r.GetVersion(cur)
		if err != nil {
			return err
		}
		nextVersion, err := r.GetVersion(next)
		if err != nil {
			return err
		}

		if curVersion.PluginSetup == nextVersion.PluginSetup {
			prepared.Helpers = params.Payload.CurrentHelpers
			prepared.Permissions = nil
			initData = nil
		} else {
			if err := p.requireUpgradeable(pluginAddr); err != nil {
				return err
			}
			s, err := setup.Resolve(p.ledger, nextVersion.PluginSetup)
			if err != nil {
				return err
			}
			initData, prepared, err = s.PrepareUpdate(ctx, dao, cur.Build, params.Payload)
			if err != nil {
				return err
			}
		}

		preparedSetupID := ir.PreparedSetupID(
			next,
			params.PluginSetupRepo,
			ir.HashPermissions(prepared.Permissions),
			ir.HashHelpers(prepared.Helpers),
			ir.HashData(initData),
			ir.PreparationUpdate,
		)
		if st.pending(preparedSetupID) {
			return errSetupAlreadyPrepared(preparedSetupID)
		}
		st.preparedSetupIDs[preparedSetupID] = p.ledger.Block()
		st.history = append(st.history, EventPrepareUpdate)

		slog.Debug("update prepared",
			"dao", dao,
			"plugin", pluginAddr,
			"from", cur,
			"to", next,
			"prepared_setup_id", preparedSetupID,
		)
		p.emit("UpdatePrepared", ir.Fields{
			"sender":            caller.String(),
			"dao":               dao.String(),
			"prepared_setup_id": preparedSetupID.String(),
			"plugin_setup_repo": params.PluginSetupRepo.String(),
			"version_tag":       next.String(),
			"plugin":            pluginAddr.String(),
			"init_data":         hexBytes(initData),
			"helpers":           helperFields(prepared.Helpers),
			"permissions":       permissionFields(prepared.Permissions),
		})
		return nil
	})
	if err != nil {
		return nil, setup.PreparedSetupData{}, err
	}
	return initData, prepared, nil
}

// requireUpgradeable checks that the account at addr is a plugin deployed as
// an upgradeable proxy.
func (p *Processor) requireUpgradeable(addr ir.Address) error {
	acct, ok := p.ledger.Account(addr)
	if !ok {
		return errIPluginNotSupported(addr)
	}
	t, ok := acct.(typed)
	if !ok || !t.SupportsInterface(plugin.IPluginInterfaceID) {
		return errIPluginNotSupported(addr)
	}
	if _, ok := acct.(plugin.Upgradeable); !ok || t.PluginType() != plugin.UUPS {
		return errPluginNonupgradeable(addr)
	}
	return nil
}

// ApplyUpdate applies a pending update. When the new build ships different
// logic the plugin proxy is upgraded, calling it with InitData if present.
func (p *Processor) ApplyUpdate(ctx context.Context, caller, dao ir.Address, params ApplyUpdateParams) error {
	return p.submit(ctx, caller, "applyUpdate", func(ctx context.Context) error {
		d, err := p.dao(dao)
		if err != nil {
			return err
		}
		if err := p.canApply(d, dao, caller, ApplyUpdatePermissionID); err != nil {
			return err
		}

		preparedSetupID := ir.PreparedSetupID(
			params.Ref.VersionTag,
			params.Ref.PluginSetupRepo,
			ir.HashPermissions(params.Permissions),
			params.HelpersHash,
			ir.HashData(params.InitData),
			ir.PreparationUpdate,
		)
		st := p.state(dao, params.Plugin)
		if !st.pending(preparedSetupID) {
			return errSetupNotApplicable(preparedSetupID)
		}

		s, err := p.resolveVersion(params.Ref.PluginSetupRepo, params.Ref.VersionTag)
		if err != nil {
			return err
		}
		if err := p.upgradeProxy(ctx, params.Plugin, s.Implementation(), params.InitData); err != nil {
			return err
		}

		appliedSetupID := ir.AppliedSetupID(params.Ref.VersionTag, params.Ref.PluginSetupRepo, params.HelpersHash)
		st.currentAppliedSetupID = appliedSetupID
		st.blockNumber = p.ledger.Block()
		st.history = append(st.history, EventApplyUpdate)

		if err := p.applyPermissions(d, params.Permissions); err != nil {
			return err
		}

		slog.Info("update applied",
			"dao", dao,
			"plugin", params.Plugin,
			"applied_setup_id", appliedSetupID,
		)
		p.emit("UpdateApplied", ir.Fields{
			"dao":               dao.String(),
			"plugin":            params.Plugin.String(),
			"prepared_setup_id": preparedSetupID.String(),
			"applied_setup_id":  appliedSetupID.String(),
		})
		return nil
	})
}

// upgradeProxy swaps the logic of the proxy at addr to impl unless it already
// points there.
func (p *Processor) upgradeProxy(ctx context.Context, addr, impl ir.Address, initData []byte) error {
	acct, ok := p.ledger.Account(addr)
	if !ok {
		return errPluginProxyUpgradeFailed(addr, impl, initData, errNoAccount)
	}
	up, ok := acct.(plugin.Upgradeable)
	if !ok {
		return errPluginProxyUpgradeFailed(addr, impl, initData, errNotUpgradeable)
	}
	if up.Implementation() == impl {
		return nil
	}

	var err error
	if len(initData) > 0 {
		err = up.UpgradeToAndCall(ctx, p.addr, impl, initData)
	} else {
		err = up.UpgradeTo(ctx, p.addr, impl)
	}
	if err != nil {
		return errPluginProxyUpgradeFailed(addr, impl, initData, err)
	}
	return nil
}
