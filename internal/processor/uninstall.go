package processor

import (
	"context"
	"log/slog"

	"github.com/roach88/govkit/internal/ir"
)

// PrepareUninstallation asks the setup of the installed version for the
// permissions that remove the plugin.
func (p *Processor) PrepareUninstallation(ctx context.Context, caller, dao ir.Address, params PrepareUninstallationParams) ([]ir.MultiTargetPermission, error) {
	var perms []ir.MultiTargetPermission
	err := p.submit(ctx, caller, "prepareUninstallation", func(ctx context.Context) error {
		pluginAddr := params.Payload.Plugin
		st := p.state(dao, pluginAddr)
		expected := ir.AppliedSetupID(params.Ref.VersionTag, params.Ref.PluginSetupRepo, ir.HashHelpers(params.Payload.CurrentHelpers))
		if st.currentAppliedSetupID != expected {
			return errInvalidAppliedSetupID(st.currentAppliedSetupID, expected)
		}

		s, err := p.resolveVersion(params.Ref.PluginSetupRepo, params.Ref.VersionTag)
		if err != nil {
			return err
		}
		perms, err = s.PrepareUninstallation(ctx, dao, params.Payload)
		if err != nil {
			return err
		}

		preparedSetupID := ir.PreparedSetupID(
			params.Ref.VersionTag,
			params.Ref.PluginSetupRepo,
			ir.HashPermissions(perms),
			ir.HashHelpers(nil),
			ir.HashData(nil),
			ir.PreparationUninstallation,
		)
		if st.pending(preparedSetupID) {
			return errSetupAlreadyPrepared(preparedSetupID)
		}
		st.preparedSetupIDs[preparedSetupID] = p.ledger.Block()
		st.history = append(st.history, EventPrepareUninstall)

		slog.Debug("uninstallation prepared",
			"dao", dao,
			"plugin", pluginAddr,
			"prepared_setup_id", preparedSetupID,
		)
		p.emit("UninstallationPrepared", ir.Fields{
			"sender":            caller.String(),
			"dao":               dao.String(),
			"prepared_setup_id": preparedSetupID.String(),
			"plugin_setup_repo": params.Ref.PluginSetupRepo.String(),
			"version_tag":       params.Ref.VersionTag.String(),
			"plugin":            pluginAddr.String(),
			"current_helpers":   helperFields(params.Payload.CurrentHelpers),
			"data":              hexBytes(params.Payload.Data),
			"permissions":       permissionFields(perms),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// ApplyUninstallation applies a pending uninstallation and clears the
// installation so the plugin can be installed again.
func (p *Processor) ApplyUninstallation(ctx context.Context, caller, dao ir.Address, params ApplyUninstallationParams) error {
	return p.submit(ctx, caller, "applyUninstallation", func(ctx context.Context) error {
		d, err := p.dao(dao)
		if err != nil {
			return err
		}
		if err := p.canApply(d, dao, caller, ApplyUninstallationPermissionID); err != nil {
			return err
		}

		preparedSetupID := ir.PreparedSetupID(
			params.Ref.VersionTag,
			params.Ref.PluginSetupRepo,
			ir.HashPermissions(params.Permissions),
			ir.HashHelpers(nil),
			ir.HashData(nil),
			ir.PreparationUninstallation,
		)
		st := p.state(dao, params.Plugin)
		if !st.pending(preparedSetupID) {
			return errSetupNotApplicable(preparedSetupID)
		}

		st.currentAppliedSetupID = ir.ZeroHash
		st.blockNumber = p.ledger.Block()
		st.history = append(st.history, EventApplyUninstall)

		if err := p.applyPermissions(d, params.Permissions); err != nil {
			return err
		}

		slog.Info("uninstallation applied",
			"dao", dao,
			"plugin", params.Plugin,
		)
		p.emit("UninstallationApplied", ir.Fields{
			"dao":               dao.String(),
			"plugin":            params.Plugin.String(),
			"prepared_setup_id": preparedSetupID.String(),
		})
		return nil
	})
}
