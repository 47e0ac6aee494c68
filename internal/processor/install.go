package processor

import (
	"context"
	"log/slog"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/setup"
)

// PrepareInstallation asks the setup published under params.Ref for a new
// plugin on dao and records the preparation.
func (p *Processor) PrepareInstallation(ctx context.Context, caller, dao ir.Address, params PrepareInstallationParams) (ir.Address, setup.PreparedSetupData, error) {
	var (
		plugin   ir.Address
		prepared setup.PreparedSetupData
	)
	err := p.submit(ctx, caller, "prepareInstallation", func(ctx context.Context) error {
		s, err := p.resolveVersion(params.Ref.PluginSetupRepo, params.Ref.VersionTag)
		if err != nil {
			return err
		}
		plugin, prepared, err = s.PrepareInstallation(ctx, dao, params.Data)
		if err != nil {
			return err
		}

		preparedSetupID := ir.PreparedSetupID(
			params.Ref.VersionTag,
			params.Ref.PluginSetupRepo,
			ir.HashPermissions(prepared.Permissions),
			ir.HashHelpers(prepared.Helpers),
			ir.HashData(nil),
			ir.PreparationInstallation,
		)

		st := p.state(dao, plugin)
		if !st.currentAppliedSetupID.IsZero() {
			return errPluginAlreadyInstalled(dao, plugin)
		}
		if st.pending(preparedSetupID) {
			return errSetupAlreadyPrepared(preparedSetupID)
		}
		st.preparedSetupIDs[preparedSetupID] = p.ledger.Block()
		st.history = append(st.history, EventPrepareInstall)

		slog.Debug("installation prepared",
			"dao", dao,
			"plugin", plugin,
			"prepared_setup_id", preparedSetupID,
		)
		p.emit("InstallationPrepared", ir.Fields{
			"sender":            caller.String(),
			"dao":               dao.String(),
			"prepared_setup_id": preparedSetupID.String(),
			"plugin_setup_repo": params.Ref.PluginSetupRepo.String(),
			"version_tag":       params.Ref.VersionTag.String(),
			"data":              hexBytes(params.Data),
			"plugin":            plugin.String(),
			"helpers":           helperFields(prepared.Helpers),
			"permissions":       permissionFields(prepared.Permissions),
		})
		return nil
	})
	if err != nil {
		return ir.Zero, setup.PreparedSetupData{}, err
	}
	return plugin, prepared, nil
}

// ApplyInstallation applies a pending installation. The caller must be the
// DAO or hold APPLY_INSTALLATION_PERMISSION on the processor, and the
// processor must hold ROOT on the DAO.
func (p *Processor) ApplyInstallation(ctx context.Context, caller, dao ir.Address, params ApplyInstallationParams) error {
	return p.submit(ctx, caller, "applyInstallation", func(ctx context.Context) error {
		d, err := p.dao(dao)
		if err != nil {
			return err
		}
		if err := p.canApply(d, dao, caller, ApplyInstallationPermissionID); err != nil {
			return err
		}

		preparedSetupID := ir.PreparedSetupID(
			params.Ref.VersionTag,
			params.Ref.PluginSetupRepo,
			ir.HashPermissions(params.Permissions),
			params.HelpersHash,
			ir.HashData(nil),
			ir.PreparationInstallation,
		)

		st := p.state(dao, params.Plugin)
		if !st.currentAppliedSetupID.IsZero() {
			return errPluginAlreadyInstalled(dao, params.Plugin)
		}
		if !st.pending(preparedSetupID) {
			return errSetupNotApplicable(preparedSetupID)
		}

		appliedSetupID := ir.AppliedSetupID(params.Ref.VersionTag, params.Ref.PluginSetupRepo, params.HelpersHash)
		st.currentAppliedSetupID = appliedSetupID
		st.blockNumber = p.ledger.Block()
		st.history = append(st.history, EventApplyInstall)

		if err := p.applyPermissions(d, params.Permissions); err != nil {
			return err
		}

		slog.Info("installation applied",
			"dao", dao,
			"plugin", params.Plugin,
			"applied_setup_id", appliedSetupID,
		)
		p.emit("InstallationApplied", ir.Fields{
			"dao":               dao.String(),
			"plugin":            params.Plugin.String(),
			"prepared_setup_id": preparedSetupID.String(),
			"applied_setup_id":  appliedSetupID.String(),
		})
		return nil
	})
}
