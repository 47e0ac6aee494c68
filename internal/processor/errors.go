package processor

import (
	"errors"

	"github.com/roach88/govkit/internal/ir"
)

func errSetupApplicationUnauthorized(dao, caller ir.Address, id ir.PermissionID) *ir.Error {
	return ir.NewError(ir.ErrCodeSetupApplicationUnauthorized, "caller may not apply setups on this DAO",
		"dao", dao.String(),
		"caller", caller.String(),
		"permission_id", id.Label(),
	)
}

func errPluginAlreadyInstalled(dao, plugin ir.Address) *ir.Error {
	return ir.NewError(ir.ErrCodePluginAlreadyInstalled, "plugin is already installed",
		"dao", dao.String(),
		"plugin", plugin.String(),
	)
}

func errSetupAlreadyPrepared(id ir.Hash) *ir.Error {
	return ir.NewError(ir.ErrCodeSetupAlreadyPrepared, "setup is already prepared",
		"prepared_setup_id", id.String())
}

func errSetupNotApplicable(id ir.Hash) *ir.Error {
	return ir.NewError(ir.ErrCodeSetupNotApplicable, "no pending preparation matches",
		"prepared_setup_id", id.String())
}

func errInvalidAppliedSetupID(current, expected ir.Hash) *ir.Error {
	return ir.NewError(ir.ErrCodeInvalidAppliedSetupID, "applied setup id does not match",
		"current_applied_setup_id", current.String(),
		"expected_applied_setup_id", expected.String(),
	)
}

func errInvalidUpdateVersion(current, next ir.VersionTag) *ir.Error {
	return ir.NewError(ir.ErrCodeInvalidUpdateVersion, "update must stay in the release and raise the build",
		"current_version_tag", current.String(),
		"new_version_tag", next.String(),
	)
}

func errIPluginNotSupported(plugin ir.Address) *ir.Error {
	return ir.NewError(ir.ErrCodeIPluginNotSupported, "plugin does not support the plugin interface",
		"plugin", plugin.String())
}

func errPluginNonupgradeable(plugin ir.Address) *ir.Error {
	return ir.NewError(ir.ErrCodePluginNonupgradeable, "plugin cannot be upgraded",
		"plugin", plugin.String())
}

func errPluginProxyUpgradeFailed(proxy, impl ir.Address, initData []byte, cause error) *ir.Error {
	return ir.NewError(ir.ErrCodePluginProxyUpgradeFailed, "plugin logic swap failed",
		"proxy", proxy.String(),
		"implementation", impl.String(),
		"init_data", hexBytes(initData),
		"cause", cause.Error(),
	)
}

var (
	errNoAccount      = errors.New("no account at address")
	errNotUpgradeable = errors.New("account is not upgradeable")
)
