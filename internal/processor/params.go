package processor

import (
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/setup"
)

// PluginSetupRef points at one version of a repo.
type PluginSetupRef struct {
	VersionTag      ir.VersionTag `json:"version_tag" yaml:"version_tag"`
	PluginSetupRepo ir.Address    `json:"plugin_setup_repo" yaml:"plugin_setup_repo"`
}

// PrepareInstallationParams are the inputs of PrepareInstallation.
type PrepareInstallationParams struct {
	Ref  PluginSetupRef
	Data []byte
}

// ApplyInstallationParams are the inputs of ApplyInstallation. They must
// match what PrepareInstallation returned.
type ApplyInstallationParams struct {
	Ref         PluginSetupRef
	Plugin      ir.Address
	Permissions []ir.MultiTargetPermission
	HelpersHash ir.Hash
}

// PrepareUpdateParams are the inputs of PrepareUpdate.
type PrepareUpdateParams struct {
	CurrentVersionTag ir.VersionTag
	NewVersionTag     ir.VersionTag
	PluginSetupRepo   ir.Address
	Payload           setup.SetupPayload
}

// ApplyUpdateParams are the inputs of ApplyUpdate.
type ApplyUpdateParams struct {
	Plugin      ir.Address
	Ref         PluginSetupRef
	InitData    []byte
	Permissions []ir.MultiTargetPermission
	HelpersHash ir.Hash
}

// PrepareUninstallationParams are the inputs of PrepareUninstallation.
type PrepareUninstallationParams struct {
	Ref     PluginSetupRef
	Payload setup.SetupPayload
}

// ApplyUninstallationParams are the inputs of ApplyUninstallation.
type ApplyUninstallationParams struct {
	Plugin      ir.Address
	Ref         PluginSetupRef
	Permissions []ir.MultiTargetPermission
}
