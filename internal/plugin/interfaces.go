package plugin

import (
	"context"

	"github.com/roach88/govkit/internal/ir"
)

// Interface ids advertised by plugins.
var (
	ERC165InterfaceID  = ir.InterfaceID("supportsInterface(bytes4)")
	IPluginInterfaceID = ir.InterfaceID("pluginType()")
	UUPSInterfaceID    = ir.InterfaceID(
		"upgradeTo(address)",
		"upgradeToAndCall(address,bytes)",
		"proxiableUUID()",
	)
)

// UpgradePluginPermissionID authorizes logic swaps on a proxy.
var UpgradePluginPermissionID = ir.NewPermissionID("UPGRADE_PLUGIN_PERMISSION")

// Type is how a plugin instance is deployed.
type Type uint8

const (
	// UUPS instances can swap logic after deployment.
	UUPS Type = iota + 1
	// Cloneable instances are minimal clones with fixed logic.
	Cloneable
	// Constructable instances are deployed directly with fixed logic.
	Constructable
)

func (t Type) String() string {
	switch t {
	case UUPS:
		return "uups"
	case Cloneable:
		return "cloneable"
	case Constructable:
		return "constructable"
	default:
		return "unknown"
	}
}

// Introspector is anything that advertises interface ids.
type Introspector interface {
	SupportsInterface(id ir.Selector) bool
}

// Upgradeable is a plugin instance whose logic can be replaced.
type Upgradeable interface {
	Implementation() ir.Address
	UpgradeTo(ctx context.Context, caller, impl ir.Address) error
	UpgradeToAndCall(ctx context.Context, caller, impl ir.Address, data []byte) error
}
