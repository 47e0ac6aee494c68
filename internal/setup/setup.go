package setup

import (
	"context"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
)

// IPluginSetupInterfaceID identifies setup accounts.
var IPluginSetupInterfaceID = ir.InterfaceID(
	"prepareInstallation(address,bytes)",
	"prepareUpdate(address,uint16,(address,address[],bytes))",
	"prepareUninstallation(address,(address,address[],bytes))",
	"implementation()",
)

// PreparedSetupData is what a preparation asks the processor to apply.
type PreparedSetupData struct {
	Helpers     []ir.Address               `json:"helpers" cbor:"1,keyasint"`
	Permissions []ir.MultiTargetPermission `json:"permissions" cbor:"2,keyasint"`
}

// SetupPayload describes an installed plugin to an update or uninstall
// preparation.
type SetupPayload struct {
	Plugin         ir.Address   `json:"plugin" cbor:"1,keyasint"`
	CurrentHelpers []ir.Address `json:"current_helpers" cbor:"2,keyasint"`
	Data           []byte       `json:"data" cbor:"3,keyasint"`
}

// PluginSetup prepares the lifecycle of one plugin build.
type PluginSetup interface {
	Address() ir.Address

	// Implementation is the logic address plugin instances of this build
	// point at.
	Implementation() ir.Address

	PrepareInstallation(ctx context.Context, dao ir.Address, data []byte) (ir.Address, PreparedSetupData, error)
	PrepareUpdate(ctx context.Context, dao ir.Address, fromBuild uint16, payload SetupPayload) ([]byte, PreparedSetupData, error)
	PrepareUninstallation(ctx context.Context, dao ir.Address, payload SetupPayload) ([]ir.MultiTargetPermission, error)
}

// Resolve returns the setup deployed at addr. An address without an account,
// or whose account is not a PluginSetup, fails with
// INVALID_PLUGIN_SETUP_INTERFACE.
func Resolve(l *ledger.Ledger, addr ir.Address) (PluginSetup, error) {
	acct, ok := l.Account(addr)
	if ok {
		if s, ok := acct.(PluginSetup); ok {
			return s, nil
		}
	}
	return nil, ir.NewError(ir.ErrCodeInvalidPluginSetupInterface, "address is not a plugin setup",
		"setup", addr.String())
}
