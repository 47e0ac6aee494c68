package dao

import (
	"strconv"

	"github.com/roach88/govkit/internal/ir"
)

// Interface ids every DAO supports.
var (
	ERC165InterfaceID = ir.InterfaceID("supportsInterface(bytes4)")
	IDAOInterfaceID   = ir.InterfaceID(
		"getTrustedForwarder()",
		"hasPermission(address,address,bytes32,bytes)",
		"setMetadata(bytes)",
		"execute(bytes32,(address,uint256,bytes)[],uint256)",
		"deposit(address,uint256,string)",
		"setTrustedForwarder(address)",
		"setSignatureValidator(address)",
		"isValidSignature(bytes32,bytes)",
		"registerStandardCallback(bytes4,bytes4,bytes4)",
	)
)

var baseInterfaces = []ir.Selector{ERC165InterfaceID, IDAOInterfaceID}

// RegisterStandardCallback makes the DAO answer callbackSelector with magic
// and advertise interfaceID. Requires REGISTER_STANDARD_CALLBACK_PERMISSION.
func (d *DAO) RegisterStandardCallback(caller ir.Address, interfaceID, callbackSelector, magic ir.Selector) error {
	if err := d.requirePermission(caller, RegisterStandardCallbackPermissionID, nil); err != nil {
		return err
	}
	d.callbacks[callbackSelector] = magic
	d.supported[interfaceID] = true
	d.emit("StandardCallbackRegistered", ir.Fields{
		"interface_id":      interfaceID.String(),
		"callback_selector": callbackSelector.String(),
		"magic_number":      magic.String(),
	})
	return nil
}

// HandleCallback answers a registered callback from sender.
func (d *DAO) HandleCallback(sender ir.Address, selector ir.Selector) (ir.Selector, error) {
	magic, ok := d.callbacks[selector]
	if !ok {
		return ir.Selector{}, ir.NewError(ir.ErrCodeUnknownCallback, "no callback registered for selector",
			"selector", selector.String())
	}
	d.emit("CallbackReceived", ir.Fields{
		"sender":   sender.String(),
		"selector": selector.String(),
	})
	return magic, nil
}

// SupportsInterface reports whether the DAO advertises id.
func (d *DAO) SupportsInterface(id ir.Selector) bool {
	return d.supported[id]
}

// Deposit moves amount of native balance from sender to the DAO.
func (d *DAO) Deposit(sender ir.Address, amount uint64, reference string) error {
	if err := d.ledger.Transfer(sender, d.addr, amount); err != nil {
		return err
	}
	d.deposited(sender, amount, reference)
	return nil
}

func (d *DAO) deposited(sender ir.Address, amount uint64, reference string) {
	d.emit("Deposited", ir.Fields{
		"sender":    sender.String(),
		"token":     "native",
		"amount":    strconv.FormatUint(amount, 10),
		"reference": reference,
	})
}
