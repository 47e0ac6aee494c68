package dao

import "github.com/roach88/govkit/internal/ir"

// Permission ids checked by the DAO.
var (
	ExecutePermissionID                  = ir.NewPermissionID("EXECUTE_PERMISSION")
	UpgradeDAOPermissionID               = ir.NewPermissionID("UPGRADE_DAO_PERMISSION")
	SetMetadataPermissionID              = ir.NewPermissionID("SET_METADATA_PERMISSION")
	SetSignatureValidatorPermissionID    = ir.NewPermissionID("SET_SIGNATURE_VALIDATOR_PERMISSION")
	RegisterStandardCallbackPermissionID = ir.NewPermissionID("REGISTER_STANDARD_CALLBACK_PERMISSION")
)

// RestrictedForAny reports whether id may never be granted to or on the
// wildcard address, even with a condition.
func RestrictedForAny(id ir.PermissionID) bool {
	switch id {
	case ExecutePermissionID,
		UpgradeDAOPermissionID,
		SetSignatureValidatorPermissionID,
		RegisterStandardCallbackPermissionID:
		return true
	}
	return false
}
