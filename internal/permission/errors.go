package permission

import "github.com/roach88/govkit/internal/ir"

// ErrUnauthorized reports that who lacks id on where.
func ErrUnauthorized(where, who ir.Address, id ir.PermissionID) *ir.Error {
	return ir.NewError(ir.ErrCodeUnauthorized, "caller lacks the required permission",
		"where", where.String(),
		"who", who.String(),
		"permission_id", id.Label(),
	)
}

func errAlreadyGranted(where, who ir.Address, id ir.PermissionID) *ir.Error {
	return ir.NewError(ir.ErrCodeAlreadyGranted, "permission is already granted",
		"where", where.String(),
		"who", who.String(),
		"permission_id", id.Label(),
	)
}

func errAlreadyRevoked(where, who ir.Address, id ir.PermissionID) *ir.Error {
	return ir.NewError(ir.ErrCodeAlreadyRevoked, "permission is not granted",
		"where", where.String(),
		"who", who.String(),
		"permission_id", id.Label(),
	)
}

func errFrozen(where ir.Address, id ir.PermissionID) *ir.Error {
	return ir.NewError(ir.ErrCodeFrozen, "permission is frozen",
		"where", where.String(),
		"permission_id", id.Label(),
	)
}

func errAlreadyFrozen(where ir.Address, id ir.PermissionID) *ir.Error {
	return ir.NewError(ir.ErrCodeAlreadyFrozen, "permission is already frozen",
		"where", where.String(),
		"permission_id", id.Label(),
	)
}

func errAnyForWhoAndWhere() *ir.Error {
	return ir.NewError(ir.ErrCodeAnyAddressDisallowedForWhoAndWhere, "wildcard cannot be used for both where and who")
}

func errAnyDisallowed(id ir.PermissionID) *ir.Error {
	return ir.NewError(ir.ErrCodePermissionsForAnyAddressDisallowed, "wildcard is not allowed for this permission",
		"permission_id", id.Label(),
	)
}

func errConditionNotAContract(cond ir.Address) *ir.Error {
	return ir.NewError(ir.ErrCodeConditionNotAContract, "condition does not resolve to an evaluator",
		"condition", cond.String(),
	)
}
