package dao

import (
	"context"
	"strconv"

	"github.com/roach88/govkit/internal/codec"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/permission"
)

// Call methods accepted by a DAO.
const (
	MethodExecute                      = "execute"
	MethodGrant                        = "grant"
	MethodGrantWithCondition           = "grantWithCondition"
	MethodRevoke                       = "revoke"
	MethodFreeze                       = "freeze"
	MethodApplySingleTargetPermissions = "applySingleTargetPermissions"
	MethodApplyMultiTargetPermissions  = "applyMultiTargetPermissions"
	MethodSetMetadata                  = "setMetadata"
	MethodSetDaoURI                    = "setDaoURI"
	MethodDeposit                      = "deposit"
	MethodRegisterStandardCallback     = "registerStandardCallback"
	MethodSetSignatureValidator        = "setSignatureValidator"
)

// ExecuteArgs are the arguments of MethodExecute.
type ExecuteArgs struct {
	CallID          ir.Hash     `cbor:"1,keyasint"`
	Actions         []ir.Action `cbor:"2,keyasint"`
	AllowFailureMap ir.Bitmap   `cbor:"3,keyasint"`
}

// ExecuteResult is the encoded return of MethodExecute.
type ExecuteResult struct {
	Results    [][]byte  `cbor:"1,keyasint"`
	FailureMap ir.Bitmap `cbor:"2,keyasint"`
}

// PermissionArgs are the arguments of the single-permission methods.
type PermissionArgs struct {
	Where        ir.Address      `cbor:"1,keyasint"`
	Who          ir.Address      `cbor:"2,keyasint"`
	PermissionID ir.PermissionID `cbor:"3,keyasint"`
	Condition    ir.Address      `cbor:"4,keyasint"`
}

// SingleTargetArgs are the arguments of MethodApplySingleTargetPermissions.
type SingleTargetArgs struct {
	Where ir.Address        `cbor:"1,keyasint"`
	Items []permission.Item `cbor:"2,keyasint"`
}

// MetadataArgs are the arguments of MethodSetMetadata and MethodSetDaoURI.
type MetadataArgs struct {
	Metadata []byte `cbor:"1,keyasint,omitempty"`
	URI      string `cbor:"2,keyasint,omitempty"`
}

// DepositArgs are the arguments of MethodDeposit. The amount travels as the
// message value.
type DepositArgs struct {
	Reference string `cbor:"1,keyasint"`
}

// CallbackArgs are the arguments of MethodRegisterStandardCallback.
type CallbackArgs struct {
	InterfaceID      ir.Selector `cbor:"1,keyasint"`
	CallbackSelector ir.Selector `cbor:"2,keyasint"`
	MagicNumber      ir.Selector `cbor:"3,keyasint"`
}

// ValidatorArgs are the arguments of MethodSetSignatureValidator.
type ValidatorArgs struct {
	Validator ir.Address `cbor:"1,keyasint"`
}

// Call implements ledger.Callable. The message sender is the caller of the
// dispatched method. A message without data is a native deposit.
func (d *DAO) Call(ctx context.Context, msg ledger.Msg) ([]byte, error) {
	if len(msg.Data) == 0 {
		d.emit("NativeTokenDeposited", ir.Fields{
			"sender": msg.From.String(),
			"amount": strconv.FormatUint(msg.Value, 10),
		})
		return nil, nil
	}

	c, err := codec.Decode(msg.Data)
	if err != nil {
		return nil, ir.NewError(ir.ErrCodeUnknownMethod, err.Error(), "dao", d.addr.String())
	}

	switch c.Method {
	case MethodExecute:
		var args ExecuteArgs
		if err := c.Bind(&args); err != nil {
			return nil, err
		}
		results, failureMap, err := d.Execute(ctx, msg.From, args.CallID, args.Actions, args.AllowFailureMap)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(ExecuteResult{Results: results, FailureMap: failureMap})

	case MethodGrant, MethodGrantWithCondition, MethodRevoke, MethodFreeze:
		var args PermissionArgs
		if err := c.Bind(&args); err != nil {
			return nil, err
		}
		return nil, d.applyPermission(msg.From, c.Method, args)

	case MethodApplySingleTargetPermissions:
		var args SingleTargetArgs
		if err := c.Bind(&args); err != nil {
			return nil, err
		}
		return nil, d.Bulk(msg.From, args.Where, args.Items)

	case MethodApplyMultiTargetPermissions:
		var items []ir.MultiTargetPermission
		if err := c.Bind(&items); err != nil {
			return nil, err
		}
		return nil, d.ApplyMultiTargetPermissions(msg.From, items)

	case MethodSetMetadata:
		var args MetadataArgs
		if err := c.Bind(&args); err != nil {
			return nil, err
		}
		return nil, d.SetMetadata(msg.From, args.Metadata)

	case MethodSetDaoURI:
		var args MetadataArgs
		if err := c.Bind(&args); err != nil {
			return nil, err
		}
		return nil, d.SetDaoURI(msg.From, args.URI)

	case MethodDeposit:
		var args DepositArgs
		if err := c.Bind(&args); err != nil {
			return nil, err
		}
		d.deposited(msg.From, msg.Value, args.Reference)
		return nil, nil

	case MethodRegisterStandardCallback:
		var args CallbackArgs
		if err := c.Bind(&args); err != nil {
			return nil, err
		}
		return nil, d.RegisterStandardCallback(msg.From, args.InterfaceID, args.CallbackSelector, args.MagicNumber)

	case MethodSetSignatureValidator:
		var args ValidatorArgs
		if err := c.Bind(&args); err != nil {
			return nil, err
		}
		return nil, d.SetSignatureValidator(msg.From, args.Validator)

	default:
		return nil, ir.NewError(ir.ErrCodeUnknownMethod, "dao does not implement method",
			"method", c.Method)
	}
}

func (d *DAO) applyPermission(caller ir.Address, method string, args PermissionArgs) error {
	switch method {
	case MethodGrant:
		return d.Grant(caller, args.Where, args.Who, args.PermissionID)
	case MethodGrantWithCondition:
		return d.GrantWithCondition(caller, args.Where, args.Who, args.PermissionID, args.Condition)
	case MethodRevoke:
		return d.Revoke(caller, args.Where, args.Who, args.PermissionID)
	default:
		return d.Freeze(caller, args.Where, args.PermissionID)
	}
}

// ExecuteAction builds an action that makes target's Execute run with the
// given batch. Used to drive a DAO through its own governance.
func ExecuteAction(target ir.Address, args ExecuteArgs) (ir.Action, error) {
	data, err := codec.Encode(MethodExecute, args)
	if err != nil {
		return ir.Action{}, err
	}
	return ir.Action{To: target, Data: data}, nil
}

// PermissionAction builds an action calling a permission method on target.
func PermissionAction(target ir.Address, method string, args PermissionArgs) (ir.Action, error) {
	data, err := codec.Encode(method, args)
	if err != nil {
		return ir.Action{}, err
	}
	return ir.Action{To: target, Data: data}, nil
}
