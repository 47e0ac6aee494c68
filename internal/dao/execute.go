package dao

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strconv"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
)

// Execute performs actions in order on behalf of the DAO. Requires
// EXECUTE_PERMISSION.
//
// A failing action whose bit is set in allowFailureMap is recorded in the
// returned failure map and its effects are reverted; any other failing action
// aborts the whole call with ACTION_FAILED and no action takes effect. The
// call runs as one ledger transaction, joining the caller's if ctx carries
// one. The DAO cannot be re-entered through Execute while a call is running.
func (d *DAO) Execute(ctx context.Context, caller ir.Address, callID ir.Hash, actions []ir.Action, allowFailureMap ir.Bitmap) ([][]byte, ir.Bitmap, error) {
	var (
		results    [][]byte
		failureMap ir.Bitmap
	)
	_, err := d.ledger.Submit(ctx, caller, "execute", func(ctx context.Context) error {
		var err error
		results, failureMap, err = d.execute(ctx, caller, callID, actions, allowFailureMap)
		return err
	})
	if err != nil {
		return nil, ir.Bitmap{}, err
	}
	return results, failureMap, nil
}

func (d *DAO) execute(ctx context.Context, caller ir.Address, callID ir.Hash, actions []ir.Action, allowFailureMap ir.Bitmap) ([][]byte, ir.Bitmap, error) {
	if d.executing {
		return nil, ir.Bitmap{}, ir.NewError(ir.ErrCodeReentrantCall, "execute re-entered",
			"dao", d.addr.String())
	}
	if err := d.requirePermission(caller, ExecutePermissionID, nil); err != nil {
		return nil, ir.Bitmap{}, err
	}
	if len(actions) > ir.MaxActions {
		return nil, ir.Bitmap{}, ir.NewError(ir.ErrCodeTooManyActions, "too many actions",
			"actions", strconv.Itoa(len(actions)),
			"limit", strconv.Itoa(ir.MaxActions),
		)
	}

	d.executing = true
	defer func() { d.executing = false }()

	results := make([][]byte, len(actions))
	var failureMap ir.Bitmap
	for i, a := range actions {
		out, err := d.ledger.Call(ctx, ledger.Msg{
			From:  d.addr,
			To:    a.To,
			Value: a.Value,
			Data:  a.Data,
		})
		if err != nil {
			if !allowFailureMap.Has(i) {
				return nil, ir.Bitmap{}, ir.NewError(ir.ErrCodeActionFailed, "action failed",
					"index", strconv.Itoa(i),
					"cause", err.Error(),
				)
			}
			slog.Debug("tolerated action failure",
				"dao", d.addr,
				"index", i,
				"error", err,
			)
			failureMap = failureMap.With(i)
			continue
		}
		results[i] = out
	}

	d.emit("Executed", ir.Fields{
		"actor":             caller.String(),
		"call_id":           callID.String(),
		"actions":           actionFields(actions),
		"allow_failure_map": allowFailureMap.String(),
		"failure_map":       failureMap.String(),
		"exec_results":      resultFields(results),
	})
	return results, failureMap, nil
}

func actionFields(actions []ir.Action) []any {
	out := make([]any, len(actions))
	for i, a := range actions {
		out[i] = map[string]any{
			"to":    a.To.String(),
			"value": strconv.FormatUint(a.Value, 10),
			"data":  "0x" + hex.EncodeToString(a.Data),
		}
	}
	return out
}

func resultFields(results [][]byte) []any {
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = "0x" + hex.EncodeToString(r)
	}
	return out
}
