// Package admin implements the admin plugin: a single address that executes
// actions on a DAO without a vote, and the setup that installs it.
package admin

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/roach88/govkit/internal/codec"
	"github.com/roach88/govkit/internal/dao"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/plugin"
)

// Build is the build number of the admin logic.
const Build uint16 = 1

// MethodExecuteProposal is the only method of the admin plugin.
const MethodExecuteProposal = "executeProposal"

// ExecuteProposalPermissionID lets its holder execute proposals through the
// plugin.
var ExecuteProposalPermissionID = ir.NewPermissionID("EXECUTE_PROPOSAL_PERMISSION")

// InterfaceID identifies admin plugins.
var InterfaceID = ir.InterfaceID("executeProposal(bytes,(address,uint256,bytes)[],uint256)")

const (
	keyAdmin     = "admin"
	keyProposals = "proposals"
)

// InitArgs is the installation data of the admin setup.
type InitArgs struct {
	Admin ir.Address `cbor:"1,keyasint"`
}

// ProposalArgs are the arguments of MethodExecuteProposal.
type ProposalArgs struct {
	Metadata        []byte      `cbor:"1,keyasint,omitempty"`
	Actions         []ir.Action `cbor:"2,keyasint"`
	AllowFailureMap ir.Bitmap   `cbor:"3,keyasint"`
}

// Logic is the admin plugin logic.
type Logic struct {
	addr ir.Address
}

// NewLogic creates the admin logic at addr.
func NewLogic(addr ir.Address) *Logic {
	return &Logic{addr: addr}
}

func (a *Logic) Address() ir.Address { return a.addr }

func (a *Logic) Build() uint16 { return Build }

func (a *Logic) SupportsInterface(id ir.Selector) bool {
	return id == InterfaceID
}

// Initialize records the admin address in the proxy.
func (a *Logic) Initialize(_ context.Context, p *plugin.Proxy, data []byte) error {
	var args InitArgs
	if err := codec.Unmarshal(data, &args); err != nil {
		return err
	}
	if args.Admin.IsZero() {
		return fmt.Errorf("admin plugin %s needs an admin address", p.Address())
	}
	p.Set(keyAdmin, args.Admin[:])
	return nil
}

// Call implements plugin.Logic.
func (a *Logic) Call(ctx context.Context, p *plugin.Proxy, msg ledger.Msg) ([]byte, error) {
	c, err := codec.Decode(msg.Data)
	if err != nil {
		return nil, ir.NewError(ir.ErrCodeUnknownMethod, err.Error(), "plugin", p.Address().String())
	}
	if c.Method != MethodExecuteProposal {
		return nil, ir.NewError(ir.ErrCodeUnknownMethod, "plugin does not implement method",
			"plugin", p.Address().String(),
			"method", c.Method,
		)
	}
	var args ProposalArgs
	if err := c.Bind(&args); err != nil {
		return nil, err
	}
	return a.executeProposal(ctx, p, msg.From, args)
}

// executeProposal creates a proposal and executes it immediately through the
// DAO. The proposal id is the call id the DAO sees.
func (a *Logic) executeProposal(ctx context.Context, p *plugin.Proxy, caller ir.Address, args ProposalArgs) ([]byte, error) {
	if !p.HasDAOPermission(caller, ExecuteProposalPermissionID, nil) {
		return nil, ir.NewError(ir.ErrCodeDaoUnauthorized, "caller lacks the required permission in the DAO",
			"dao", p.DAO().String(),
			"where", p.Address().String(),
			"who", caller.String(),
			"permission_id", ExecuteProposalPermissionID.Label(),
		)
	}

	id := proposalCount(p)
	p.Set(keyProposals, []byte(strconv.FormatUint(id+1, 10)))

	emit(p, "ProposalCreated", ir.Fields{
		"proposal_id":       int64(id),
		"creator":           caller.String(),
		"metadata":          "0x" + hex.EncodeToString(args.Metadata),
		"actions":           len(args.Actions),
		"allow_failure_map": args.AllowFailureMap.String(),
	})

	data, err := codec.Encode(dao.MethodExecute, dao.ExecuteArgs{
		CallID:          ProposalCallID(id),
		Actions:         args.Actions,
		AllowFailureMap: args.AllowFailureMap,
	})
	if err != nil {
		return nil, err
	}
	out, err := p.Ledger().Call(ctx, ledger.Msg{From: p.Address(), To: p.DAO(), Data: data})
	if err != nil {
		return nil, err
	}

	slog.Debug("admin proposal executed",
		"plugin", p.Address(),
		"proposal_id", id,
		"actions", len(args.Actions),
	)
	emit(p, "ProposalExecuted", ir.Fields{"proposal_id": int64(id)})
	return out, nil
}

// Admin returns the admin recorded in the proxy.
func Admin(p *plugin.Proxy) ir.Address {
	var a ir.Address
	copy(a[:], p.Get(keyAdmin))
	return a
}

// ProposalCallID is the DAO call id of proposal id.
func ProposalCallID(id uint64) ir.Hash {
	var w ir.Words
	return w.Uint(id).Sum()
}

func proposalCount(p *plugin.Proxy) uint64 {
	n, err := strconv.ParseUint(string(p.Get(keyProposals)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func emit(p *plugin.Proxy, name string, fields ir.Fields) {
	p.Ledger().Emit(ir.Event{Emitter: p.Address(), Name: name, Fields: fields})
}
