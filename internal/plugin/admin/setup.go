package admin

import (
	"context"
	"fmt"

	"github.com/roach88/govkit/internal/codec"
	"github.com/roach88/govkit/internal/dao"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/plugin"
	"github.com/roach88/govkit/internal/setup"
)

// Setup installs admin plugins as clones of one logic.
type Setup struct {
	addr   ir.Address
	ledger *ledger.Ledger
	logic  *Logic
}

// DeploySetup deploys the admin logic and its setup from deployer.
func DeploySetup(l *ledger.Ledger, deployer ir.Address) (*Setup, error) {
	logic, err := ledger.Deploy(l, deployer, func(addr ir.Address) (*Logic, error) {
		return NewLogic(addr), nil
	})
	if err != nil {
		return nil, err
	}
	return ledger.Deploy(l, deployer, func(addr ir.Address) (*Setup, error) {
		return &Setup{addr: addr, ledger: l, logic: logic}, nil
	})
}

func (s *Setup) Address() ir.Address { return s.addr }

func (s *Setup) Implementation() ir.Address { return s.logic.Address() }

// PrepareInstallation deploys a clone for the admin encoded in data. The
// plugin gets EXECUTE on the DAO and the admin gets EXECUTE_PROPOSAL on the
// plugin.
func (s *Setup) PrepareInstallation(ctx context.Context, daoAddr ir.Address, data []byte) (ir.Address, setup.PreparedSetupData, error) {
	var args InitArgs
	if err := codec.Unmarshal(data, &args); err != nil {
		return ir.Zero, setup.PreparedSetupData{}, fmt.Errorf("decode admin install data: %w", err)
	}
	p, err := plugin.DeployProxy(ctx, s.ledger, s.addr, daoAddr, plugin.Cloneable, s.logic, data)
	if err != nil {
		return ir.Zero, setup.PreparedSetupData{}, err
	}
	pluginAddr := p.Address()
	return pluginAddr, setup.PreparedSetupData{
		Helpers: []ir.Address{},
		Permissions: []ir.MultiTargetPermission{
			{Operation: ir.OpGrant, Where: pluginAddr, Who: args.Admin, PermissionID: ExecuteProposalPermissionID},
			{Operation: ir.OpGrant, Where: daoAddr, Who: pluginAddr, PermissionID: dao.ExecutePermissionID},
		},
	}, nil
}

// PrepareUpdate fails: there is a single admin build.
func (s *Setup) PrepareUpdate(context.Context, ir.Address, uint16, setup.SetupPayload) ([]byte, setup.PreparedSetupData, error) {
	return nil, setup.PreparedSetupData{}, fmt.Errorf("admin setup %s has no update path", s.addr)
}

// PrepareUninstallation revokes EXECUTE from the plugin and, when the plugin
// is still deployed, EXECUTE_PROPOSAL from its admin.
func (s *Setup) PrepareUninstallation(_ context.Context, daoAddr ir.Address, payload setup.SetupPayload) ([]ir.MultiTargetPermission, error) {
	perms := []ir.MultiTargetPermission{
		{Operation: ir.OpRevoke, Where: daoAddr, Who: payload.Plugin, PermissionID: dao.ExecutePermissionID},
	}
	if acct, ok := s.ledger.Account(payload.Plugin); ok {
		if p, ok := acct.(*plugin.Proxy); ok && !Admin(p).IsZero() {
			perms = append(perms, ir.MultiTargetPermission{
				Operation: ir.OpRevoke, Where: payload.Plugin, Who: Admin(p), PermissionID: ExecuteProposalPermissionID,
			})
		}
	}
	return perms, nil
}

// ExecuteProposal sends MethodExecuteProposal from caller to the plugin as
// one transaction and returns the DAO's execution result.
func ExecuteProposal(ctx context.Context, l *ledger.Ledger, caller, pluginAddr ir.Address, args ProposalArgs) (dao.ExecuteResult, error) {
	var res dao.ExecuteResult
	data, err := codec.Encode(MethodExecuteProposal, args)
	if err != nil {
		return res, err
	}
	_, err = l.Submit(ctx, caller, MethodExecuteProposal, func(ctx context.Context) error {
		out, err := l.Call(ctx, ledger.Msg{From: caller, To: pluginAddr, Data: data})
		if err != nil {
			return err
		}
		return codec.Unmarshal(out, &res)
	})
	return res, err
}
