package condition

import (
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/permission"
)

// Account deploys an evaluator on a ledger so permission entries can refer to
// it by address. The ledger resolves conditions through the accounts it
// holds.
type Account struct {
	addr ir.Address
	permission.Condition
}

// Deploy places cond at the next address of deployer.
func Deploy(l *ledger.Ledger, deployer ir.Address, cond permission.Condition) (*Account, error) {
	return ledger.Deploy(l, deployer, func(addr ir.Address) (*Account, error) {
		return &Account{addr: addr, Condition: cond}, nil
	})
}

// Address implements ledger.Account.
func (a *Account) Address() ir.Address {
	return a.addr
}
