package ledger

import (
	"strconv"

	"github.com/roach88/govkit/internal/ir"
)

// DefaultMaxSteps bounds the nested calls of one transaction.
const DefaultMaxSteps = 1000

// stepBudget counts the nested calls of one transaction. It catches linear
// call explosions as well as unbounded recursion between accounts.
type stepBudget struct {
	max     int
	current int
}

func newStepBudget(max int) *stepBudget {
	return &stepBudget{max: max}
}

// charge consumes one step. It fails once the budget is exceeded.
func (b *stepBudget) charge(to ir.Address) error {
	b.current++
	if b.current > b.max {
		return ir.NewError(ir.ErrCodeInsufficientGas, "transaction exceeded its step budget",
			"steps", strconv.Itoa(b.current),
			"limit", strconv.Itoa(b.max),
			"to", to.String(),
		)
	}
	return nil
}
