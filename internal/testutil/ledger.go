package testutil

import (
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
)

// DefaultIDPrefix prefixes transaction ids of deterministic ledgers.
const DefaultIDPrefix = "tx"

// NewLedger creates a ledger whose transaction ids and block numbers are
// reproducible: ids run tx-0001, tx-0002, ... and the clock starts at 0.
// Every receipt goes to the returned recorder. opts apply after the
// defaults, so they may override the id generator or the clock.
//
// The same scenario run twice on fresh ledgers produces byte-identical
// receipts.
func NewLedger(opts ...ledger.Option) (*ledger.Ledger, *Recorder) {
	rec := NewRecorder()
	all := []ledger.Option{
		ledger.WithIDGenerator(ledger.NewSequentialGenerator(DefaultIDPrefix)),
		ledger.WithClock(ledger.NewClock()),
		ledger.WithRecorder(rec),
	}
	return ledger.New(append(all, opts...)...), rec
}

// Addr returns the external account address for name.
func Addr(name string) ir.Address {
	return ir.LabelAddress(name)
}
