package ledger

import "sync/atomic"

// Clock is the logical block clock. Each transaction advances it by one, so
// the block number doubles as the transaction sequence number.
type Clock struct {
	block atomic.Uint64
}

// NewClock creates a clock at block 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at block start. Used when resuming
// from a journal.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.block.Store(start)
	return c
}

// Next advances the clock and returns the new block number.
func (c *Clock) Next() uint64 {
	return c.block.Add(1)
}

// Current returns the current block number.
func (c *Clock) Current() uint64 {
	return c.block.Load()
}
