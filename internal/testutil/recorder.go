package testutil

import (
	"context"
	"sync"

	"github.com/roach88/govkit/internal/ledger"
)

// Recorder keeps every receipt in memory, in submission order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu       sync.Mutex
	receipts []ledger.Receipt
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordTransaction implements ledger.Recorder.
func (r *Recorder) RecordTransaction(_ context.Context, rec ledger.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, rec)
	return nil
}

// Receipts returns a copy of the recorded receipts.
func (r *Recorder) Receipts() []ledger.Receipt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.Receipt, len(r.receipts))
	copy(out, r.receipts)
	return out
}

// Since returns the receipts recorded after the first n.
func (r *Recorder) Since(n int) []ledger.Receipt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n >= len(r.receipts) {
		return nil
	}
	out := make([]ledger.Receipt, len(r.receipts)-n)
	copy(out, r.receipts[n:])
	return out
}

// Len returns the number of recorded receipts.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.receipts)
}

// Reset drops every recorded receipt.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = nil
}
