package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
)

func submit(t *testing.T, l *ledger.Ledger, label string, err error) {
	t.Helper()
	_, got := l.Submit(context.Background(), Addr("alice"), label, func(context.Context) error {
		l.Emit(ir.Event{Emitter: Addr("alice"), Name: "Ping", Fields: ir.Fields{"label": label}})
		return err
	})
	require.Equal(t, err, got)
}

func TestNewLedger_Deterministic(t *testing.T) {
	run := func() []ledger.Receipt {
		l, rec := NewLedger()
		submit(t, l, "first", nil)
		submit(t, l, "second", nil)
		return rec.Receipts()
	}

	a, b := run(), run()
	require.Len(t, a, 2)
	assert.Equal(t, a, b)
	assert.Equal(t, "tx-0001", a[0].ID)
	assert.Equal(t, "tx-0002", a[1].ID)
	assert.Equal(t, int64(1), a[0].Seq)
	assert.Equal(t, int64(2), a[1].Seq)
}

func TestNewLedger_OptionsOverride(t *testing.T) {
	l, rec := NewLedger(ledger.WithIDGenerator(ledger.NewSequentialGenerator("run")))
	submit(t, l, "only", nil)
	require.Equal(t, 1, rec.Len())
	assert.Equal(t, "run-0001", rec.Receipts()[0].ID)
}

func TestRecorder_RecordsReverted(t *testing.T) {
	l, rec := NewLedger()
	boom := errors.New("boom")
	submit(t, l, "ok", nil)
	submit(t, l, "fails", boom)

	receipts := rec.Receipts()
	require.Len(t, receipts, 2)
	assert.True(t, receipts[0].Committed())
	assert.Len(t, receipts[0].Events, 1)
	assert.Equal(t, "reverted", receipts[1].Status())
	assert.Empty(t, receipts[1].Events)
}

func TestRecorder_SinceAndReset(t *testing.T) {
	l, rec := NewLedger()
	submit(t, l, "a", nil)
	submit(t, l, "b", nil)
	submit(t, l, "c", nil)

	since := rec.Since(1)
	require.Len(t, since, 2)
	assert.Equal(t, "b", since[0].Label)
	assert.Nil(t, rec.Since(3))

	rec.Reset()
	assert.Equal(t, 0, rec.Len())
}

func TestRecorder_ConcurrentAccess(t *testing.T) {
	rec := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rec.RecordTransaction(context.Background(), ledger.Receipt{Label: "x"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, rec.Len())
}

func TestAddr(t *testing.T) {
	assert.Equal(t, ir.LabelAddress("bob"), Addr("bob"))
	assert.NotEqual(t, Addr("bob"), Addr("carol"))
}
