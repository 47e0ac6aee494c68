package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govkit/internal/ir"
)

var (
	alice = ir.LabelAddress("alice")
	bob   = ir.LabelAddress("bob")
)

// counter is a Callable, Snapshotter test account.
type counter struct {
	addr   ir.Address
	ledger *Ledger
	n      int
	next   ir.Address // forwards calls here when set
}

func (c *counter) Address() ir.Address { return c.addr }

func (c *counter) Snapshot() func() {
	saved := c.n
	return func() { c.n = saved }
}

func (c *counter) Call(ctx context.Context, msg Msg) ([]byte, error) {
	c.n++
	c.ledger.Emit(ir.Event{Emitter: c.addr, Name: "Counted", Fields: ir.Fields{"n": c.n}})
	if string(msg.Data) == "fail" {
		return nil, errors.New("asked to fail")
	}
	if !c.next.IsZero() {
		return c.ledger.Call(ctx, Msg{From: c.addr, To: c.next, Data: msg.Data})
	}
	return []byte("ok"), nil
}

func deployCounter(t *testing.T, l *Ledger) *counter {
	t.Helper()
	c, err := Deploy(l, alice, func(addr ir.Address) (*counter, error) {
		return &counter{addr: addr, ledger: l}, nil
	})
	require.NoError(t, err)
	return c
}

type memRecorder struct {
	receipts []Receipt
}

func (m *memRecorder) RecordTransaction(_ context.Context, r Receipt) error {
	m.receipts = append(m.receipts, r)
	return nil
}

// TestSubmit_CommitsEvents tests a successful transaction.
func TestSubmit_CommitsEvents(t *testing.T) {
	rec := &memRecorder{}
	l := New(WithRecorder(rec), WithIDGenerator(NewSequentialGenerator("tx")))
	c := deployCounter(t, l)

	r, err := l.Submit(context.Background(), alice, "count", func(ctx context.Context) error {
		_, err := l.Call(ctx, Msg{From: alice, To: c.addr, Data: []byte("go")})
		return err
	})
	require.NoError(t, err)
	assert.True(t, r.Committed())
	assert.Equal(t, "committed", r.Status())
	assert.Equal(t, int64(1), r.Seq)
	assert.Equal(t, "tx-0001", r.ID)
	require.Len(t, r.Events, 1)
	assert.Equal(t, 1, c.n)
	assert.Len(t, l.Events(), 1)
	require.Len(t, rec.receipts, 1)
}

// TestSubmit_RevertsState tests that a failing transaction leaves no trace.
func TestSubmit_RevertsState(t *testing.T) {
	rec := &memRecorder{}
	l := New(WithRecorder(rec))
	c := deployCounter(t, l)
	l.Mint(alice, 100)

	r, err := l.Submit(context.Background(), alice, "fail", func(ctx context.Context) error {
		if _, err := l.Call(ctx, Msg{From: alice, To: bob, Value: 40}); err != nil {
			return err
		}
		if _, err := Deploy(l, alice, func(addr ir.Address) (*counter, error) {
			return &counter{addr: addr, ledger: l}, nil
		}); err != nil {
			return err
		}
		_, err := l.Call(ctx, Msg{From: alice, To: c.addr, Data: []byte("fail")})
		return err
	})
	require.Error(t, err)
	assert.Equal(t, "reverted", r.Status())
	assert.Empty(t, r.Events)

	assert.Equal(t, 0, c.n)
	assert.Equal(t, uint64(100), l.Balance(alice))
	assert.Equal(t, uint64(0), l.Balance(bob))
	assert.Len(t, l.Accounts(), 1)
	assert.Empty(t, l.Events())
	require.Len(t, rec.receipts, 1)
	assert.Error(t, rec.receipts[0].Err)

	// The nonce is restored so the next deployment reuses the address.
	next := l.NextAddress(alice)
	assert.Equal(t, ir.DeriveAddress(alice, 1), next)
}

// TestSubmit_Panics tests that a panic reverts instead of crashing.
func TestSubmit_Panics(t *testing.T) {
	l := New()
	_, err := l.Submit(context.Background(), alice, "panic", func(context.Context) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

// TestCall_StepBudget tests that recursion exhausts the budget.
func TestCall_StepBudget(t *testing.T) {
	l := New(WithMaxSteps(5))
	a := deployCounter(t, l)
	b := deployCounter(t, l)
	a.next = b.addr
	b.next = a.addr

	_, err := l.Call(context.Background(), Msg{From: alice, To: a.addr})
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.ErrCodeInsufficientGas))
	assert.Equal(t, 0, a.n)
	assert.Equal(t, 0, b.n)
}

// TestCall_Errors tests missing and non-callable targets.
func TestCall_Errors(t *testing.T) {
	l := New()

	_, err := l.Call(context.Background(), Msg{From: alice, To: bob, Data: []byte{1}})
	assert.True(t, ir.IsCode(err, ir.ErrCodeAccountNotFound))

	_, err = l.Call(context.Background(), Msg{From: alice, To: bob, Value: 1})
	assert.True(t, ir.IsCode(err, ir.ErrCodeInsufficientBalance))

	l.Mint(alice, 5)
	_, err = l.Call(context.Background(), Msg{From: alice, To: bob, Value: 5})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), l.Balance(bob))
}

// TestSubmit_Nested tests that a nested Submit joins the outer transaction.
func TestSubmit_Nested(t *testing.T) {
	l := New()
	c := deployCounter(t, l)

	_, err := l.Submit(context.Background(), alice, "outer", func(ctx context.Context) error {
		_, err := l.Submit(ctx, alice, "inner", func(ctx context.Context) error {
			_, err := l.Call(ctx, Msg{From: alice, To: c.addr})
			return err
		})
		require.NoError(t, err)
		return errors.New("outer fails")
	})
	require.Error(t, err)
	assert.Equal(t, 0, c.n)
	assert.Equal(t, uint64(1), l.Block())
}

// TestEmit_OutsideTransaction tests that loose events attach to the next commit.
func TestEmit_OutsideTransaction(t *testing.T) {
	l := New()
	l.Emit(ir.Event{Emitter: alice, Name: "Genesis"})
	assert.Empty(t, l.Events())

	r, err := l.Submit(context.Background(), alice, "noop", func(context.Context) error { return nil })
	require.NoError(t, err)
	require.Len(t, r.Events, 1)
	assert.Equal(t, "Genesis", r.Events[0].Name)
}

// TestRegister_Duplicate tests the registry guard.
func TestRegister_Duplicate(t *testing.T) {
	l := New()
	c := deployCounter(t, l)
	assert.Error(t, l.Register(c))
	assert.True(t, l.IsContract(c.addr))
	_, ok := l.ResolveCondition(c.addr)
	assert.False(t, ok)
}

func TestClock(t *testing.T) {
	c := NewClockAt(10)
	assert.Equal(t, uint64(10), c.Current())
	assert.Equal(t, uint64(11), c.Next())
}

// TestCall_FailedFrameReverts tests that a tolerated failure leaves no effects.
func TestCall_FailedFrameReverts(t *testing.T) {
	l := New()
	a := deployCounter(t, l)

	r, err := l.Submit(context.Background(), alice, "tolerate", func(ctx context.Context) error {
		if _, err := l.Call(ctx, Msg{From: alice, To: a.addr, Data: []byte("fail")}); err == nil {
			return errors.New("expected failure")
		}
		_, err := l.Call(ctx, Msg{From: alice, To: a.addr})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, a.n)
	require.Len(t, r.Events, 1)
	assert.Equal(t, 1, r.Events[0].Fields["n"])
}
