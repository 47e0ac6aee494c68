package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/permission"
)

// Account is anything deployed at an address.
type Account interface {
	Address() ir.Address
}

// Callable is an account that accepts calldata.
type Callable interface {
	Call(ctx context.Context, msg Msg) ([]byte, error)
}

// Snapshotter is an account with mutable state. Snapshot captures the state
// and returns a function that restores it.
type Snapshotter interface {
	Snapshot() (restore func())
}

// Msg is a call from one account to another.
type Msg struct {
	From  ir.Address
	To    ir.Address
	Value uint64
	Data  []byte
}

// Receipt describes a finished transaction.
type Receipt struct {
	Seq    int64
	ID     string
	Sender ir.Address
	Label  string
	Events []ir.Event
	Err    error
}

// Committed reports whether the transaction took effect.
func (r Receipt) Committed() bool {
	return r.Err == nil
}

// Status returns "committed" or "reverted".
func (r Receipt) Status() string {
	if r.Err != nil {
		return "reverted"
	}
	return "committed"
}

// Recorder persists receipts. store.Store implements it.
type Recorder interface {
	RecordTransaction(ctx context.Context, r Receipt) error
}

// Ledger is the simulated chain. See the package documentation.
type Ledger struct {
	txMu sync.Mutex // held for the duration of a transaction

	mu       sync.RWMutex // guards the maps below
	accounts map[ir.Address]Account
	order    []ir.Address
	balances map[ir.Address]uint64
	nonces   map[ir.Address]uint64

	clock     *Clock
	ids       IDGenerator
	maxSteps  int
	recorders []Recorder
	log       *ir.EventLog

	tx      *txState
	pending []ir.Event // emitted outside any transaction
}

type txState struct {
	ledger *Ledger
	sender ir.Address
	events []ir.Event
	steps  *stepBudget
}

type txKey struct{}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxSteps sets the per-transaction step budget.
//
// Default: DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(l *Ledger) {
		l.maxSteps = n
	}
}

// WithIDGenerator sets how transaction ids are generated.
//
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) {
		l.ids = g
	}
}

// WithClock resumes from a pre-positioned clock.
func WithClock(c *Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithRecorder adds a receipt recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Ledger) {
		l.recorders = append(l.recorders, r)
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		accounts: make(map[ir.Address]Account),
		balances: make(map[ir.Address]uint64),
		nonces:   make(map[ir.Address]uint64),
		clock:    NewClock(),
		ids:      UUIDv7Generator{},
		maxSteps: DefaultMaxSteps,
		log:      ir.NewEventLog(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Block returns the current block number. Inside a transaction it is the
// transaction's own block.
func (l *Ledger) Block() uint64 {
	return l.clock.Current()
}

// Events returns every committed event in order.
func (l *Ledger) Events() []ir.Event {
	return l.log.Events()
}

// Log returns the committed event log.
func (l *Ledger) Log() *ir.EventLog {
	return l.log
}

// Emit implements ir.EventSink. Events emitted inside a transaction are
// buffered until it commits. Events emitted outside any transaction attach to
// the next committed one.
func (l *Ledger) Emit(ev ir.Event) {
	if l.tx != nil {
		l.tx.events = append(l.tx.events, ev)
		return
	}
	l.pending = append(l.pending, ev)
}

// Submit runs fn as one transaction sent by sender. label names the
// transaction in the journal. If fn fails every account is restored to its
// state before the transaction and the emitted events are dropped.
//
// A Submit made with the context of a running transaction joins it.
func (l *Ledger) Submit(ctx context.Context, sender ir.Address, label string, fn func(ctx context.Context) error) (Receipt, error) {
	if tx, ok := ctx.Value(txKey{}).(*txState); ok && tx.ledger == l {
		return Receipt{Sender: sender, Label: label}, fn(ctx)
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	seq := int64(l.clock.Next())
	tx := &txState{
		ledger: l,
		sender: sender,
		steps:  newStepBudget(l.maxSteps),
	}
	restore := l.snapshot()

	l.tx = tx
	err := l.run(context.WithValue(ctx, txKey{}, tx), fn)
	l.tx = nil

	receipt := Receipt{
		Seq:    seq,
		ID:     l.ids.Generate(),
		Sender: sender,
		Label:  label,
		Err:    err,
	}

	if err != nil {
		restore()
		slog.Debug("transaction reverted",
			"seq", seq,
			"label", label,
			"sender", sender,
			"error", err,
		)
	} else {
		receipt.Events = append(l.pending, tx.events...)
		l.pending = nil
		for _, ev := range receipt.Events {
			l.log.Emit(ev)
		}
		slog.Debug("transaction committed",
			"seq", seq,
			"label", label,
			"sender", sender,
			"events", len(receipt.Events),
			"steps", tx.steps.current,
		)
	}

	for _, r := range l.recorders {
		if recErr := r.RecordTransaction(ctx, receipt); recErr != nil {
			slog.Error("failed to record transaction",
				"seq", seq,
				"label", label,
				"error", recErr,
			)
			if err == nil {
				return receipt, fmt.Errorf("record transaction %d: %w", seq, recErr)
			}
		}
	}
	return receipt, err
}

// run invokes fn and turns a panic into a reverting error.
func (l *Ledger) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Call delivers msg. It moves msg.Value from msg.From to msg.To and, when the
// target is Callable, hands it the message. A message without data to an
// address with no account is a plain transfer.
func (l *Ledger) Call(ctx context.Context, msg Msg) ([]byte, error) {
	tx, ok := ctx.Value(txKey{}).(*txState)
	if !ok || tx.ledger != l {
		var out []byte
		_, err := l.Submit(ctx, msg.From, "call", func(ctx context.Context) error {
			var err error
			out, err = l.Call(ctx, msg)
			return err
		})
		return out, err
	}

	if err := tx.steps.charge(msg.To); err != nil {
		return nil, err
	}

	// A failing call frame reverts its own effects even when the caller
	// tolerates the failure.
	restore := l.snapshot()
	mark := len(tx.events)
	out, err := l.deliver(ctx, msg)
	if err != nil {
		restore()
		tx.events = tx.events[:mark]
		return nil, err
	}
	return out, nil
}

func (l *Ledger) deliver(ctx context.Context, msg Msg) ([]byte, error) {
	if msg.Value > 0 {
		if err := l.transfer(msg.From, msg.To, msg.Value); err != nil {
			return nil, err
		}
	}

	acct, ok := l.Account(msg.To)
	if !ok {
		if len(msg.Data) == 0 {
			return nil, nil
		}
		return nil, ir.NewError(ir.ErrCodeAccountNotFound, "no account at address",
			"address", msg.To.String())
	}
	c, ok := acct.(Callable)
	if !ok {
		if len(msg.Data) == 0 {
			return nil, nil
		}
		return nil, ir.NewError(ir.ErrCodeUnknownMethod, "account does not accept calls",
			"address", msg.To.String())
	}
	return c.Call(ctx, msg)
}

// Register deploys acct at its own address.
func (l *Ledger) Register(acct Account) error {
	addr := acct.Address()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[addr]; exists {
		return fmt.Errorf("account %s already exists", addr)
	}
	l.accounts[addr] = acct
	l.order = append(l.order, addr)
	return nil
}

// NextAddress derives the next deployment address for deployer and consumes
// the deployer's nonce.
func (l *Ledger) NextAddress(deployer ir.Address) ir.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.nonces[deployer]
	l.nonces[deployer] = n + 1
	return ir.DeriveAddress(deployer, n)
}

// Deploy derives an address for deployer, builds the account there and
// registers it.
func Deploy[T Account](l *Ledger, deployer ir.Address, build func(addr ir.Address) (T, error)) (T, error) {
	var zero T
	acct, err := build(l.NextAddress(deployer))
	if err != nil {
		return zero, err
	}
	if err := l.Register(acct); err != nil {
		return zero, err
	}
	return acct, nil
}

// Account returns the account at addr.
func (l *Ledger) Account(addr ir.Address) (Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[addr]
	return a, ok
}

// IsContract reports whether an account is deployed at addr.
func (l *Ledger) IsContract(addr ir.Address) bool {
	_, ok := l.Account(addr)
	return ok
}

// Accounts returns every deployed address in deployment order.
func (l *Ledger) Accounts() []ir.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ir.Address, len(l.order))
	copy(out, l.order)
	return out
}

// ResolveCondition implements permission.ConditionResolver: an address
// resolves when the account deployed there is a condition.
func (l *Ledger) ResolveCondition(addr ir.Address) (permission.Condition, bool) {
	acct, ok := l.Account(addr)
	if !ok {
		return nil, false
	}
	c, ok := acct.(permission.Condition)
	return c, ok
}

// Balance returns the native balance of addr.
func (l *Ledger) Balance(addr ir.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

// Mint credits amount to addr out of thin air. Used by fixtures and manifests.
func (l *Ledger) Mint(addr ir.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] += amount
}

// Transfer moves amount from one balance to another. It must run inside a
// transaction to be reverted on failure.
func (l *Ledger) Transfer(from, to ir.Address, amount uint64) error {
	return l.transfer(from, to, amount)
}

func (l *Ledger) transfer(from, to ir.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	have := l.balances[from]
	if have < amount {
		return ir.NewError(ir.ErrCodeInsufficientBalance, "balance too low for transfer",
			"from", from.String(),
			"balance", strconv.FormatUint(have, 10),
			"amount", strconv.FormatUint(amount, 10),
		)
	}
	l.balances[from] = have - amount
	l.balances[to] += amount
	return nil
}

// snapshot captures the registry, balances and every Snapshotter account.
func (l *Ledger) snapshot() (restore func()) {
	l.mu.RLock()
	accounts := make(map[ir.Address]Account, len(l.accounts))
	for k, v := range l.accounts {
		accounts[k] = v
	}
	order := make([]ir.Address, len(l.order))
	copy(order, l.order)
	balances := make(map[ir.Address]uint64, len(l.balances))
	for k, v := range l.balances {
		balances[k] = v
	}
	nonces := make(map[ir.Address]uint64, len(l.nonces))
	for k, v := range l.nonces {
		nonces[k] = v
	}
	var restores []func()
	for _, addr := range l.order {
		if s, ok := l.accounts[addr].(Snapshotter); ok {
			restores = append(restores, s.Snapshot())
		}
	}
	l.mu.RUnlock()

	return func() {
		for _, r := range restores {
			r()
		}
		l.mu.Lock()
		l.accounts = accounts
		l.order = order
		l.balances = balances
		l.nonces = nonces
		l.mu.Unlock()
	}
}
