package dao

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govkit/internal/codec"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/permission"
)

var (
	deployer = ir.LabelAddress("factory")
	owner    = ir.LabelAddress("owner")
	alice    = ir.LabelAddress("alice")
	bob      = ir.LabelAddress("bob")
)

// recorder is a callable account that remembers what it received.
type recorder struct {
	addr  ir.Address
	calls int
	fail  bool
}

func (r *recorder) Address() ir.Address { return r.addr }

func (r *recorder) Snapshot() func() {
	saved := r.calls
	return func() { r.calls = saved }
}

func (r *recorder) Call(_ context.Context, msg ledger.Msg) ([]byte, error) {
	r.calls++
	if r.fail {
		return nil, errors.New("recorder refused")
	}
	return append([]byte("echo:"), msg.Data...), nil
}

type validator struct {
	addr ir.Address
}

func (v validator) Address() ir.Address { return v.addr }

func (v validator) IsValidSignature(hash ir.Hash, sig []byte) ir.Selector {
	if len(sig) > 0 && sig[0] == 1 {
		return ir.SelectorOf("isValidSignature(bytes32,bytes)")
	}
	return ir.Selector{}
}

func setup(t *testing.T) (*ledger.Ledger, *DAO) {
	t.Helper()
	l := ledger.New()
	d, err := Deploy(l, deployer, owner)
	require.NoError(t, err)
	return l, d
}

func submit(t *testing.T, l *ledger.Ledger, fn func(ctx context.Context) error) error {
	t.Helper()
	_, err := l.Submit(context.Background(), owner, t.Name(), fn)
	return err
}

func TestExecute_RequiresPermission(t *testing.T) {
	l, d := setup(t)

	err := submit(t, l, func(ctx context.Context) error {
		_, _, err := d.Execute(ctx, alice, ir.ZeroHash, nil, ir.Bitmap{})
		return err
	})
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorized))
}

func TestExecute_RunsActions(t *testing.T) {
	l, d := setup(t)
	target := &recorder{addr: ir.LabelAddress("target")}
	require.NoError(t, l.Register(target))
	require.NoError(t, d.Grant(owner, d.Address(), alice, ExecutePermissionID))

	var results [][]byte
	err := submit(t, l, func(ctx context.Context) error {
		var err error
		results, _, err = d.Execute(ctx, alice, ir.Keccak256([]byte("call-1")), []ir.Action{
			{To: target.addr, Data: []byte("a")},
			{To: target.addr, Data: []byte("b")},
		}, ir.Bitmap{})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("echo:a"), []byte("echo:b")}, results)
	assert.Equal(t, 2, target.calls)

	executed := l.Log().Named("Executed")
	require.Len(t, executed, 1)
	assert.Equal(t, alice.String(), executed[0].Fields["actor"])
}

func TestExecute_AllowFailureMap(t *testing.T) {
	l, d := setup(t)
	ok := &recorder{addr: ir.LabelAddress("ok")}
	bad := &recorder{addr: ir.LabelAddress("bad"), fail: true}
	require.NoError(t, l.Register(ok))
	require.NoError(t, l.Register(bad))
	require.NoError(t, d.Grant(owner, d.Address(), alice, ExecutePermissionID))

	actions := []ir.Action{{To: ok.addr}, {To: bad.addr, Data: []byte{1}}, {To: ok.addr}}

	var failureMap ir.Bitmap
	err := submit(t, l, func(ctx context.Context) error {
		var err error
		_, failureMap, err = d.Execute(ctx, alice, ir.ZeroHash, actions, ir.BitmapOf(1))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, ir.BitmapOf(1), failureMap)
	assert.Equal(t, 2, ok.calls)
	assert.Equal(t, 0, bad.calls)

	err = submit(t, l, func(ctx context.Context) error {
		_, _, err := d.Execute(ctx, alice, ir.ZeroHash, actions, ir.Bitmap{})
		return err
	})
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.ErrCodeActionFailed))
	var e *ir.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "1", e.Details["index"])
	assert.Equal(t, 2, ok.calls)
}

func TestExecute_TooManyActions(t *testing.T) {
	l, d := setup(t)
	require.NoError(t, d.Grant(owner, d.Address(), alice, ExecutePermissionID))

	actions := make([]ir.Action, ir.MaxActions+1)
	err := submit(t, l, func(ctx context.Context) error {
		_, _, err := d.Execute(ctx, alice, ir.ZeroHash, actions, ir.Bitmap{})
		return err
	})
	assert.True(t, ir.IsCode(err, ir.ErrCodeTooManyActions))
}

func TestExecute_Reentrancy(t *testing.T) {
	l, d := setup(t)
	require.NoError(t, d.Grant(owner, d.Address(), d.Address(), ExecutePermissionID))
	require.NoError(t, d.Grant(owner, d.Address(), alice, ExecutePermissionID))

	inner, err := ExecuteAction(d.Address(), ExecuteArgs{})
	require.NoError(t, err)

	err = submit(t, l, func(ctx context.Context) error {
		_, _, err := d.Execute(ctx, alice, ir.ZeroHash, []ir.Action{inner}, ir.Bitmap{})
		return err
	})
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.ErrCodeActionFailed))
	assert.Contains(t, err.Error(), string(ir.ErrCodeReentrantCall))
}

func TestExecute_ReentrancyTolerated(t *testing.T) {
	_, d := setup(t)
	require.NoError(t, d.Grant(owner, d.Address(), alice, ExecutePermissionID))

	inner, err := ExecuteAction(d.Address(), ExecuteArgs{})
	require.NoError(t, err)

	results, failureMap, err := d.Execute(context.Background(), alice, ir.ZeroHash, []ir.Action{inner}, ir.BitmapOf(0))
	require.NoError(t, err)
	assert.True(t, failureMap.Has(0))
	assert.Nil(t, results[0])
}

func TestExecute_OwnTransaction(t *testing.T) {
	l, d := setup(t)
	ok := &recorder{addr: ir.LabelAddress("ok")}
	bad := &recorder{addr: ir.LabelAddress("bad"), fail: true}
	sink := ir.LabelAddress("sink")
	require.NoError(t, l.Register(ok))
	require.NoError(t, l.Register(bad))
	require.NoError(t, d.Grant(owner, d.Address(), alice, ExecutePermissionID))
	l.Mint(d.Address(), 100)

	actions := []ir.Action{
		{To: sink, Value: 40},
		{To: ok.addr, Data: []byte("a")},
		{To: bad.addr, Data: []byte{1}},
	}

	_, _, err := d.Execute(context.Background(), alice, ir.ZeroHash, actions, ir.Bitmap{})
	require.Error(t, err)
	var e *ir.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ir.ErrCodeActionFailed, e.Code)
	assert.Equal(t, "2", e.Details["index"])

	assert.Equal(t, uint64(100), d.Balance())
	assert.Equal(t, uint64(0), l.Balance(sink))
	assert.Equal(t, 0, ok.calls)
	assert.Empty(t, l.Log().Named("Executed"))

	_, failureMap, err := d.Execute(context.Background(), alice, ir.ZeroHash, actions, ir.BitmapOf(2))
	require.NoError(t, err)
	assert.Equal(t, ir.BitmapOf(2), failureMap)
	assert.Equal(t, uint64(60), d.Balance())
	assert.Equal(t, uint64(40), l.Balance(sink))
	assert.Equal(t, 1, ok.calls)
	assert.Len(t, l.Log().Named("Executed"), 1)
}

func TestExecute_GovernsPermissions(t *testing.T) {
	l, d := setup(t)
	require.NoError(t, d.Grant(owner, d.Address(), alice, ExecutePermissionID))

	grant, err := PermissionAction(d.Address(), MethodGrant, PermissionArgs{
		Where:        d.Address(),
		Who:          bob,
		PermissionID: SetMetadataPermissionID,
	})
	require.NoError(t, err)

	err = submit(t, l, func(ctx context.Context) error {
		_, _, err := d.Execute(ctx, alice, ir.ZeroHash, []ir.Action{grant}, ir.Bitmap{})
		return err
	})
	require.NoError(t, err)
	assert.True(t, d.IsGranted(d.Address(), bob, SetMetadataPermissionID, nil))
	assert.NoError(t, d.SetMetadata(bob, []byte("ipfs://meta")))
	assert.Equal(t, []byte("ipfs://meta"), d.Metadata())
}

func TestRestrictedForAny(t *testing.T) {
	l, d := setup(t)
	cond := &conditionAccount{addr: ir.LabelAddress("cond")}
	require.NoError(t, l.Register(cond))

	err := d.GrantWithCondition(owner, d.Address(), ir.Any, ExecutePermissionID, cond.addr)
	assert.True(t, ir.IsCode(err, ir.ErrCodePermissionsForAnyAddressDisallowed))

	require.NoError(t, d.GrantWithCondition(owner, d.Address(), ir.Any, SetMetadataPermissionID, cond.addr))
	assert.True(t, d.IsGranted(d.Address(), bob, SetMetadataPermissionID, nil))
}

type conditionAccount struct {
	addr ir.Address
}

func (c *conditionAccount) Address() ir.Address { return c.addr }

func (c *conditionAccount) Check(_, who ir.Address, _ ir.PermissionID, _ []byte) bool {
	return who == bob
}

var _ permission.Condition = (*conditionAccount)(nil)

func TestMetadataAndURI(t *testing.T) {
	_, d := setup(t)

	err := d.SetMetadata(alice, []byte("x"))
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorized))

	require.NoError(t, d.Grant(owner, d.Address(), alice, SetMetadataPermissionID))
	require.NoError(t, d.SetDaoURI(alice, "https://dao.example"))
	assert.Equal(t, "https://dao.example", d.DaoURI())
}

func TestCallbacks(t *testing.T) {
	_, d := setup(t)
	iface := ir.InterfaceID("onERC721Received(address,address,uint256,bytes)")
	sel := ir.SelectorOf("onERC721Received(address,address,uint256,bytes)")

	_, err := d.HandleCallback(alice, sel)
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnknownCallback))

	err = d.RegisterStandardCallback(alice, iface, sel, sel)
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorized))

	require.NoError(t, d.Grant(owner, d.Address(), alice, RegisterStandardCallbackPermissionID))
	require.NoError(t, d.RegisterStandardCallback(alice, iface, sel, sel))

	magic, err := d.HandleCallback(alice, sel)
	require.NoError(t, err)
	assert.Equal(t, sel, magic)
	assert.True(t, d.SupportsInterface(iface))
	assert.True(t, d.SupportsInterface(ERC165InterfaceID))
}

func TestSignatureValidator(t *testing.T) {
	l, d := setup(t)
	v := validator{addr: ir.LabelAddress("validator")}
	require.NoError(t, l.Register(v))

	assert.True(t, d.IsValidSignature(ir.ZeroHash, []byte{1}).IsZero())

	require.NoError(t, d.Grant(owner, d.Address(), alice, SetSignatureValidatorPermissionID))
	require.NoError(t, d.SetSignatureValidator(alice, v.addr))

	assert.False(t, d.IsValidSignature(ir.ZeroHash, []byte{1}).IsZero())
	assert.True(t, d.IsValidSignature(ir.ZeroHash, []byte{0}).IsZero())
}

func TestDeposit(t *testing.T) {
	l, d := setup(t)
	l.Mint(alice, 50)

	err := submit(t, l, func(context.Context) error {
		return d.Deposit(alice, 30, "dues")
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(30), d.Balance())
	assert.Equal(t, uint64(20), l.Balance(alice))

	err = submit(t, l, func(context.Context) error {
		return d.Deposit(alice, 30, "dues")
	})
	assert.True(t, ir.IsCode(err, ir.ErrCodeInsufficientBalance))

	// Plain value transfers land as native deposits.
	_, err = l.Call(context.Background(), ledger.Msg{From: alice, To: d.Address(), Value: 20})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), d.Balance())
	assert.Len(t, l.Log().Named("NativeTokenDeposited"), 1)
}

func TestCall_Dispatch(t *testing.T) {
	l, d := setup(t)
	data := codec.MustEncode(MethodGrant, PermissionArgs{
		Where:        d.Address(),
		Who:          alice,
		PermissionID: ExecutePermissionID,
	})

	_, err := l.Call(context.Background(), ledger.Msg{From: alice, To: d.Address(), Data: data})
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorized))

	_, err = l.Call(context.Background(), ledger.Msg{From: owner, To: d.Address(), Data: data})
	require.NoError(t, err)
	assert.True(t, d.IsGranted(d.Address(), alice, ExecutePermissionID, nil))

	_, err = l.Call(context.Background(), ledger.Msg{From: owner, To: d.Address(), Data: codec.MustEncode("selfdestruct", nil)})
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnknownMethod))
}

func TestSnapshot_RestoresDAOState(t *testing.T) {
	l, d := setup(t)
	require.NoError(t, d.Grant(owner, d.Address(), alice, SetMetadataPermissionID))

	err := submit(t, l, func(context.Context) error {
		if err := d.SetMetadata(alice, []byte("new")); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Nil(t, d.Metadata())
}
