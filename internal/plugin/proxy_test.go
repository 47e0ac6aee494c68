package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govkit/internal/codec"
	"github.com/roach88/govkit/internal/dao"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
)

var (
	owner    = ir.LabelAddress("owner")
	deployer = ir.LabelAddress("deployer")
	upgrader = ir.LabelAddress("upgrader")
)

func fixture(t *testing.T) (*ledger.Ledger, *dao.DAO, *Simple, *Simple) {
	t.Helper()
	l := ledger.New()
	d, err := dao.Deploy(l, deployer, owner)
	require.NoError(t, err)
	v1, err := DeploySimple(l, deployer, "counter", 1)
	require.NoError(t, err)
	v2, err := DeploySimple(l, deployer, "counter", 2, ir.SelectorOf("increment()"))
	require.NoError(t, err)
	return l, d, v1, v2
}

func TestProxy_Introspection(t *testing.T) {
	l, d, v1, _ := fixture(t)
	ctx := context.Background()

	p, err := DeployProxy(ctx, l, deployer, d.Address(), UUPS, v1, []byte("init"))
	require.NoError(t, err)

	assert.Equal(t, v1.Address(), p.Implementation())
	assert.True(t, p.SupportsInterface(IPluginInterfaceID))
	assert.True(t, p.SupportsInterface(UUPSInterfaceID))
	assert.False(t, p.SupportsInterface(ir.SelectorOf("increment()")))
	assert.Equal(t, []byte("init"), p.Get("init/1"))
	assert.Equal(t, uint16(1), p.InitializedVersion())

	clone, err := DeployProxy(ctx, l, deployer, d.Address(), Cloneable, v1, nil)
	require.NoError(t, err)
	assert.False(t, clone.SupportsInterface(UUPSInterfaceID))
	assert.Error(t, clone.UpgradeTo(ctx, owner, v1.Address()))
}

func TestProxy_Upgrade(t *testing.T) {
	l, d, v1, v2 := fixture(t)
	ctx := context.Background()

	p, err := DeployProxy(ctx, l, deployer, d.Address(), UUPS, v1, nil)
	require.NoError(t, err)
	addr := p.Address()

	err = p.UpgradeToAndCall(ctx, upgrader, v2.Address(), []byte("v2"))
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.ErrCodeDaoUnauthorized))

	require.NoError(t, d.Grant(owner, addr, upgrader, UpgradePluginPermissionID))
	require.NoError(t, p.UpgradeToAndCall(ctx, upgrader, v2.Address(), []byte("v2")))

	assert.Equal(t, addr, p.Address())
	assert.Equal(t, v2.Address(), p.Implementation())
	assert.Equal(t, []byte("v2"), p.Get("init/2"))
	assert.True(t, p.SupportsInterface(ir.SelectorOf("increment()")))

	// Downgrading and re-running an older initializer is refused.
	err = p.UpgradeToAndCall(ctx, upgrader, v1.Address(), nil)
	assert.True(t, ir.IsCode(err, ir.ErrCodeAlreadyInitialized))

	require.NoError(t, p.UpgradeTo(ctx, upgrader, v1.Address()))
	assert.Equal(t, v1.Address(), p.Implementation())
}

func TestProxy_CallForwards(t *testing.T) {
	l, d, v1, _ := fixture(t)
	ctx := context.Background()

	p, err := DeployProxy(ctx, l, deployer, d.Address(), UUPS, v1, nil)
	require.NoError(t, err)

	out, err := l.Call(ctx, ledger.Msg{From: owner, To: p.Address(), Data: codec.MustEncode("version", nil)})
	require.NoError(t, err)
	assert.Equal(t, "counter@1", string(out))

	_, err = l.Call(ctx, ledger.Msg{From: owner, To: p.Address(), Data: codec.MustEncode("mint", nil)})
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnknownMethod))
}

func TestProxy_SnapshotRestore(t *testing.T) {
	l, d, v1, v2 := fixture(t)
	ctx := context.Background()
	p, err := DeployProxy(ctx, l, deployer, d.Address(), UUPS, v1, nil)
	require.NoError(t, err)
	require.NoError(t, d.Grant(owner, p.Address(), upgrader, UpgradePluginPermissionID))

	restore := p.Snapshot()
	require.NoError(t, p.UpgradeToAndCall(ctx, upgrader, v2.Address(), []byte("x")))
	restore()

	assert.Equal(t, v1.Address(), p.Implementation())
	assert.Nil(t, p.Get("init/2"))
	assert.Equal(t, uint16(1), p.InitializedVersion())
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "uups", UUPS.String())
	assert.Equal(t, "cloneable", Cloneable.String())
	assert.Equal(t, "constructable", Constructable.String())
}
