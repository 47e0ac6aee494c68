package repo

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/permission"
	"github.com/roach88/govkit/internal/setup"
)

var (
	deployer   = ir.LabelAddress("deployer")
	maintainer = ir.LabelAddress("maintainer")
	stranger   = ir.LabelAddress("stranger")
)

type fixture struct {
	l      *ledger.Ledger
	repo   *Repo
	setups []ir.Address
}

func newFixture(t *testing.T, setups int) *fixture {
	t.Helper()
	l := ledger.New()
	r, err := Deploy(l, deployer, maintainer)
	require.NoError(t, err)
	f := &fixture{l: l, repo: r}
	for i := 0; i < setups; i++ {
		s, err := setup.DeployFixed(l, deployer, setup.FixedConfig{Plugin: ir.LabelAddress("plugin")})
		require.NoError(t, err)
		f.setups = append(f.setups, s.Address())
	}
	return f
}

func TestCreateVersion_Sequence(t *testing.T) {
	f := newFixture(t, 3)
	r := f.repo

	tag, err := r.CreateVersion(maintainer, 1, f.setups[0], []byte("b1"), []byte("r1"))
	require.NoError(t, err)
	assert.Equal(t, ir.VersionTag{Release: 1, Build: 1}, tag)

	tag, err = r.CreateVersion(maintainer, 1, f.setups[1], []byte("b2"), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.VersionTag{Release: 1, Build: 2}, tag)

	tag, err = r.CreateVersion(maintainer, 2, f.setups[2], []byte("b3"), []byte("r2"))
	require.NoError(t, err)
	assert.Equal(t, ir.VersionTag{Release: 2, Build: 1}, tag)

	assert.Equal(t, uint8(2), r.LatestRelease())
	assert.Equal(t, uint16(2), r.BuildCount(1))
	assert.Equal(t, []byte("r1"), r.ReleaseMetadata(1))

	latest, err := r.GetLatestVersion(1)
	require.NoError(t, err)
	assert.Equal(t, f.setups[1], latest.PluginSetup)

	bySetup, err := r.GetLatestVersionBySetup(f.setups[2])
	require.NoError(t, err)
	assert.Equal(t, ir.VersionTag{Release: 2, Build: 1}, bySetup.Tag)

	assert.Len(t, r.Versions(), 3)
}

func TestCreateVersion_SameSetupNewBuild(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.repo.CreateVersion(maintainer, 1, f.setups[0], nil, []byte("r1"))
	require.NoError(t, err)
	tag, err := f.repo.CreateVersion(maintainer, 1, f.setups[0], []byte("metadata only"), nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), tag.Build)
}

func TestCreateVersion_Errors(t *testing.T) {
	f := newFixture(t, 2)
	r := f.repo
	_, err := r.CreateVersion(maintainer, 1, f.setups[0], nil, []byte("r1"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  ir.Address
		release uint8
		setup   ir.Address
		relMeta []byte
		code    ir.ErrorCode
	}{
		{"unauthorized", stranger, 1, f.setups[1], nil, ir.ErrCodeUnauthorized},
		{"not a setup", maintainer, 1, stranger, nil, ir.ErrCodeInvalidPluginSetupInterface},
		{"release zero", maintainer, 0, f.setups[1], nil, ir.ErrCodeReleaseZeroNotAllowed},
		{"release skip", maintainer, 3, f.setups[1], []byte("r3"), ir.ErrCodeInvalidReleaseIncrement},
		{"empty release metadata", maintainer, 2, f.setups[1], nil, ir.ErrCodeEmptyReleaseMetadata},
		{"setup reused across releases", maintainer, 2, f.setups[0], []byte("r2"), ir.ErrCodePluginSetupAlreadyInPreviousRelease},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.CreateVersion(tt.caller, tt.release, tt.setup, nil, tt.relMeta)
			require.Error(t, err)
			assert.Equal(t, tt.code, ir.CodeOf(err))
		})
	}
	assert.Equal(t, uint8(1), r.LatestRelease())
	assert.Equal(t, uint16(1), r.BuildCount(1))
}

func TestCreateVersion_BuildLimit(t *testing.T) {
	f := newFixture(t, 1)
	r := f.repo
	_, err := r.CreateVersion(maintainer, 1, f.setups[0], nil, []byte("r1"))
	require.NoError(t, err)

	r.buildsPerRelease[1] = math.MaxUint16 - 1
	tag, err := r.CreateVersion(maintainer, 1, f.setups[0], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(math.MaxUint16), tag.Build)

	_, err = r.CreateVersion(maintainer, 1, f.setups[0], nil, nil)
	require.Error(t, err)
	assert.Equal(t, ir.ErrCodeBuildLimitReached, ir.CodeOf(err))
	assert.Equal(t, uint16(math.MaxUint16), r.BuildCount(1))
}

func TestCreateVersion_OlderReleaseRejected(t *testing.T) {
	f := newFixture(t, 3)
	r := f.repo
	_, err := r.CreateVersion(maintainer, 1, f.setups[0], nil, []byte("r1"))
	require.NoError(t, err)
	_, err = r.CreateVersion(maintainer, 2, f.setups[1], nil, []byte("r2"))
	require.NoError(t, err)

	_, err = r.CreateVersion(maintainer, 1, f.setups[2], nil, nil)
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidReleaseIncrement))
}

func TestGetVersion_Missing(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.repo.GetVersion(ir.VersionTag{Release: 1, Build: 1})
	assert.True(t, ir.IsCode(err, ir.ErrCodeVersionHashDoesNotExist))
	_, err = f.repo.GetLatestVersionBySetup(stranger)
	assert.True(t, ir.IsCode(err, ir.ErrCodeVersionHashDoesNotExist))
}

func TestUpdateReleaseMetadata(t *testing.T) {
	f := newFixture(t, 1)
	r := f.repo

	err := r.UpdateReleaseMetadata(maintainer, 1, []byte("x"))
	assert.True(t, ir.IsCode(err, ir.ErrCodeReleaseDoesNotExist))

	_, err = r.CreateVersion(maintainer, 1, f.setups[0], nil, []byte("r1"))
	require.NoError(t, err)

	err = r.UpdateReleaseMetadata(maintainer, 1, nil)
	assert.True(t, ir.IsCode(err, ir.ErrCodeEmptyReleaseMetadata))

	err = r.UpdateReleaseMetadata(stranger, 1, []byte("x"))
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorized))

	require.NoError(t, r.UpdateReleaseMetadata(maintainer, 1, []byte("r1b")))
	assert.Equal(t, []byte("r1b"), r.ReleaseMetadata(1))
}

func TestRepo_RevertsInsideTransaction(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.l.Submit(context.Background(), maintainer, "publish", func(context.Context) error {
		if _, err := f.repo.CreateVersion(maintainer, 1, f.setups[0], nil, []byte("r1")); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, uint8(0), f.repo.LatestRelease())
	assert.Equal(t, uint16(0), f.repo.BuildCount(1))
}

func TestRegistry_Register(t *testing.T) {
	f := newFixture(t, 0)
	owner := ir.LabelAddress("registry-owner")
	g, err := DeployRegistry(f.l, deployer, owner)
	require.NoError(t, err)

	err = g.RegisterPluginRepo(stranger, "my-plugin", f.repo.Address())
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorized))

	require.NoError(t, g.Grant(owner, g.Address(), stranger, RegisterPluginRepoPermissionID))
	require.NoError(t, g.RegisterPluginRepo(stranger, "my-plugin", f.repo.Address()))
	assert.True(t, g.Entries(f.repo.Address()))

	got, err := g.Repo(f.repo.Address())
	require.NoError(t, err)
	assert.Same(t, f.repo, got)

	err = g.RegisterPluginRepo(stranger, "my-plugin", ir.LabelAddress("other"))
	assert.True(t, ir.IsCode(err, ir.ErrCodeSubdomainAlreadyRegistered))

	err = g.RegisterPluginRepo(stranger, "another", f.repo.Address())
	assert.True(t, ir.IsCode(err, ir.ErrCodeRepoAlreadyRegistered))

	_, err = g.Repo(stranger)
	assert.True(t, ir.IsCode(err, ir.ErrCodeRepoNonexistent))
}

func TestValidSubdomain(t *testing.T) {
	for _, ok := range []string{"admin", "token-voting", "v2", "a-b-c-1"} {
		assert.True(t, ValidSubdomain(ok), ok)
	}
	for _, bad := range []string{"", "Admin", "my_plugin", "a.b", "space here", "émoji"} {
		assert.False(t, ValidSubdomain(bad), bad)
	}
}

func TestRegistry_CreatePluginRepoWithFirstVersion(t *testing.T) {
	f := newFixture(t, 1)
	g, err := DeployRegistry(f.l, deployer, ir.Zero)
	require.NoError(t, err)

	r, err := g.CreatePluginRepoWithFirstVersion("multisig", f.setups[0], maintainer, []byte("release"), []byte("build"))
	require.NoError(t, err)

	v, err := r.GetVersion(ir.VersionTag{Release: 1, Build: 1})
	require.NoError(t, err)
	assert.Equal(t, f.setups[0], v.PluginSetup)

	assert.True(t, r.IsGranted(r.Address(), maintainer, MaintainerPermissionID, nil))
	assert.True(t, r.IsGranted(r.Address(), maintainer, permission.RootPermissionID, nil))
	assert.False(t, r.IsGranted(r.Address(), g.Address(), MaintainerPermissionID, nil))
	assert.False(t, r.IsGranted(r.Address(), g.Address(), permission.RootPermissionID, nil))

	addr, ok := g.Lookup("multisig")
	require.True(t, ok)
	assert.Equal(t, r.Address(), addr)

	_, err = g.CreatePluginRepoWithFirstVersion("Bad_Name", f.setups[0], maintainer, []byte("r"), nil)
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidPluginSubdomain))
}

func TestRegistry_CreatePluginRepo(t *testing.T) {
	f := newFixture(t, 0)
	g, err := DeployRegistry(f.l, deployer, ir.Zero)
	require.NoError(t, err)

	r, err := g.CreatePluginRepo("admin", maintainer)
	require.NoError(t, err)
	assert.True(t, r.IsGranted(r.Address(), maintainer, MaintainerPermissionID, nil))
	assert.Equal(t, []string{"admin"}, g.Subdomains())
}
