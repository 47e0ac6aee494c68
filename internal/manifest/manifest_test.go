package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govkit/internal/dao"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/plugin/admin"
	"github.com/roach88/govkit/internal/processor"
)

func compile(t *testing.T, src string) (*Deployment, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileDeployment(v)
}

func TestCompileDeployment_Basic(t *testing.T) {
	d, err := compile(t, `
		dao: main: {owner: "alice", metadata: "m"}
		repo: admin: {
			maintainer: "bob"
			builds: [{release: 1, setup: type: "admin", release_metadata: "r"}]
		}
		install: main_admin: {dao: "main", repo: "admin", version: "1.1", admin: "alice"}
		grant: [{dao: "main", where: "main", who: "carol", permission: "EXECUTE_PERMISSION"}]
		fund: alice: 5
	`)
	require.NoError(t, err)

	require.Len(t, d.DAOs, 1)
	assert.Equal(t, DAOSpec{Name: "main", Owner: "alice", Metadata: "m"}, d.DAOs[0])
	require.Len(t, d.Repos, 1)
	assert.Equal(t, "admin", d.Repos[0].Subdomain)
	require.Len(t, d.Repos[0].Builds, 1)
	assert.Equal(t, uint8(1), d.Repos[0].Builds[0].Release)
	assert.Equal(t, SetupAdmin, d.Repos[0].Builds[0].Setup.Type)
	assert.Equal(t, "r", d.Repos[0].Builds[0].ReleaseMetadata)
	require.Len(t, d.Installs, 1)
	assert.Equal(t, "main_admin", d.Installs[0].Name)
	assert.Equal(t, "alice", d.Installs[0].Admin)
	require.Len(t, d.Grants, 1)
	assert.Equal(t, "EXECUTE_PERMISSION", d.Grants[0].Permission)
	assert.Equal(t, []FundSpec{{Account: "alice", Amount: 5}}, d.Funds)
}

func TestCompileDeployment_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "missing owner",
			src:   `dao: main: {metadata: "m"}`,
			field: "owner",
		},
		{
			name:  "empty manifest",
			src:   `fund: alice: 1`,
			field: "dao",
		},
		{
			name:  "repo without builds",
			src:   `repo: x: {maintainer: "bob"}`,
			field: "builds",
		},
		{
			name:  "unknown setup type",
			src:   `repo: x: {maintainer: "bob", builds: [{release: 1, setup: type: "magic"}]}`,
			field: "builds",
		},
		{
			name:  "fixed setup without logic",
			src:   `repo: x: {maintainer: "bob", builds: [{release: 1, setup: type: "fixed"}]}`,
			field: "builds",
		},
		{
			name:  "reuse of a later build",
			src:   `repo: x: {maintainer: "bob", builds: [{release: 1, setup: reuse: 1}]}`,
			field: "builds",
		},
		{
			name: "bad version",
			src: `
				dao: main: owner: "alice"
				install: p: {dao: "main", repo: "x", version: "1.2.3"}`,
			field: "version",
		},
		{
			name: "incomplete grant",
			src: `
				dao: main: owner: "alice"
				grant: [{dao: "main", who: "carol", permission: "EXECUTE_PERMISSION"}]`,
			field: "grant",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.src)
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"", "uups", "cloneable", "constructable"} {
		_, err := ParseKind(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseKind("diamond")
	assert.Error(t, err)
}

func TestLoad_Directory(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "basic"))
	require.NoError(t, err)
	assert.Len(t, d.DAOs, 1)
	assert.Len(t, d.Repos, 2)
	assert.Len(t, d.Installs, 2)
	assert.Len(t, d.Grants, 2)
	assert.Equal(t, "only_dave", d.Grants[1].Condition)
	require.Len(t, d.Conditions, 2)
	assert.Equal(t, []string{"dave"}, d.Conditions[0].Callers)
	assert.Equal(t, "only_dave", d.Conditions[1].Not)
	assert.Len(t, d.Funds, 1)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	empty := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(empty, "notes.txt"), []byte("not cue"), 0644))
	_, err = Load(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files")

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "bad.cue"), []byte("package bad\n\ndao: main: owner: 1 & \"x\"\n"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte("package x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.cue"), []byte("package x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("x"), 0644))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestDeploy_Basic(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "basic"))
	require.NoError(t, err)

	l := ledger.New()
	env, err := Deploy(context.Background(), l, d)
	require.NoError(t, err)

	treasury, err := env.DAO("treasury")
	require.NoError(t, err)
	assert.Equal(t, []byte("ipfs://treasury"), treasury.Metadata())
	assert.Equal(t, "https://treasury.example", treasury.DaoURI())
	assert.Equal(t, uint64(1000), l.Balance(treasury.Address()))

	alice, err := env.Resolve("alice")
	require.NoError(t, err)
	carol, err := env.Resolve("carol")
	require.NoError(t, err)
	assert.True(t, treasury.IsGranted(treasury.Address(), carol, dao.SetMetadataPermissionID, nil))
	dave, err := env.Resolve("dave")
	require.NoError(t, err)
	assert.True(t, treasury.IsGranted(treasury.Address(), dave, dao.SetMetadataPermissionID, nil))
	assert.False(t, treasury.IsGranted(treasury.Address(), ir.LabelAddress("erin"), dao.SetMetadataPermissionID, nil))
	assert.True(t, l.IsContract(mustResolve(t, env, "not_dave")))

	adminInst, ok := env.Installation("treasury_admin")
	require.True(t, ok)
	assert.True(t, treasury.IsGranted(adminInst.Plugin, alice, admin.ExecuteProposalPermissionID, nil))
	assert.True(t, treasury.IsGranted(treasury.Address(), adminInst.Plugin, dao.ExecutePermissionID, nil))
	assert.Equal(t, "treasury_admin", env.Name(adminInst.Plugin))

	counterInst, ok := env.Installation("treasury_counter")
	require.True(t, ok)
	assert.Equal(t, ir.VersionTag{Release: 1, Build: 2}, counterInst.Ref.VersionTag)
	lc, err := env.Processor.Lifecycle(treasury.Address(), counterInst.Plugin)
	require.NoError(t, err)
	assert.Equal(t, processor.PhaseInstalled, lc.Phase)

	counterRepo, err := env.Repo("counter")
	require.NoError(t, err)
	assert.Equal(t, uint16(2), counterRepo.BuildCount(1))

	assert.Equal(t, "treasury", env.Name(treasury.Address()))
	assert.Equal(t, "registry", env.Name(env.Registry.Address()))
	assert.Contains(t, env.Names(), "processor")
	assert.Equal(t, "dao treasury", env.Humanize("dao "+treasury.Address().String()))
}

func TestDeploy_ReusedSetup(t *testing.T) {
	d, err := compile(t, `
		dao: main: owner: "alice"
		repo: counter: {
			maintainer: "bob"
			builds: [
				{release: 1, setup: {type: "fixed", logic: "counter"}, release_metadata: "r1"},
				{release: 1, setup: reuse: 1, metadata: "same setup"},
			]
		}
	`)
	require.NoError(t, err)

	env, err := Deploy(context.Background(), ledger.New(), d)
	require.NoError(t, err)
	r, err := env.Repo("counter")
	require.NoError(t, err)
	v1, err := r.GetVersion(ir.VersionTag{Release: 1, Build: 1})
	require.NoError(t, err)
	v2, err := r.GetVersion(ir.VersionTag{Release: 1, Build: 2})
	require.NoError(t, err)
	assert.Equal(t, v1.PluginSetup, v2.PluginSetup)
}

func TestDeploy_FailingStep(t *testing.T) {
	d := &Deployment{
		DAOs: []DAOSpec{{Name: "main", Owner: "alice"}},
		Installs: []InstallSpec{
			{Name: "ghost", DAO: "main", Repo: "nowhere", Version: "v1.1"},
		},
	}
	_, err := Deploy(context.Background(), ledger.New(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "install ghost")
	assert.Contains(t, err.Error(), `unknown repo "nowhere"`)
}

func TestDeploy_AdminNeedsAdmin(t *testing.T) {
	d := &Deployment{
		DAOs: []DAOSpec{{Name: "main", Owner: "alice"}},
		Repos: []RepoSpec{{
			Subdomain:  "admin",
			Maintainer: "bob",
			Builds:     []BuildSpec{{Release: 1, Setup: SetupSpec{Type: SetupAdmin}, ReleaseMetadata: "r"}},
		}},
		Installs: []InstallSpec{{Name: "p", DAO: "main", Repo: "admin", Version: "v1.1"}},
	}
	_, err := Deploy(context.Background(), ledger.New(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin")
}

func mustResolve(t *testing.T, env *Env, name string) ir.Address {
	t.Helper()
	addr, err := env.Resolve(name)
	require.NoError(t, err)
	return addr
}

func TestCompileDeployment_Conditions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ok   bool
	}{
		{"lua", `dao: m: owner: "a"
			condition: c: lua: "function check() return true end"`, true},
		{"two evaluators", `dao: m: owner: "a"
			condition: c: {lua: "x", callers: ["b"]}`, false},
		{"none", `dao: m: owner: "a"
			condition: c: {}`, false},
		{"forward reference", `dao: m: owner: "a"
			condition: c: all_of: ["d"]
			condition: d: callers: ["b"]`, false},
		{"combinator", `dao: m: owner: "a"
			condition: d: callers: ["b"]
			condition: c: any_of: ["d"]`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.src)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "condition", ce.Field)
		})
	}
}

func TestDeploy_LuaConditionGrant(t *testing.T) {
	d, err := compile(t, `
		dao: main: owner: "alice"
		condition: bob_only: lua: """
			function check(where, who, permission, data)
				return permission == "SET_METADATA_PERMISSION"
			end
			"""
		grant: [{dao: "main", where: "main", who: "bob", permission: "SET_METADATA_PERMISSION", condition: "bob_only"}]
	`)
	require.NoError(t, err)

	env, err := Deploy(context.Background(), ledger.New(), d)
	require.NoError(t, err)
	defer env.Close()

	main, err := env.DAO("main")
	require.NoError(t, err)
	bob := mustResolve(t, env, "bob")
	assert.True(t, main.IsGranted(main.Address(), bob, dao.SetMetadataPermissionID, nil))
	cond, ok := main.Entry(main.Address(), bob, dao.SetMetadataPermissionID)
	require.True(t, ok)
	assert.Equal(t, mustResolve(t, env, "bob_only"), cond)
}

func TestEnv_Resolve(t *testing.T) {
	env := newEnv(ledger.New())

	addr, err := env.Resolve("dave")
	require.NoError(t, err)
	assert.Equal(t, ir.LabelAddress("dave"), addr)
	assert.Equal(t, "dave", env.Name(addr))

	raw := ir.LabelAddress("raw")
	got, err := env.Resolve(raw.String())
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.Equal(t, raw.String(), env.Name(raw))

	anyAddr, err := env.Resolve("any")
	require.NoError(t, err)
	assert.Equal(t, ir.Any, anyAddr)

	_, err = env.Resolve("")
	assert.Error(t, err)

	assert.Error(t, env.Bind("dave", ir.LabelAddress("other")))
	assert.Equal(t, env.Deployer, env.names[NameDeployer])
}
