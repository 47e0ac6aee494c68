package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govkit/internal/ir"
)

var (
	repoAddr   = ir.LabelAddress("repo")
	helperA    = ir.LabelAddress("helper-a")
	helperB    = ir.LabelAddress("helper-b")
	hashDAO    = ir.LabelAddress("dao")
	hashPlugin = ir.LabelAddress("plugin")
)

func runHash(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewHashCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(buf.String()), err
}

func TestHashHelpers(t *testing.T) {
	out, err := runHash(t, "text", "helpers", helperA.String(), helperB.String())
	require.NoError(t, err)
	assert.Equal(t, ir.HashHelpers([]ir.Address{helperA, helperB}).String(), out)

	reversed, err := runHash(t, "text", "helpers", helperB.String(), helperA.String())
	require.NoError(t, err)
	assert.NotEqual(t, out, reversed)
}

func TestHashHelpersEmpty(t *testing.T) {
	out, err := runHash(t, "text", "helpers")
	require.NoError(t, err)
	assert.Equal(t, ir.HashHelpers(nil).String(), out)
}

func TestHashHelpersInvalidAddress(t *testing.T) {
	_, err := runHash(t, "text", "helpers", "0x1234")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid address "0x1234"`)
}

func TestHashPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- operation: grant
  where: `+repoAddr.String()+`
  who: `+helperA.String()+`
  permission: EXECUTE_PERMISSION
- operation: grantWithCondition
  where: `+repoAddr.String()+`
  who: `+helperB.String()+`
  condition: `+helperA.String()+`
  permission: SET_METADATA_PERMISSION
`), 0o644))

	out, err := runHash(t, "text", "permissions", path)
	require.NoError(t, err)

	want := ir.HashPermissions([]ir.MultiTargetPermission{
		{Operation: ir.OpGrant, Where: repoAddr, Who: helperA, PermissionID: ir.NewPermissionID("EXECUTE_PERMISSION")},
		{Operation: ir.OpGrantWithCondition, Where: repoAddr, Who: helperB, Condition: helperA, PermissionID: ir.NewPermissionID("SET_METADATA_PERMISSION")},
	})
	assert.Equal(t, want.String(), out)
}

func TestHashPermissionsErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "- [", "failed to parse permissions file"},
		{"bad operation", "- {operation: grab, where: " + repoAddr.String() + ", who: " + helperA.String() + ", permission: X}", "unknown permission operation"},
		{"bad where", "- {operation: grant, where: nowhere, who: " + helperA.String() + ", permission: X}", "where:"},
		{"missing permission", "- {operation: grant, where: " + repoAddr.String() + ", who: " + helperA.String() + "}", "empty permission id"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "perms"+string(rune('a'+i))+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := runHash(t, "text", "permissions", path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := runHash(t, "text", "permissions", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read permissions file")
}

func TestHashPrepared(t *testing.T) {
	permsHash := ir.HashPermissions(nil)
	helpersHash := ir.HashHelpers([]ir.Address{helperA})

	out, err := runHash(t, "text", "prepared",
		"--version", "v1.2",
		"--repo", repoAddr.String(),
		"--permissions-hash", permsHash.String(),
		"--helpers-hash", helpersHash.String(),
		"--data", "0x0102",
		"--phase", "update",
	)
	require.NoError(t, err)

	want := ir.PreparedSetupID(ir.VersionTag{Release: 1, Build: 2}, repoAddr, permsHash, helpersHash, ir.HashData([]byte{1, 2}), ir.PreparationUpdate)
	assert.Equal(t, want.String(), out)
}

func TestHashPreparedDefaults(t *testing.T) {
	out, err := runHash(t, "text", "prepared", "--version", "v1.1", "--repo", repoAddr.String())
	require.NoError(t, err)

	want := ir.PreparedSetupID(ir.VersionTag{Release: 1, Build: 1}, repoAddr,
		ir.HashPermissions(nil), ir.HashHelpers(nil), ir.HashData(nil), ir.PreparationInstallation)
	assert.Equal(t, want.String(), out)
}

func TestHashPreparedErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing version", []string{"--repo", repoAddr.String()}, "--version and --repo are required"},
		{"bad version", []string{"--version", "one", "--repo", repoAddr.String()}, "invalid --version"},
		{"bad repo", []string{"--version", "v1.1", "--repo", "repo"}, "invalid --repo"},
		{"bad phase", []string{"--version", "v1.1", "--repo", repoAddr.String(), "--phase", "migrate"}, `invalid --phase "migrate"`},
		{"bad data", []string{"--version", "v1.1", "--repo", repoAddr.String(), "--data", "0xzz"}, "invalid --data"},
		{"bad helpers hash", []string{"--version", "v1.1", "--repo", repoAddr.String(), "--helpers-hash", "0x01"}, "invalid --helpers-hash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runHash(t, "text", append([]string{"prepared"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestHashApplied(t *testing.T) {
	helpersHash := ir.HashHelpers([]ir.Address{helperA, helperB})
	out, err := runHash(t, "text", "applied", "--version", "v2.3", "--repo", repoAddr.String(), "--helpers-hash", helpersHash.String())
	require.NoError(t, err)
	assert.Equal(t, ir.AppliedSetupID(ir.VersionTag{Release: 2, Build: 3}, repoAddr, helpersHash).String(), out)
}

func TestHashInstallation(t *testing.T) {
	out, err := runHash(t, "text", "installation", hashDAO.String(), hashPlugin.String())
	require.NoError(t, err)
	assert.Equal(t, ir.PluginInstallationID(hashDAO, hashPlugin).String(), out)

	_, err = runHash(t, "text", "installation", hashDAO.String())
	require.Error(t, err)
}

func TestHashJSON(t *testing.T) {
	out, err := runHash(t, "json", "installation", hashDAO.String(), hashPlugin.String())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   HashResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "installation", resp.Data.Kind)
	assert.Equal(t, ir.PluginInstallationID(hashDAO, hashPlugin).String(), resp.Data.Hash)
}
