package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govkit/internal/ir"
)

func TestPermissionsCommand(t *testing.T) {
	db, names := deployBasic(t)

	buf, err := runCommand(t, NewPermissionsCommand, "json", "--db", db, "--dao", names["treasury"])
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   PermissionsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	result := resp.Data

	assert.Equal(t, names["treasury"], result.DAO)
	assert.Positive(t, result.LastSeq)
	assert.Empty(t, result.Frozen)

	assert.Contains(t, result.Permissions, PermissionRow{
		Where:      names["treasury"],
		Who:        names["carol"],
		Permission: "SET_METADATA_PERMISSION",
	})
	assert.Contains(t, result.Permissions, PermissionRow{
		Where:      names["treasury"],
		Who:        "any",
		Permission: "SET_METADATA_PERMISSION",
		Condition:  names["only_dave"],
	})
	assert.Contains(t, result.Permissions, PermissionRow{
		Where:      names["treasury"],
		Who:        names["processor"],
		Permission: "ROOT_PERMISSION",
	})
	assert.Contains(t, result.Permissions, PermissionRow{
		Where:      names["treasury"],
		Who:        names["treasury_admin"],
		Permission: "EXECUTE_PERMISSION",
	})
}

func TestPermissionsCommandText(t *testing.T) {
	db, names := deployBasic(t)

	buf, err := runCommand(t, NewPermissionsCommand, "text", "--db", db, "--dao", names["treasury"])
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "WHERE")
	assert.Contains(t, output, "SET_METADATA_PERMISSION")
	assert.Contains(t, output, names["only_dave"])
}

func TestPermissionsCommandUnknownDAO(t *testing.T) {
	db, _ := deployBasic(t)

	buf, err := runCommand(t, NewPermissionsCommand, "text", "--db", db, "--dao", ir.LabelAddress("nobody").String())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No permissions recorded")
}

func TestPermissionsCommandErrors(t *testing.T) {
	_, err := runCommand(t, NewPermissionsCommand, "text", "--db", "x.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "dao" not set`)

	_, err = runCommand(t, NewPermissionsCommand, "text", "--db", "x.db", "--dao", "treasury")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --dao")

	_, err = runCommand(t, NewPermissionsCommand, "text", "--db", filepath.Join(t.TempDir(), "missing.db"), "--dao", ir.LabelAddress("dao").String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not found")
}

func TestAddressLabel(t *testing.T) {
	assert.Equal(t, "any", addressLabel(ir.Any))
	a := ir.LabelAddress("alice")
	assert.Equal(t, a.String(), addressLabel(a))
}
