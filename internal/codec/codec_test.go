package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govkit/internal/ir"
)

type grantArgs struct {
	Where ir.Address      `cbor:"1,keyasint"`
	Who   ir.Address      `cbor:"2,keyasint"`
	ID    ir.PermissionID `cbor:"3,keyasint"`
}

func TestEncodeDecode(t *testing.T) {
	args := grantArgs{
		Where: ir.LabelAddress("dao"),
		Who:   ir.LabelAddress("alice"),
		ID:    ir.NewPermissionID("EXECUTE_PERMISSION"),
	}

	data, err := Encode("grant", args)
	require.NoError(t, err)

	c, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "grant", c.Method)

	var got grantArgs
	require.NoError(t, c.Bind(&got))
	assert.Equal(t, args, got)
}

func TestEncode_Deterministic(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "c": "x"}
	b := map[string]any{"c": "x", "a": 1, "b": 2}

	x, err := Marshal(a)
	require.NoError(t, err)
	y, err := Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, x, y)
}

func TestAddress_EncodesAsText(t *testing.T) {
	addr := ir.LabelAddress("alice")
	data, err := Marshal(addr)
	require.NoError(t, err)

	diag, err := Diagnose(data)
	require.NoError(t, err)
	assert.Equal(t, `"`+addr.String()+`"`, diag)
}

func TestMultiTargetPermission_RoundTrip(t *testing.T) {
	in := []ir.MultiTargetPermission{{
		Operation:    ir.OpGrantWithCondition,
		Where:        ir.LabelAddress("dao"),
		Who:          ir.Any,
		Condition:    ir.LabelAddress("cond"),
		PermissionID: ir.NewPermissionID("EXECUTE_PERMISSION"),
	}}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out []ir.MultiTargetPermission
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)

	_, err = Decode([]byte{0xff})
	assert.Error(t, err)

	_, err = Decode(MustMarshal(Calldata{}))
	assert.Error(t, err)

	c, err := Decode(MustEncode("noop", nil))
	require.NoError(t, err)
	var v grantArgs
	assert.Error(t, c.Bind(&v))
}
