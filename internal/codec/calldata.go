package codec

import (
	"fmt"
)

// Calldata is the envelope of a ledger call.
type Calldata struct {
	Method string     `cbor:"1,keyasint"`
	Args   RawMessage `cbor:"2,keyasint,omitempty"`
}

// Encode builds calldata for method with args. A nil args encodes no
// arguments.
func Encode(method string, args any) ([]byte, error) {
	c := Calldata{Method: method}
	if args != nil {
		raw, err := Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode %s args: %w", method, err)
		}
		c.Args = raw
	}
	return Marshal(c)
}

// MustEncode is Encode for arguments known to encode.
func MustEncode(method string, args any) []byte {
	b, err := Encode(method, args)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses a calldata envelope.
func Decode(data []byte) (Calldata, error) {
	var c Calldata
	if len(data) == 0 {
		return c, fmt.Errorf("empty calldata")
	}
	if err := Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode calldata: %w", err)
	}
	if c.Method == "" {
		return c, fmt.Errorf("calldata has no method")
	}
	return c, nil
}

// Bind decodes the arguments into v.
func (c Calldata) Bind(v any) error {
	if len(c.Args) == 0 {
		return fmt.Errorf("%s: missing arguments", c.Method)
	}
	if err := Unmarshal(c.Args, v); err != nil {
		return fmt.Errorf("%s: decode arguments: %w", c.Method, err)
	}
	return nil
}
