package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/govkit/internal/ir"
)

// marshalFields converts event fields to canonical JSON TEXT for storage.
func marshalFields(fields ir.Fields) (string, error) {
	if fields == nil {
		fields = ir.Fields{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses canonical JSON TEXT to event fields. Numbers decode
// as json.Number to avoid float64 precision loss.
func unmarshalFields(data string) (ir.Fields, error) {
	if data == "" || data == "{}" {
		return ir.Fields{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var fields ir.Fields
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}

// errorText returns the message and code stored for a reverted transaction.
func errorText(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	return err.Error(), string(ir.CodeOf(err))
}
