package types

import (
	"encoding/json"
	"fmt"
)

// Commands and events travel as externally tagged sum types: a data-carrying
// variant is a single-key object {"Variant": {...fields}} and a unit variant
// is the bare string "Variant".

// MarshalTagged encodes a data-carrying variant.
func MarshalTagged(tag string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: payload})
}

// MarshalUnit encodes a unit variant.
func MarshalUnit(tag string) ([]byte, error) {
	return json.Marshal(tag)
}

// UnmarshalTagged splits a tagged value into its variant name and raw
// payload. Unit variants yield a nil payload; the single-key object form
// {"Variant": {}} is accepted for them as well.
func UnmarshalTagged(data []byte) (string, json.RawMessage, error) {
	trimmed := firstByte(data)
	switch trimmed {
	case '"':
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, err
		}
		return tag, nil, nil
	case '{':
		var object map[string]json.RawMessage
		if err := json.Unmarshal(data, &object); err != nil {
			return "", nil, err
		}
		if len(object) != 1 {
			return "", nil, fmt.Errorf("tagged value must have exactly one variant, got %d", len(object))
		}
		for tag, payload := range object {
			return tag, payload, nil
		}
	}
	return "", nil, fmt.Errorf("tagged value must be a string or a single-key object")
}

func firstByte(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
