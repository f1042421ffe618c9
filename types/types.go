package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ID32 is the 32-byte opaque identifier used for transactions, orders and
// transfers. On the wire it is a transparent byte array; path segments and
// map keys use the lowercase hex form.
type ID32 [32]byte

// ParseID32 decodes the lowercase hex form of an identifier.
func ParseID32(s string) (ID32, error) {
	var id ID32
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("invalid id: expected %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Hex returns the lowercase hex form of the identifier.
func (id ID32) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id ID32) String() string {
	return id.Hex()
}

// MarshalJSON emits the transparent byte-array form.
func (id ID32) MarshalJSON() ([]byte, error) {
	return json.Marshal([32]byte(id))
}

// UnmarshalJSON accepts either the byte-array form or a hex string.
func (id *ID32) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseID32(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}
	var raw [32]byte
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*id = raw
	return nil
}

// MarshalText lets ID32 serve as a JSON object key (hex form).
func (id ID32) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

func (id *ID32) UnmarshalText(text []byte) error {
	parsed, err := ParseID32(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Asset is a short asset symbol such as "BTC".
type Asset = string

// Amount is an unsigned monetary amount in the asset's smallest unit.
type Amount = uint64

// Timestamp is an epoch-second timestamp.
type Timestamp = uint64

// CheckedAdd panics on overflow. Balance arithmetic in aggregate apply code
// must never overflow; a violation is a programming error, not a user error.
func CheckedAdd(a, b Amount) Amount {
	sum := a + b
	if sum < a {
		panic(fmt.Sprintf("amount overflow: %d + %d", a, b))
	}
	return sum
}

// CheckedSub panics on underflow.
func CheckedSub(a, b Amount) Amount {
	if b > a {
		panic(fmt.Sprintf("amount underflow: %d - %d", a, b))
	}
	return a - b
}

// AddWouldOverflow reports whether a+b exceeds the Amount range. Command
// handlers use this to reject a transaction before the event is emitted.
func AddWouldOverflow(a, b Amount) bool {
	return a+b < a
}
