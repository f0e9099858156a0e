// Package types defines the stable wire types shared by every other
// package in this module: Address, Hash, Wei, HexData, AccessListEntry,
// and BlockTag. None of these types depend on rpc, tx, or gas, so they
// can be imported freely without cycles.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is a 20-byte Ethereum account or contract address. The zero
// value is the all-zero address, not an invalid one.
type Address [20]byte

// ParseAddress parses a 0x-prefixed 40-hex-digit string into an Address.
// Parsing is case-insensitive; no checksum validation is performed here
// (checksum validation, per §6, belongs to the ABI/hex-codec collaborator).
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := decodeFixedHex(s, len(a))
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is ParseAddress but panics on error; intended for
// tests and constant-like initialization.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the canonical lowercase 0x-prefixed form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is all zero bytes.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns a copy of the underlying 20 bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// decodeFixedHex decodes a 0x-prefixed hex string into exactly n bytes.
func decodeFixedHex(s string, n int) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("missing 0x prefix")
	}
	s = s[2:]
	if len(s) != n*2 {
		return nil, fmt.Errorf("expected %d hex chars, got %d", n*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}
