package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash is a 32-byte block, transaction, or storage-slot hash.
type Hash [32]byte

// ParseHash parses a 0x-prefixed 64-hex-digit string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := decodeFixedHex(s, len(h))
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	copy(h[:], b)
	return h, nil
}

// MustParseHash is ParseHash but panics on error.
func MustParseHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) Bytes() []byte {
	out := make([]byte, len(h))
	copy(out, h[:])
	return out
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
