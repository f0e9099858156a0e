package types

import (
	"encoding/hex"
	"encoding/json"
	"strings"
)

// HexData is variable-length byte data serialized as 0x-prefixed hex.
// The empty value serializes as "0x", never "0x0" — it has no numeric
// interpretation, unlike Wei.
type HexData []byte

// EmptyHexData is the canonical zero-length value.
var EmptyHexData = HexData{}

// ParseHexData parses a 0x-prefixed hex string, accepting "0x" as empty.
func ParseHexData(s string) (HexData, error) {
	if s == "" || s == "0x" || s == "0X" {
		return HexData{}, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, &hexDataError{s}
	}
	trimmed := s[2:]
	if len(trimmed)%2 != 0 {
		trimmed = "0" + trimmed
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, &hexDataError{s}
	}
	return HexData(b), nil
}

type hexDataError struct{ raw string }

func (e *hexDataError) Error() string { return "invalid hex data: " + e.raw }

func (d HexData) String() string {
	if len(d) == 0 {
		return "0x"
	}
	return "0x" + hex.EncodeToString(d)
}

func (d HexData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *HexData) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHexData(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
