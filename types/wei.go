package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Wei is an unsigned 256-bit integer, the native value/fee unit of the
// protocol (§3). It wraps uint256.Int rather than math/big.Int because
// the wire format is bounded at 256 bits and uint256 avoids an
// allocation per arithmetic op.
type Wei struct {
	v uint256.Int
}

// ZeroWei is the additive identity; it serializes as "0x0" per §3.
var ZeroWei = Wei{}

// WeiFromUint64 constructs a Wei from a uint64 value.
func WeiFromUint64(v uint64) Wei {
	var w Wei
	w.v.SetUint64(v)
	return w
}

// ParseWei parses the shortest-big-endian-hex wire form ("0x0" for zero,
// "0x"+minimal hex otherwise). An empty string is treated as zero.
func ParseWei(s string) (Wei, error) {
	var w Wei
	if s == "" || s == "0x" || s == "0x0" {
		return w, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return w, fmt.Errorf("wei value %q missing 0x prefix", s)
	}
	trimmed := strings.TrimPrefix(s, "0x")
	if len(trimmed) == 0 {
		return w, fmt.Errorf("wei value %q has no digits", s)
	}
	if err := w.v.SetFromHex(s); err != nil {
		return w, fmt.Errorf("invalid wei value %q: %w", s, err)
	}
	return w, nil
}

// String renders the minimal big-endian hex form; zero is "0x0".
func (w Wei) String() string {
	if w.v.IsZero() {
		return "0x0"
	}
	return w.v.Hex()
}

// Uint256 returns a copy of the underlying uint256.Int.
func (w Wei) Uint256() uint256.Int {
	return w.v
}

// IsZero reports whether the value is zero.
func (w Wei) IsZero() bool {
	return w.v.IsZero()
}

// Add returns w+other without mutating either operand.
func (w Wei) Add(other Wei) Wei {
	var out Wei
	out.v.Add(&w.v, &other.v)
	return out
}

// Mul returns w*factor without mutating either operand.
func (w Wei) Mul(factor uint64) Wei {
	var out Wei
	var f uint256.Int
	f.SetUint64(factor)
	out.v.Mul(&w.v, &f)
	return out
}

// Cmp compares w to other: -1, 0, or 1.
func (w Wei) Cmp(other Wei) int {
	return w.v.Cmp(&other.v)
}

func (w Wei) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

func (w *Wei) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseWei(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
