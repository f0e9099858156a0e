package types

import (
	"fmt"
	"strconv"
	"strings"
)

// BlockTag identifies a block by symbolic tag or by number. Both forms
// are first-class and the reader facade never silently converts one into
// the other (§9 open question: the source sometimes prefers "latest"
// even when a numeric form is available, and callers depend on it).
type BlockTag struct {
	symbol string // one of the symbolic tags, or "" when numeric
	number uint64
	isNum  bool
}

var (
	Latest    = BlockTag{symbol: "latest"}
	Pending   = BlockTag{symbol: "pending"}
	Earliest  = BlockTag{symbol: "earliest"}
	Finalized = BlockTag{symbol: "finalized"}
	Safe      = BlockTag{symbol: "safe"}
)

// BlockNumber constructs a numeric block tag.
func BlockNumber(n uint64) BlockTag {
	return BlockTag{number: n, isNum: true}
}

// String renders the wire form used as a JSON-RPC parameter: the
// symbolic tag verbatim, or "0x"+minimal-hex of the block number.
func (t BlockTag) String() string {
	if t.isNum {
		return "0x" + strconv.FormatUint(t.number, 16)
	}
	if t.symbol == "" {
		return "latest"
	}
	return t.symbol
}

// IsNumber reports whether this tag carries an explicit block number.
func (t BlockTag) IsNumber() bool {
	return t.isNum
}

// Number returns the numeric value and true if this is a numeric tag.
func (t BlockTag) Number() (uint64, bool) {
	return t.number, t.isNum
}

// ParseBlockTag parses either a symbolic tag or a "0x..." numeric string.
func ParseBlockTag(s string) (BlockTag, error) {
	switch s {
	case "latest":
		return Latest, nil
	case "pending":
		return Pending, nil
	case "earliest":
		return Earliest, nil
	case "finalized":
		return Finalized, nil
	case "safe":
		return Safe, nil
	}
	if !strings.HasPrefix(s, "0x") {
		return BlockTag{}, fmt.Errorf("block tag %q is neither a known symbol nor 0x-prefixed", s)
	}
	n, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return BlockTag{}, fmt.Errorf("invalid block number %q: %w", s, err)
	}
	return BlockNumber(n), nil
}
