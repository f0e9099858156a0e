package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		{name: "lowercase", input: "0x0102030405060708090a0b0c0d0e0f1011121314"},
		{name: "mixed case accepted", input: "0x0102030405060708090A0B0C0D0E0F1011121314"},
		{name: "missing prefix", input: "0102030405060708090a0b0c0d0e0f1011121314", expectError: true},
		{name: "too short", input: "0x0102", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "0x0102030405060708090a0b0c0d0e0f1011121314", addr.String())
		})
	}
}

func TestAddressJSON(t *testing.T) {
	addr := MustParseAddress("0x0102030405060708090a0b0c0d0e0f1011121314")
	data, err := json.Marshal(addr)
	require.NoError(t, err)
	assert.Equal(t, `"0x0102030405060708090a0b0c0d0e0f1011121314"`, string(data))

	var round Address
	require.NoError(t, json.Unmarshal(data, &round))
	assert.Equal(t, addr, round)
}

func TestWeiZeroSerializesAs0x0(t *testing.T) {
	assert.Equal(t, "0x0", ZeroWei.String())
	assert.Equal(t, "0x0", WeiFromUint64(0).String())
}

func TestWeiParseAndRoundTrip(t *testing.T) {
	w, err := ParseWei("0x64")
	require.NoError(t, err)
	assert.Equal(t, "0x64", w.String())

	w2, err := ParseWei("")
	require.NoError(t, err)
	assert.True(t, w2.IsZero())
}

func TestWeiAddAndMul(t *testing.T) {
	a := WeiFromUint64(100)
	b := WeiFromUint64(50)
	assert.Equal(t, WeiFromUint64(150), a.Add(b))
	assert.Equal(t, WeiFromUint64(200), a.Mul(2))
}

func TestHexDataEmptySerializesAs0x(t *testing.T) {
	assert.Equal(t, "0x", EmptyHexData.String())

	parsed, err := ParseHexData("0x")
	require.NoError(t, err)
	assert.Len(t, parsed, 0)
}

func TestHexDataRoundTrip(t *testing.T) {
	d, err := ParseHexData("0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", d.String())
}

func TestAccessListNormalizeNilToEmpty(t *testing.T) {
	var l AccessList
	norm := l.Normalize()
	assert.NotNil(t, norm)
	assert.Len(t, norm, 0)
}

func TestBlockTagSymbolsAndNumbers(t *testing.T) {
	assert.Equal(t, "latest", Latest.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "0x10", BlockNumber(16).String())

	tag, err := ParseBlockTag("finalized")
	require.NoError(t, err)
	assert.Equal(t, Finalized, tag)

	tag2, err := ParseBlockTag("0x2a")
	require.NoError(t, err)
	n, isNum := tag2.Number()
	require.True(t, isNum)
	assert.Equal(t, uint64(42), n)
}
