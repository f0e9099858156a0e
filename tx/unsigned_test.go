package tx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/evmrpc/types"
)

func mustAddr(t *testing.T, s string) types.Address {
	t.Helper()
	a, err := types.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func TestEncodeForSigningLegacyIncludesChainID(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000001")
	unsigned := UnsignedTransaction{
		Kind:     Legacy,
		Nonce:    1,
		To:       &to,
		Value:    types.WeiFromUint64(1000),
		GasPrice: types.WeiFromUint64(1_000_000_000),
		Gas:      21000,
	}
	preimage, err := unsigned.encodeForSigning(1)
	require.NoError(t, err)
	require.NotEmpty(t, preimage)
	// EIP-155 preimage ends with chainId, 0, 0: RLP 0x01, 0x80, 0x80.
	require.Equal(t, []byte{0x01, 0x80, 0x80}, preimage[len(preimage)-3:])
}

func TestEncodeForSigningTypedHasTypeByte(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000002")
	unsigned := UnsignedTransaction{
		Kind:      Eip1559,
		Nonce:     0,
		To:        &to,
		Value:     types.ZeroWei,
		GasFeeCap: types.WeiFromUint64(2_000_000_000),
		GasTipCap: types.WeiFromUint64(1_000_000_000),
		Gas:       21000,
	}
	preimage, err := unsigned.encodeForSigning(11155111)
	require.NoError(t, err)
	require.Equal(t, byte(0x02), preimage[0])
}

func TestEncodeAsEnvelopeRoundTripsTypeByte(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000003")
	unsigned := UnsignedTransaction{
		Kind:      Eip4844,
		Nonce:     5,
		To:        &to,
		Value:     types.ZeroWei,
		GasFeeCap: types.WeiFromUint64(3_000_000_000),
		GasTipCap: types.WeiFromUint64(1_000_000_000),
		Gas:       21000,
		BlobFeeCap: types.WeiFromUint64(1),
		BlobHashes: []types.Hash{{0x01}},
	}
	sig := Signature{YParity: 1}
	envelope, err := unsigned.encodeAsEnvelope(1, sig)
	require.NoError(t, err)
	require.Equal(t, byte(0x03), envelope[0])
}

func TestLegacyVEip155(t *testing.T) {
	require.Equal(t, uint64(37), legacyV(1, 0))
	require.Equal(t, uint64(38), legacyV(1, 1))
}

func TestEncodeAsNetworkWrapperRequiresBlobType(t *testing.T) {
	legacyEnvelope := []byte{0x00}
	_, err := encodeAsNetworkWrapper(legacyEnvelope, BlobSidecar{})
	require.Error(t, err)
}

func TestVersionedHashForSetsVersionByte(t *testing.T) {
	hash := VersionedHashFor([]byte("fake-commitment"))
	require.Equal(t, byte(0x01), hash.Bytes()[0])
}
