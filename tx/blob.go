package tx

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/arcsign/evmrpc/types"
)

// blobCommitmentVersion is the EIP-4844 KZG commitment version byte.
const blobCommitmentVersion = 0x01

// VersionedHashFor computes the EIP-4844 versioned hash for a KZG
// commitment: 0x01 || sha256(commitment)[1:32]. This uses SHA-256, a
// distinct standard primitive from the protocol's Keccak256 capability,
// so it's computed directly rather than through an injected interface.
func VersionedHashFor(commitment []byte) types.Hash {
	digest := sha256.Sum256(commitment)
	digest[0] = blobCommitmentVersion
	hash, err := types.ParseHash("0x" + hex.EncodeToString(digest[:]))
	if err != nil {
		// digest is always exactly 32 bytes; this cannot fail.
		panic(err)
	}
	return hash
}
