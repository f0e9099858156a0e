package tx

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/arcsign/evmrpc/types"
)

// Kind tags which envelope shape an UnsignedTransaction encodes as.
type Kind int

const (
	Legacy Kind = iota
	Eip1559
	Eip4844
)

// Signature is a canonical (r, s, yParity) signature (§6). The CORE
// derives the legacy EIP-155 v value itself; typed envelopes carry
// yParity directly.
type Signature struct {
	R       types.Hash
	S       types.Hash
	YParity uint8
}

// UnsignedTransaction is the tagged variant described in §6: each Kind
// populates only the fields its encoding needs.
type UnsignedTransaction struct {
	Kind  Kind
	Nonce uint64
	To    *types.Address // nil for contract creation
	Value types.Wei
	Data  types.HexData
	Gas   uint64

	// Legacy
	GasPrice types.Wei

	// Eip1559 and Eip4844
	GasTipCap  types.Wei
	GasFeeCap  types.Wei
	AccessList types.AccessList

	// Eip4844 only
	BlobFeeCap types.Wei
	BlobHashes []types.Hash
}

func addressOrEmpty(a *types.Address) []byte {
	if a == nil {
		return nil
	}
	b := a.Bytes()
	return b
}

func accessListForRLP(al types.AccessList) [][]interface{} {
	al = al.Normalize()
	out := make([][]interface{}, len(al))
	for i, entry := range al {
		keys := make([][]byte, len(entry.StorageKeys))
		for j, k := range entry.StorageKeys {
			keys[j] = k.Bytes()
		}
		out[i] = []interface{}{common.BytesToAddress(entry.Address.Bytes()), keys}
	}
	return out
}

func weiBig(w types.Wei) *big.Int {
	u := w.Uint256()
	return u.ToBig()
}

// encodeForSigning produces the preimage that is keccak-hashed and
// signed (§6): the RLP-encoded field list, prefixed by the EIP-2718 type
// byte for typed transactions.
func (u UnsignedTransaction) encodeForSigning(chainID uint64) ([]byte, error) {
	switch u.Kind {
	case Legacy:
		fields := []interface{}{
			u.Nonce,
			weiBig(u.GasPrice),
			u.Gas,
			addressOrEmpty(u.To),
			weiBig(u.Value),
			[]byte(u.Data),
			chainID, uint(0), uint(0), // EIP-155: chainId, 0, 0
		}
		return rlp.EncodeToBytes(fields)

	case Eip1559:
		fields := []interface{}{
			chainID,
			u.Nonce,
			weiBig(u.GasTipCap),
			weiBig(u.GasFeeCap),
			u.Gas,
			addressOrEmpty(u.To),
			weiBig(u.Value),
			[]byte(u.Data),
			accessListForRLP(u.AccessList),
		}
		body, err := rlp.EncodeToBytes(fields)
		if err != nil {
			return nil, err
		}
		return append([]byte{0x02}, body...), nil

	case Eip4844:
		blobHashes := make([][]byte, len(u.BlobHashes))
		for i, h := range u.BlobHashes {
			blobHashes[i] = h.Bytes()
		}
		fields := []interface{}{
			chainID,
			u.Nonce,
			weiBig(u.GasTipCap),
			weiBig(u.GasFeeCap),
			u.Gas,
			addressOrEmpty(u.To),
			weiBig(u.Value),
			[]byte(u.Data),
			accessListForRLP(u.AccessList),
			weiBig(u.BlobFeeCap),
			blobHashes,
		}
		body, err := rlp.EncodeToBytes(fields)
		if err != nil {
			return nil, err
		}
		return append([]byte{0x03}, body...), nil

	default:
		return nil, fmt.Errorf("unknown transaction kind %d", u.Kind)
	}
}

// legacyV computes the EIP-155 v value: chainId*2 + 35 + yParity.
func legacyV(chainID uint64, yParity uint8) uint64 {
	return chainID*2 + 35 + uint64(yParity)
}

// encodeAsEnvelope produces the raw transaction bytes submitted via
// eth_sendRawTransaction (§6): RLP of the field list plus signature,
// prefixed by the type byte for typed transactions.
func (u UnsignedTransaction) encodeAsEnvelope(chainID uint64, sig Signature) ([]byte, error) {
	r := new(big.Int).SetBytes(sig.R.Bytes())
	s := new(big.Int).SetBytes(sig.S.Bytes())

	switch u.Kind {
	case Legacy:
		fields := []interface{}{
			u.Nonce,
			weiBig(u.GasPrice),
			u.Gas,
			addressOrEmpty(u.To),
			weiBig(u.Value),
			[]byte(u.Data),
			legacyV(chainID, sig.YParity), r, s,
		}
		return rlp.EncodeToBytes(fields)

	case Eip1559:
		fields := []interface{}{
			chainID,
			u.Nonce,
			weiBig(u.GasTipCap),
			weiBig(u.GasFeeCap),
			u.Gas,
			addressOrEmpty(u.To),
			weiBig(u.Value),
			[]byte(u.Data),
			accessListForRLP(u.AccessList),
			sig.YParity, r, s,
		}
		body, err := rlp.EncodeToBytes(fields)
		if err != nil {
			return nil, err
		}
		return append([]byte{0x02}, body...), nil

	case Eip4844:
		blobHashes := make([][]byte, len(u.BlobHashes))
		for i, h := range u.BlobHashes {
			blobHashes[i] = h.Bytes()
		}
		fields := []interface{}{
			chainID,
			u.Nonce,
			weiBig(u.GasTipCap),
			weiBig(u.GasFeeCap),
			u.Gas,
			addressOrEmpty(u.To),
			weiBig(u.Value),
			[]byte(u.Data),
			accessListForRLP(u.AccessList),
			weiBig(u.BlobFeeCap),
			blobHashes,
			sig.YParity, r, s,
		}
		body, err := rlp.EncodeToBytes(fields)
		if err != nil {
			return nil, err
		}
		return append([]byte{0x03}, body...), nil

	default:
		return nil, fmt.Errorf("unknown transaction kind %d", u.Kind)
	}
}

// BlobSidecar carries the blob data, KZG commitments, and KZG proofs
// that accompany an EIP-4844 transaction over the network (not part of
// the signed envelope, which only carries the versioned hashes).
type BlobSidecar struct {
	Blobs       [][]byte
	Commitments [][]byte
	Proofs      [][]byte
}

// encodeAsNetworkWrapper wraps a signed EIP-4844 envelope with its blob
// sidecar for submission, per §6's "network form wraps the signed
// envelope with a sidecar (blobs, commitments, proofs)". KZG commitments
// and proofs are not computed in this module; this only assembles the
// wire format from the already-computed sidecar contents the caller
// supplies.
func encodeAsNetworkWrapper(envelope []byte, sidecar BlobSidecar) ([]byte, error) {
	if len(envelope) == 0 || envelope[0] != 0x03 {
		return nil, fmt.Errorf("network wrapper requires a type-0x03 envelope")
	}
	// The wrapper nests the signed transaction's RLP field list
	// (everything after the type byte) as its first element, followed by
	// the three sidecar lists, re-prefixed with the same type byte:
	// 0x03 || rlp([tx_fields, blobs, commitments, proofs]).
	var inner []interface{}
	if err := rlp.DecodeBytes(envelope[1:], &inner); err != nil {
		return nil, fmt.Errorf("decode inner envelope: %w", err)
	}
	fields := []interface{}{inner, sidecar.Blobs, sidecar.Commitments, sidecar.Proofs}
	body, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return nil, err
	}
	return append([]byte{0x03}, body...), nil
}
