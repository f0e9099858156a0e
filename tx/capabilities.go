// Package tx implements the transaction data model and signer facade
// (component C5): building unsigned envelopes, routing them through the
// injected crypto/ABI capabilities, and submitting + tracking the result.
// Grounded on the teacher's ethereum/builder.go and ethereum/signer.go,
// generalized to keep keccak256, signing, revert decoding, and ABI work
// entirely behind interfaces instead of calling go-ethereum/crypto
// directly, per the narrowed CORE boundary.
package tx

import (
	"context"

	"github.com/arcsign/evmrpc/types"
)

// Keccak256 computes the 256-bit Keccak hash (not NIST SHA-3) used
// throughout the protocol. The CORE never hashes on its own.
type Keccak256 interface {
	Hash(data []byte) (types.Hash, error)
}

// Signer is the external key-holding collaborator. Address identifies
// which account's transactions/messages it will sign; SignTransaction
// and SignMessage may be backed by a local key, an HSM, or a hardware
// wallet prompt.
type Signer interface {
	Address(ctx context.Context) (types.Address, error)
	SignTransaction(ctx context.Context, unsigned UnsignedTransaction, chainID uint64) (Signature, error)
	SignMessage(ctx context.Context, message []byte) (Signature, error)
}

// RevertKind classifies a decoded revert payload (§6).
type RevertKind int

const (
	RevertUnknown RevertKind = iota
	RevertErrorString
	RevertPanic
	RevertCustomError
)

func (k RevertKind) String() string {
	switch k {
	case RevertErrorString:
		return "ERROR_STRING"
	case RevertPanic:
		return "PANIC"
	case RevertCustomError:
		return "CUSTOM_ERROR"
	default:
		return "UNKNOWN"
	}
}

// RevertDecoded is the decoded shape of a contract revert.
type RevertDecoded struct {
	Kind   RevertKind
	Reason string
	Raw    types.HexData
}

// RevertDecoder turns raw eth_call/receipt revert data (typically
// starting with selector 0x08c379a0 for Error(string) or 0x4e487b71 for
// Panic(uint256)) into a structured reason.
type RevertDecoder interface {
	Decode(raw types.HexData) (RevertDecoded, error)
}

// Abi is the external ABI encode/decode collaborator; the CORE never
// encodes or decodes application-level calldata itself.
type Abi interface {
	EncodeFunction(name string, args []interface{}) (types.HexData, error)
	Decode(returnData types.HexData, outType string) (interface{}, error)
	EventTopic(signature string) (types.Hash, error)
}
