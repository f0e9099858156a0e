package tx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arcsign/evmrpc/gas"
	"github.com/arcsign/evmrpc/metrics"
	"github.com/arcsign/evmrpc/reader"
	"github.com/arcsign/evmrpc/retry"
	"github.com/arcsign/evmrpc/rpc"
	"github.com/arcsign/evmrpc/storage"
	"github.com/arcsign/evmrpc/types"
)

// Submitter drives build→sign→encode→submit→track, adapted from the
// teacher's EthereumAdapter.Broadcast (ethereum/adapter.go), generalized
// to route signing through the Signer capability instead of an embedded
// private key and to use the Keccak256 capability for hash computation.
type Submitter struct {
	Provider      rpc.Provider
	Reader        *reader.Reader
	Store         storage.TransactionStateStore
	Keccak        Keccak256
	RevertDecoder RevertDecoder
	Policy        retry.Policy
	// GasStrategy defaults fee and gas-limit fields a TransactionRequest
	// leaves unset (§4.4, §4.5 steps 2-3). The zero value is usable:
	// DefaultStrategy()'s buffer ratio applies.
	GasStrategy gas.Strategy
	// Profile describes the chain Send/SendAndWait builds transactions
	// for, informing GasStrategy's EIP-1559-vs-legacy choice (§4.4). A
	// nonzero Profile.ChainID is also checked against the node's chain id.
	Profile types.ChainProfile
	// Metrics records send/confirm lifecycle timings if set (nil is a
	// no-op).
	Metrics metrics.Recorder
}

// ChainMismatchError is surfaced when the node's reported chain id
// disagrees with the caller-supplied chain id or with a nonzero
// Profile.ChainID (§7).
type ChainMismatchError struct {
	Expected uint64
	Actual   uint64
}

func (e *ChainMismatchError) Error() string {
	return fmt.Sprintf("chain id mismatch: expected %d, node reports %d", e.Expected, e.Actual)
}

// RevertError wraps a decoded contract revert (§7).
type RevertError struct {
	Decoded RevertDecoded
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("execution reverted (%s): %s", e.Decoded.Kind, e.Decoded.Reason)
}

// InvalidSenderError is surfaced when the node rejects a broadcast
// because the recovered sender does not match the transaction's
// signature (§7, §4.5 step 7). Unlike an "already known" duplicate,
// this is never swallowed as success.
type InvalidSenderError struct {
	Cause error
}

func (e *InvalidSenderError) Error() string {
	return fmt.Sprintf("invalid sender: %s", e.Cause)
}

func (e *InvalidSenderError) Unwrap() error { return e.Cause }

// TimeoutError is surfaced by SendAndWait when the poll deadline expires
// before a receipt appears; it carries the hash so the caller can poll
// later (§7).
type TimeoutError struct {
	Hash types.Hash
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for transaction %s", e.Hash)
}

// verifyChainID fetches the node's chain id and compares it to
// expected and, when nonzero, to Profile.ChainID, per step 1 of the
// sign/submit flow (§4.5).
func (s *Submitter) verifyChainID(ctx context.Context, expected uint64) error {
	actual, err := s.Reader.ChainID(ctx)
	if err != nil {
		return err
	}
	if actual != expected {
		return &ChainMismatchError{Expected: expected, Actual: actual}
	}
	if s.Profile.ChainID != 0 && s.Profile.ChainID != actual {
		return &ChainMismatchError{Expected: s.Profile.ChainID, Actual: actual}
	}
	return nil
}

// sign computes the preimage, hashes it via the Keccak256 capability
// (the hash is not used further — the signer receives the full unsigned
// transaction, not a bare hash, per §6's signature), and asks signer for
// a Signature.
func (s *Submitter) sign(ctx context.Context, signer Signer, unsigned UnsignedTransaction, chainID uint64) (Signature, []byte, error) {
	preimage, err := unsigned.encodeForSigning(chainID)
	if err != nil {
		return Signature{}, nil, err
	}
	if _, err := s.Keccak.Hash(preimage); err != nil {
		return Signature{}, nil, fmt.Errorf("hash signing preimage: %w", err)
	}
	sig, err := signer.SignTransaction(ctx, unsigned, chainID)
	if err != nil {
		return Signature{}, nil, err
	}
	return sig, preimage, nil
}

// buildUnsigned resolves a TransactionRequest into a concrete
// UnsignedTransaction (§4.5 steps 2-4): a missing sender is recovered
// from the signer, a missing nonce is read via
// reader.TransactionCount(from, "pending"), and missing fee/gas-limit
// fields are defaulted through GasStrategy. Value and Data already
// default to their Go zero values on TransactionRequest itself.
func (s *Submitter) buildUnsigned(ctx context.Context, signer Signer, req TransactionRequest, chainID uint64) (UnsignedTransaction, error) {
	if err := req.Validate(); err != nil {
		return UnsignedTransaction{}, err
	}

	from := req.From
	if from == nil {
		addr, err := signer.Address(ctx)
		if err != nil {
			return UnsignedTransaction{}, fmt.Errorf("resolve sender: %w", err)
		}
		from = &addr
	}

	nonce := req.Nonce
	if nonce == nil {
		n, err := s.Reader.TransactionCount(ctx, *from, types.Pending)
		if err != nil {
			return UnsignedTransaction{}, fmt.Errorf("fetch pending nonce: %w", err)
		}
		nonce = &n
	}

	unsigned := UnsignedTransaction{
		Nonce:      *nonce,
		To:         req.To,
		Value:      req.Value,
		Data:       req.Data,
		AccessList: req.AccessList,
	}

	if req.IsEIP1559 {
		unsigned.Kind = Eip1559
	} else {
		unsigned.Kind = Legacy
	}

	needsFees := (req.IsEIP1559 && (req.MaxFeePerGas == nil || req.MaxPriorityFeePerGas == nil)) ||
		(!req.IsEIP1559 && req.GasPrice == nil)

	if needsFees {
		suggestion, err := s.GasStrategy.SuggestFees(ctx, s.Reader, s.Profile)
		if err != nil {
			return UnsignedTransaction{}, fmt.Errorf("suggest fees: %w", err)
		}
		if suggestion.FellBackToLegacy {
			unsigned.Kind = Legacy
			unsigned.GasPrice = suggestion.GasPrice
		} else {
			unsigned.Kind = Eip1559
			unsigned.GasFeeCap = suggestion.MaxFeePerGas
			unsigned.GasTipCap = suggestion.MaxPriorityFeePerGas
		}
	} else if req.IsEIP1559 {
		unsigned.GasFeeCap = *req.MaxFeePerGas
		unsigned.GasTipCap = *req.MaxPriorityFeePerGas
	} else {
		unsigned.GasPrice = *req.GasPrice
	}

	if req.GasLimit != nil {
		unsigned.Gas = *req.GasLimit
	} else {
		estimate, err := s.GasStrategy.EstimateGasLimit(ctx, s.Reader, reader.CallRequest{
			From:  from,
			To:    req.To,
			Value: req.Value,
			Data:  req.Data,
		})
		if err != nil {
			return UnsignedTransaction{}, fmt.Errorf("estimate gas limit: %w", err)
		}
		unsigned.Gas = estimate
	}

	return unsigned, nil
}

// send builds, signs, encodes, and submits a transaction, returning its
// hash alongside the UnsignedTransaction it built so callers that need
// to replay the call (SendAndWait's revert decoding) don't have to
// rebuild it (§4.5 steps 1-6).
func (s *Submitter) send(ctx context.Context, signer Signer, req TransactionRequest, chainID uint64) (types.Hash, UnsignedTransaction, error) {
	if err := s.verifyChainID(ctx, chainID); err != nil {
		return types.Hash{}, UnsignedTransaction{}, err
	}

	unsigned, err := s.buildUnsigned(ctx, signer, req, chainID)
	if err != nil {
		return types.Hash{}, UnsignedTransaction{}, err
	}

	sig, _, err := s.sign(ctx, signer, unsigned, chainID)
	if err != nil {
		return types.Hash{}, UnsignedTransaction{}, err
	}

	envelope, err := unsigned.encodeAsEnvelope(chainID, sig)
	if err != nil {
		return types.Hash{}, UnsignedTransaction{}, err
	}

	txHash, err := s.Keccak.Hash(envelope)
	if err != nil {
		return types.Hash{}, UnsignedTransaction{}, fmt.Errorf("hash signed envelope: %w", err)
	}

	if err := s.trackBeforeSubmit(txHash, chainID, envelope); err != nil {
		return types.Hash{}, UnsignedTransaction{}, err
	}

	if err := s.broadcast(ctx, envelope); err != nil {
		return types.Hash{}, UnsignedTransaction{}, err
	}

	return txHash, unsigned, nil
}

// Send resolves req into a signed transaction and submits it, returning
// its hash (§3's sendTransaction(request) contract; §4.5 steps 1-6).
func (s *Submitter) Send(ctx context.Context, signer Signer, req TransactionRequest, chainID uint64) (hash types.Hash, err error) {
	start := time.Now()
	defer func() {
		if s.Metrics != nil {
			s.Metrics.RecordTransactionSend(chainID, time.Since(start), err == nil)
		}
	}()

	hash, _, err = s.send(ctx, signer, req, chainID)
	return hash, err
}

// SendBlob submits an EIP-4844 transaction with its blob sidecar
// attached via the network wrapper (§6).
func (s *Submitter) SendBlob(ctx context.Context, signer Signer, unsigned UnsignedTransaction, chainID uint64, sidecar BlobSidecar) (types.Hash, error) {
	if unsigned.Kind != Eip4844 {
		return types.Hash{}, fmt.Errorf("SendBlob requires an Eip4844 transaction")
	}
	if err := s.verifyChainID(ctx, chainID); err != nil {
		return types.Hash{}, err
	}

	sig, _, err := s.sign(ctx, signer, unsigned, chainID)
	if err != nil {
		return types.Hash{}, err
	}

	envelope, err := unsigned.encodeAsEnvelope(chainID, sig)
	if err != nil {
		return types.Hash{}, err
	}
	wrapped, err := encodeAsNetworkWrapper(envelope, sidecar)
	if err != nil {
		return types.Hash{}, err
	}

	// The transaction hash is always computed over the signed envelope,
	// not the network wrapper, so it's stable regardless of how the
	// blobs are carried.
	txHash, err := s.Keccak.Hash(envelope)
	if err != nil {
		return types.Hash{}, fmt.Errorf("hash signed envelope: %w", err)
	}

	if err := s.trackBeforeSubmit(txHash, chainID, wrapped); err != nil {
		return types.Hash{}, err
	}
	if err := s.broadcast(ctx, wrapped); err != nil {
		return types.Hash{}, err
	}
	return txHash, nil
}

func (s *Submitter) trackBeforeSubmit(hash types.Hash, chainID uint64, raw []byte) error {
	if s.Store == nil {
		return nil
	}
	existing, err := s.Store.Get(hash)
	if err != nil {
		return err
	}
	now := time.Now()
	state := &storage.TxState{
		TxHash:    hash,
		ChainID:   chainID,
		RawTx:     raw,
		FirstSeen: now,
		LastRetry: now,
		Status:    storage.StatusPending,
	}
	if existing != nil {
		state.RetryCount = existing.RetryCount + 1
		state.FirstSeen = existing.FirstSeen
	} else {
		state.RetryCount = 1
	}
	return s.Store.Set(hash, state)
}

func (s *Submitter) broadcast(ctx context.Context, raw []byte) error {
	hexTx := types.HexData(raw).String()
	_, err := retry.Do(ctx, s.Policy, func(ctx context.Context) (json.RawMessage, error) {
		return s.Provider.Send(ctx, "eth_sendRawTransaction", []interface{}{hexTx})
	})
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already known"):
		// A duplicate-broadcast error is not a real failure: the
		// transaction is in flight either way (§4.5 step 7). Every
		// other non-retryable error — insufficient funds, an invalid
		// sender, a rejected nonce — must still propagate.
		return nil
	case strings.Contains(msg, "invalid sender"):
		return &InvalidSenderError{Cause: err}
	default:
		return err
	}
}

// SendAndWait submits the transaction and polls for its receipt, with a
// monotonically doubling interval capped at 10s, until ctx is done
// (§4.5). A revert is decoded via the RevertDecoder capability and
// surfaced as RevertError; timeout surfaces with the hash so the caller
// can poll later.
func (s *Submitter) SendAndWait(ctx context.Context, signer Signer, req TransactionRequest, chainID uint64) (receipt reader.Receipt, err error) {
	start := time.Now()
	defer func() {
		if s.Metrics != nil {
			s.Metrics.RecordTransactionConfirm(chainID, time.Since(start), err == nil)
		}
	}()

	hash, unsigned, err := s.send(ctx, signer, req, chainID)
	if err != nil {
		return reader.Receipt{}, err
	}

	interval := 500 * time.Millisecond
	const maxInterval = 10 * time.Second

	for {
		rcpt, rerr := s.Reader.TransactionReceipt(ctx, hash)
		if rerr == nil {
			if !rcpt.Status {
				return s.decodeRevert(ctx, signer, unsigned, hash, rcpt.BlockNumber)
			}
			return rcpt, nil
		}

		select {
		case <-time.After(interval):
			if interval < maxInterval {
				interval *= 2
				if interval > maxInterval {
					interval = maxInterval
				}
			}
		case <-ctx.Done():
			return reader.Receipt{}, &TimeoutError{Hash: hash}
		}
	}
}

// decodeRevert replays the failed transaction via eth_call at the
// receipt's own block (a later block could see different state) to
// recover revert data, then decodes it through the RevertDecoder
// capability.
func (s *Submitter) decodeRevert(ctx context.Context, signer Signer, unsigned UnsignedTransaction, hash types.Hash, atBlock uint64) (reader.Receipt, error) {
	if s.RevertDecoder == nil {
		return reader.Receipt{}, &RevertError{Decoded: RevertDecoded{Kind: RevertUnknown, Reason: "no revert decoder configured"}}
	}

	from, err := signer.Address(ctx)
	if err != nil {
		return reader.Receipt{}, fmt.Errorf("resolve sender for revert replay: %w", err)
	}
	_, callErr := s.Reader.Call(ctx, reader.CallRequest{
		From:  &from,
		To:    unsigned.To,
		Gas:   unsigned.Gas,
		Value: unsigned.Value,
		Data:  unsigned.Data,
	}, types.BlockNumber(atBlock))

	if callErr == nil {
		// Replay didn't reproduce the revert; don't mask this as success
		// (§4.5, §9: "when the replay itself fails, surface a generic
		// RevertError rather than masking as success" — the same applies
		// when replay surprisingly succeeds).
		return reader.Receipt{}, &RevertError{Decoded: RevertDecoded{Kind: RevertUnknown, Reason: "revert replay did not reproduce the failure"}}
	}

	raw := types.EmptyHexData
	var rpcErr *rpc.RPCError
	if errors.As(callErr, &rpcErr) {
		// rpcErr.Data holds the error's "data" field as raw JSON (typically
		// a quoted 0x-prefixed hex string); decode it the same way the node's
		// call/receipt results are decoded elsewhere in this package.
		var hexStr string
		if err := json.Unmarshal(rpcErr.Data, &hexStr); err == nil {
			if parsed, err := types.ParseHexData(hexStr); err == nil {
				raw = parsed
			}
		}
	}

	decoded, err := s.RevertDecoder.Decode(raw)
	if err != nil {
		return reader.Receipt{}, fmt.Errorf("decode revert for %s: %w", hash, err)
	}
	return reader.Receipt{}, &RevertError{Decoded: decoded}
}
