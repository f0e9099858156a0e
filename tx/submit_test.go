package tx

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/evmrpc/gas"
	"github.com/arcsign/evmrpc/internal/rpctest"
	"github.com/arcsign/evmrpc/reader"
	"github.com/arcsign/evmrpc/retry"
	"github.com/arcsign/evmrpc/rpc"
	"github.com/arcsign/evmrpc/storage"
	"github.com/arcsign/evmrpc/types"
)

type fakeKeccak struct{}

func (fakeKeccak) Hash(data []byte) (types.Hash, error) {
	var h types.Hash
	copy(h[:], data)
	return h, nil
}

type fakeSigner struct {
	addr types.Address
}

func (s fakeSigner) Address(ctx context.Context) (types.Address, error) { return s.addr, nil }
func (s fakeSigner) SignTransaction(ctx context.Context, unsigned UnsignedTransaction, chainID uint64) (Signature, error) {
	return Signature{YParity: 0}, nil
}
func (s fakeSigner) SignMessage(ctx context.Context, message []byte) (Signature, error) {
	return Signature{}, nil
}

func newTestSubmitter(fp *rpctest.FakeProvider) (*Submitter, *reader.Reader) {
	r := reader.New(fp, retry.DefaultPolicy())
	return &Submitter{
		Provider:    fp,
		Reader:      r,
		Store:       storage.NewMemoryStore(),
		Keccak:      fakeKeccak{},
		Policy:      retry.DefaultPolicy(),
		GasStrategy: gas.DefaultStrategy(),
		Profile:     types.ChainProfile{ChainID: 1},
	}, r
}

func uint64Ptr(v uint64) *uint64 { return &v }

func weiPtr(v types.Wei) *types.Wei { return &v }

// legacyRequest builds a fully-specified legacy TransactionRequest so
// tests exercise the send path without depending on nonce/fee/gas-limit
// lookups that the fake provider doesn't answer.
func legacyRequest(from, to types.Address) TransactionRequest {
	return TransactionRequest{
		From:     &from,
		To:       &to,
		GasPrice: weiPtr(types.WeiFromUint64(1)),
		GasLimit: uint64Ptr(21000),
		Nonce:    uint64Ptr(0),
	}
}

func TestSendVerifiesChainID(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000001")
	fp := rpctest.New()
	fp.SetResponse("eth_chainId", json.RawMessage(`"0x2"`))
	fp.SetResponse("eth_sendRawTransaction", json.RawMessage(`"0x00"`))
	s, _ := newTestSubmitter(fp)

	req := legacyRequest(to, to)
	_, err := s.Send(context.Background(), fakeSigner{addr: to}, req, 1)
	require.Error(t, err)
	var mismatch *ChainMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestSendSucceeds(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000001")
	fp := rpctest.New()
	fp.SetResponse("eth_chainId", json.RawMessage(`"0x1"`))
	fp.SetResponse("eth_sendRawTransaction", json.RawMessage(`"0x00"`))
	s, _ := newTestSubmitter(fp)

	req := legacyRequest(to, to)
	hash, err := s.Send(context.Background(), fakeSigner{addr: to}, req, 1)
	require.NoError(t, err)
	require.False(t, hash.IsZero())
	require.Equal(t, 1, fp.CallCount("eth_sendRawTransaction"))
}

func TestSendTreatsAlreadyKnownAsSuccess(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000001")
	fp := rpctest.New()
	fp.SetResponse("eth_chainId", json.RawMessage(`"0x1"`))
	fp.SetError("eth_sendRawTransaction", &rpc.RPCError{Code: -32000, Message: "already known"})
	s, _ := newTestSubmitter(fp)

	req := legacyRequest(to, to)
	hash, err := s.Send(context.Background(), fakeSigner{addr: to}, req, 1)
	require.NoError(t, err)
	require.False(t, hash.IsZero())
}

func TestSendPropagatesInvalidSender(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000001")
	fp := rpctest.New()
	fp.SetResponse("eth_chainId", json.RawMessage(`"0x1"`))
	fp.SetError("eth_sendRawTransaction", &rpc.RPCError{Code: -32000, Message: "invalid sender"})
	s, _ := newTestSubmitter(fp)

	req := legacyRequest(to, to)
	_, err := s.Send(context.Background(), fakeSigner{addr: to}, req, 1)
	require.Error(t, err)
	var invalidSender *InvalidSenderError
	require.ErrorAs(t, err, &invalidSender)
}

func TestSendPropagatesInsufficientFunds(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000001")
	fp := rpctest.New()
	fp.SetResponse("eth_chainId", json.RawMessage(`"0x1"`))
	fp.SetError("eth_sendRawTransaction", &rpc.RPCError{Code: -32000, Message: "insufficient funds for gas * price + value"})
	s, _ := newTestSubmitter(fp)

	req := legacyRequest(to, to)
	_, err := s.Send(context.Background(), fakeSigner{addr: to}, req, 1)
	require.Error(t, err)
	var invalidSender *InvalidSenderError
	require.False(t, errors.As(err, &invalidSender))
}

func TestSendTracksStateInStore(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000001")
	fp := rpctest.New()
	fp.SetResponse("eth_chainId", json.RawMessage(`"0x1"`))
	fp.SetResponse("eth_sendRawTransaction", json.RawMessage(`"0x00"`))
	s, _ := newTestSubmitter(fp)

	req := legacyRequest(to, to)
	hash, err := s.Send(context.Background(), fakeSigner{addr: to}, req, 1)
	require.NoError(t, err)

	state, err := s.Store.Get(hash)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, 1, state.RetryCount)
}

type fakeRevertDecoder struct {
	decoded RevertDecoded
	err     error
}

func (d fakeRevertDecoder) Decode(raw types.HexData) (RevertDecoded, error) {
	if d.err != nil {
		return RevertDecoded{}, d.err
	}
	return d.decoded, nil
}

func TestSendAndWaitDecodesRevertFromFailedReplay(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000001")
	fp := rpctest.New()
	fp.SetResponse("eth_chainId", json.RawMessage(`"0x1"`))
	fp.SetResponse("eth_sendRawTransaction", json.RawMessage(`"0x00"`))
	fp.SetResponse("eth_getTransactionReceipt", json.RawMessage(`{
		"transactionHash": "0x0000000000000000000000000000000000000000000000000000000000000001",
		"blockNumber": "0x1",
		"blockHash": "0x0000000000000000000000000000000000000000000000000000000000000002",
		"status": "0x0",
		"gasUsed": "0x5208",
		"logs": []
	}`))
	revertData := "0x08c379a0" + "00000000000000000000000000000000000000000000000000000000000000aa"
	fp.SetError("eth_call", &rpc.RPCError{Code: 3, Message: "execution reverted", Data: []byte(`"` + revertData + `"`)})

	s, _ := newTestSubmitter(fp)
	s.RevertDecoder = fakeRevertDecoder{decoded: RevertDecoded{Kind: RevertErrorString, Reason: "simple reason"}}

	req := legacyRequest(to, to)
	_, err := s.SendAndWait(context.Background(), fakeSigner{addr: to}, req, 1)
	require.Error(t, err)
	var revertErr *RevertError
	require.ErrorAs(t, err, &revertErr)
	require.Equal(t, RevertErrorString, revertErr.Decoded.Kind)
	require.Equal(t, "simple reason", revertErr.Decoded.Reason)
}

func TestSendAndWaitSurfacesGenericRevertWhenReplaySucceeds(t *testing.T) {
	to := mustAddr(t, "0x0000000000000000000000000000000000000001")
	fp := rpctest.New()
	fp.SetResponse("eth_chainId", json.RawMessage(`"0x1"`))
	fp.SetResponse("eth_sendRawTransaction", json.RawMessage(`"0x00"`))
	fp.SetResponse("eth_getTransactionReceipt", json.RawMessage(`{
		"transactionHash": "0x0000000000000000000000000000000000000000000000000000000000000001",
		"blockNumber": "0x1",
		"blockHash": "0x0000000000000000000000000000000000000000000000000000000000000002",
		"status": "0x0",
		"gasUsed": "0x5208",
		"logs": []
	}`))
	fp.SetResponse("eth_call", json.RawMessage(`"0x"`))

	s, _ := newTestSubmitter(fp)
	s.RevertDecoder = fakeRevertDecoder{decoded: RevertDecoded{Kind: RevertErrorString, Reason: "should not be used"}}

	req := legacyRequest(to, to)
	_, err := s.SendAndWait(context.Background(), fakeSigner{addr: to}, req, 1)
	require.Error(t, err)
	var revertErr *RevertError
	require.ErrorAs(t, err, &revertErr)
	require.Equal(t, RevertUnknown, revertErr.Decoded.Kind)
}
