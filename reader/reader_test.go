package reader

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/evmrpc/internal/rpctest"
	"github.com/arcsign/evmrpc/retry"
	"github.com/arcsign/evmrpc/types"
)

func newFakeReader(responses map[string]json.RawMessage) *Reader {
	fp := rpctest.New()
	for method, raw := range responses {
		fp.SetResponse(method, raw)
	}
	return New(fp, retry.DefaultPolicy())
}

func TestBalance(t *testing.T) {
	r := newFakeReader(map[string]json.RawMessage{
		"eth_getBalance": json.RawMessage(`"0xde0b6b3a7640000"`),
	})
	addr, err := types.ParseAddress("0x0000000000000000000000000000000000000001")
	require.NoError(t, err)

	wei, err := r.Balance(context.Background(), addr, types.Latest)
	require.NoError(t, err)
	require.Equal(t, "0xde0b6b3a7640000", wei.String())
}

func TestBlockNumber(t *testing.T) {
	r := newFakeReader(map[string]json.RawMessage{
		"eth_blockNumber": json.RawMessage(`"0x112a880"`),
	})
	n, err := r.BlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0x112a880), n)
}

func TestTransactionReceiptNullIsError(t *testing.T) {
	r := newFakeReader(map[string]json.RawMessage{
		"eth_getTransactionReceipt": json.RawMessage(`null`),
	})
	hash, err := types.ParseHash("0x" + "11223344556677889900aabbccddeeff11223344556677889900aabbccddeeff")
	require.NoError(t, err)

	_, err = r.TransactionReceipt(context.Background(), hash)
	require.Error(t, err)
}

func TestTransactionReceiptDecoding(t *testing.T) {
	hash := "0x" + "11223344556677889900aabbccddeeff11223344556677889900aabbccddeeff"
	r := newFakeReader(map[string]json.RawMessage{
		"eth_getTransactionReceipt": json.RawMessage(`{
			"transactionHash": "` + hash + `",
			"blockNumber": "0x1",
			"blockHash": "0x2222222222222222222222222222222222222222222222222222222222222222",
			"status": "0x1",
			"gasUsed": "0x5208",
			"logs": []
		}`),
	})
	h, err := types.ParseHash(hash)
	require.NoError(t, err)

	rcpt, err := r.TransactionReceipt(context.Background(), h)
	require.NoError(t, err)
	require.True(t, rcpt.Status)
	require.Equal(t, uint64(21000), rcpt.GasUsed)
}

func TestBlockByNumberNotFound(t *testing.T) {
	r := newFakeReader(map[string]json.RawMessage{
		"eth_getBlockByNumber": json.RawMessage(`null`),
	})
	_, err := r.BlockByNumber(context.Background(), types.Pending, false)
	require.Error(t, err)
}

func TestLogsBuildsFilterParams(t *testing.T) {
	fp := rpctest.New()
	fp.SetResponse("eth_getLogs", json.RawMessage(`[]`))
	r := New(fp, retry.DefaultPolicy())

	addr, err := types.ParseAddress("0x0000000000000000000000000000000000000002")
	require.NoError(t, err)

	logs, err := r.Logs(context.Background(), LogFilter{
		FromBlock: types.BlockNumber(100),
		ToBlock:   types.Latest,
		Address:   []types.Address{addr},
	})
	require.NoError(t, err)
	require.Empty(t, logs)
	require.Equal(t, 1, fp.CallCount("eth_getLogs"))
}

func TestCallRequestParams(t *testing.T) {
	addr, err := types.ParseAddress("0x0000000000000000000000000000000000000003")
	require.NoError(t, err)
	call := CallRequest{To: &addr, Data: types.HexData{0xde, 0xad}}
	params := call.toParams()
	require.Equal(t, addr.String(), params["to"])
	require.Equal(t, "0xdead", params["data"])
}
