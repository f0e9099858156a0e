package testnode

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/evmrpc/rpc"
	"github.com/arcsign/evmrpc/types"
)

type fakeProvider struct {
	responses map[string]json.RawMessage
	calls     []callRecord
}

type callRecord struct {
	method string
	params interface{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{responses: make(map[string]json.RawMessage)}
}

func (f *fakeProvider) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	f.calls = append(f.calls, callRecord{method: method, params: params})
	if raw, ok := f.responses[method]; ok {
		return raw, nil
	}
	return json.RawMessage("null"), nil
}

func (f *fakeProvider) Subscribe(ctx context.Context, method string, params interface{}, cb rpc.SubscriptionCallback) (string, error) {
	return "", nil
}

func (f *fakeProvider) Unsubscribe(ctx context.Context, unsubscribeMethod, subscriptionID string) (bool, error) {
	return true, nil
}

func (f *fakeProvider) Close() error { return nil }

func mustAddr(t *testing.T, s string) types.Address {
	t.Helper()
	a, err := types.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func TestSetBalanceSendsAnvilMethod(t *testing.T) {
	fp := newFakeProvider()
	c := New(fp)
	addr := mustAddr(t, "0x0000000000000000000000000000000000000001")

	err := c.SetBalance(context.Background(), addr, types.WeiFromUint64(1000))
	require.NoError(t, err)
	require.Len(t, fp.calls, 1)
	require.Equal(t, "anvil_setBalance", fp.calls[0].method)
}

func TestMineNWithInterval(t *testing.T) {
	fp := newFakeProvider()
	c := New(fp)

	err := c.MineNWithInterval(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Equal(t, "anvil_mine", fp.calls[0].method)
	params, ok := fp.calls[0].params.([]interface{})
	require.True(t, ok)
	require.Len(t, params, 2)
}

func TestMineAtSetsTimestampThenMines(t *testing.T) {
	fp := newFakeProvider()
	c := New(fp)

	err := c.MineAt(context.Background(), 1700000000)
	require.NoError(t, err)
	require.Len(t, fp.calls, 2)
	require.Equal(t, "evm_setNextBlockTimestamp", fp.calls[0].method)
	require.Equal(t, "evm_mine", fp.calls[1].method)
}

func TestSnapshotAndRevert(t *testing.T) {
	fp := newFakeProvider()
	fp.responses["evm_snapshot"] = json.RawMessage(`"0x1"`)
	fp.responses["evm_revert"] = json.RawMessage(`true`)
	c := New(fp)

	id, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, SnapshotID("0x1"), id)

	ok, err := c.Revert(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "evm_revert", fp.calls[len(fp.calls)-1].method)
}

func TestImpersonateSessionClosesOnce(t *testing.T) {
	fp := newFakeProvider()
	c := New(fp)
	addr := mustAddr(t, "0x0000000000000000000000000000000000000002")

	session, err := c.Impersonate(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, addr, session.Address())
	require.Equal(t, "anvil_impersonateAccount", fp.calls[0].method)

	require.NoError(t, session.Close(context.Background()))
	require.NoError(t, session.Close(context.Background()))

	stopCount := 0
	for _, call := range fp.calls {
		if call.method == "anvil_stopImpersonatingAccount" {
			stopCount++
		}
	}
	require.Equal(t, 1, stopCount)
}

func TestGetAutomineDecodesBool(t *testing.T) {
	fp := newFakeProvider()
	fp.responses["anvil_getAutomine"] = json.RawMessage(`true`)
	c := New(fp)

	automine, err := c.GetAutomine(context.Background())
	require.NoError(t, err)
	require.True(t, automine)
}

func TestDumpAndLoadState(t *testing.T) {
	fp := newFakeProvider()
	fp.responses["anvil_dumpState"] = json.RawMessage(`"0xdeadbeef"`)
	fp.responses["anvil_loadState"] = json.RawMessage(`true`)
	c := New(fp)

	dump, err := c.DumpState(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0xdeadbeef", dump.String())

	ok, err := c.LoadState(context.Background(), dump)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResetForkSendsForkingParams(t *testing.T) {
	fp := newFakeProvider()
	c := New(fp)

	err := c.ResetFork(context.Background(), "https://example.invalid/rpc", 123)
	require.NoError(t, err)
	require.Equal(t, "anvil_reset", fp.calls[0].method)
	params, ok := fp.calls[0].params.([]interface{})
	require.True(t, ok)
	require.Len(t, params, 1)
	opts, ok := params[0].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, opts, "forking")
}
