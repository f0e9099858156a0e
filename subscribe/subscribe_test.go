package subscribe

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/evmrpc/rpc"
)

type fakeTransport struct {
	nextServerID int
	subs         map[string]rpc.SubscriptionCallback
	unsubscribed []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]rpc.SubscriptionCallback)}
}

func (f *fakeTransport) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return json.RawMessage("null"), nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, method string, params interface{}, cb rpc.SubscriptionCallback) (string, error) {
	f.nextServerID++
	id := "srv-" + string(rune('0'+f.nextServerID))
	f.subs[id] = cb
	return id, nil
}

func (f *fakeTransport) Unsubscribe(ctx context.Context, unsubscribeMethod, subscriptionID string) (bool, error) {
	f.unsubscribed = append(f.unsubscribed, subscriptionID)
	delete(f.subs, subscriptionID)
	return true, nil
}

func (f *fakeTransport) Close() error { return nil }

func TestSubscribeRegistersHandler(t *testing.T) {
	ft := newFakeTransport()
	m := New(ft, nil, nil)

	var received json.RawMessage
	id, err := m.Subscribe(context.Background(), "newHeads", nil, func(result json.RawMessage) {
		received = result
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, ft.subs, 1)

	for _, cb := range ft.subs {
		cb(json.RawMessage(`{"number":"0x1"}`))
	}
	require.Equal(t, json.RawMessage(`{"number":"0x1"}`), received)
}

func TestUnsubscribeRemovesEntry(t *testing.T) {
	ft := newFakeTransport()
	m := New(ft, nil, nil)

	id, err := m.Subscribe(context.Background(), "logs", nil, func(json.RawMessage) {})
	require.NoError(t, err)

	ok, err := m.Unsubscribe(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, ft.subs)

	ok, err = m.Unsubscribe(context.Background(), id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResubscribeAllReissuesSubscriptions(t *testing.T) {
	ft := newFakeTransport()
	m := New(ft, nil, nil)

	_, err := m.Subscribe(context.Background(), "newHeads", nil, func(json.RawMessage) {})
	require.NoError(t, err)
	require.Len(t, ft.subs, 1)

	// Simulate the transport dropping and re-establishing its socket:
	// the manager's entries survive and get new server ids.
	oldSubs := ft.subs
	ft.subs = make(map[string]rpc.SubscriptionCallback)
	m.ResubscribeAll()

	require.Len(t, ft.subs, 1)
	require.NotEqual(t, oldSubs, ft.subs)
}
