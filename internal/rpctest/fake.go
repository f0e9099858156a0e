// Package rpctest provides a shared fake rpc.Provider for tests across
// the module, grounded on the teacher's rpc.MockRPCClient (method/error
// tables keyed by RPC method name, plus a call count) and generalized to
// also satisfy rpc.Provider's Subscribe/Unsubscribe surface.
package rpctest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/arcsign/evmrpc/rpc"
)

// FakeProvider answers Send with a canned response or error per method,
// and tracks every call made against it.
type FakeProvider struct {
	mu sync.Mutex

	responses map[string]json.RawMessage
	errors    map[string]error
	calls     []Call
	subs      map[string]rpc.SubscriptionCallback
	nextSubID int
	closed    bool
}

// Call records one Send or Subscribe invocation; Unsubscribe calls are
// not recorded.
type Call struct {
	Method string
	Params interface{}
}

// New constructs an empty FakeProvider. Methods with no configured
// response answer with JSON null, matching how absent state typically
// decodes in this module's Reader/Submitter (null receipt, null
// broadcast ack).
func New() *FakeProvider {
	return &FakeProvider{
		responses: make(map[string]json.RawMessage),
		errors:    make(map[string]error),
		subs:      make(map[string]rpc.SubscriptionCallback),
	}
}

// SetResponse configures the raw JSON result returned for method.
func (f *FakeProvider) SetResponse(method string, raw json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = raw
}

// SetError configures method to fail with err.
func (f *FakeProvider) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[method] = err
}

// Calls returns every recorded Send and Subscribe call so far, in order.
func (f *FakeProvider) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many recorded Send or Subscribe calls used method.
func (f *FakeProvider) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *FakeProvider) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Params: params})
	if err, ok := f.errors[method]; ok {
		return nil, err
	}
	if raw, ok := f.responses[method]; ok {
		return raw, nil
	}
	return json.RawMessage("null"), nil
}

func (f *FakeProvider) Subscribe(ctx context.Context, method string, params interface{}, cb rpc.SubscriptionCallback) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Params: params})
	if err, ok := f.errors[method]; ok {
		return "", err
	}
	f.nextSubID++
	id := fmt.Sprintf("sub-%d", f.nextSubID)
	f.subs[id] = cb
	return id, nil
}

func (f *FakeProvider) Unsubscribe(ctx context.Context, unsubscribeMethod, subscriptionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[subscriptionID]; !ok {
		return false, nil
	}
	delete(f.subs, subscriptionID)
	return true, nil
}

func (f *FakeProvider) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeProvider) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Notify delivers result to the callback registered for subscriptionID,
// simulating a server push. Returns false if no such subscription is
// registered.
func (f *FakeProvider) Notify(subscriptionID string, result json.RawMessage) bool {
	f.mu.Lock()
	cb, ok := f.subs[subscriptionID]
	f.mu.Unlock()
	if !ok {
		return false
	}
	cb(result)
	return true
}

// SubscriptionCount returns the number of currently registered
// subscriptions.
func (f *FakeProvider) SubscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// DropSubscriptions simulates a transport reconnect wiping server-side
// subscription state, forcing any future Subscribe calls to mint fresh
// ids.
func (f *FakeProvider) DropSubscriptions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = make(map[string]rpc.SubscriptionCallback)
}

var _ rpc.Provider = (*FakeProvider)(nil)
