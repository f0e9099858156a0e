// Package subscribe implements the subscription manager (component C6):
// tracking server-pushed streams by id, dispatching notifications to
// callbacks, and re-establishing every subscription across a transport
// reconnect. Grounded on the teacher's rpc package's callback-routing
// habits (WebSocketRPCClient's id-keyed maps), generalized to own the
// full {kind, params, callback} record the provider-level websocket
// transport doesn't track on its own.
package subscribe

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/arcsign/evmrpc/metrics"
	"github.com/arcsign/evmrpc/rpc"
)

// Handler receives a decoded notification payload for one subscription.
type Handler func(result json.RawMessage)

type entry struct {
	kind     string
	params   interface{}
	handler  Handler
	serverID string
}

// Manager tracks active subscriptions over an rpc.Provider and
// re-subscribes them after a reconnect (§4.6). It depends on the
// Provider interface rather than *rpc.WebSocketProvider concretely, so
// it can be driven by a fake transport in tests.
type Manager struct {
	provider rpc.Provider
	logger   *zap.Logger
	metrics  metrics.Recorder

	mu      sync.Mutex
	entries map[string]*entry // keyed by a manager-assigned local id
	nextID  int64
}

// New constructs a Manager bound to provider. Callers using
// rpc.WebSocketProvider should wire m.ResubscribeAll as the provider's
// OnReconnect hook. rec is optional and may be nil.
func New(provider rpc.Provider, logger *zap.Logger, rec metrics.Recorder) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{provider: provider, logger: logger, metrics: rec, entries: make(map[string]*entry)}
}

// reportActiveCount mirrors the current subscription count into the
// configured metrics Recorder, if any.
func (m *Manager) reportActiveCount() {
	if m.metrics == nil {
		return
	}
	m.mu.Lock()
	count := len(m.entries)
	m.mu.Unlock()
	m.metrics.SetActiveSubscriptions(count)
}

// localID is an arbitrary, stable identifier a caller can use to
// Unsubscribe later even if the node has since issued new server ids
// across a reconnect (§4.6 "new server ids replace the old").
type localID = string

// Subscribe issues eth_subscribe(kind, params...) and registers handler
// against the notification stream. Returns a local id stable across
// reconnects.
func (m *Manager) Subscribe(ctx context.Context, kind string, params []interface{}, handler Handler) (localID, error) {
	m.mu.Lock()
	m.nextID++
	id := strconv.FormatInt(m.nextID, 10)
	m.mu.Unlock()

	serverID, err := m.provider.Subscribe(ctx, "eth_subscribe", append([]interface{}{kind}, params...), func(result json.RawMessage) {
		handler(result)
	})
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.entries[id] = &entry{kind: kind, params: params, handler: handler, serverID: serverID}
	m.mu.Unlock()
	m.reportActiveCount()
	return id, nil
}

// Unsubscribe issues eth_unsubscribe for id's current server id and
// forgets the local entry.
func (m *Manager) Unsubscribe(ctx context.Context, id localID) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	m.reportActiveCount()
	return m.provider.Unsubscribe(ctx, "eth_unsubscribe", e.serverID)
}

// ResubscribeAll re-issues eth_subscribe for every tracked entry after a
// reconnect. New server ids replace the old; notification ordering
// across the reconnect boundary is not guaranteed (§4.6). Delivery is
// at most once: notifications the node emits between the loss of the
// old subscription and the confirmation of its replacement are lost,
// and none are replayed. Wire this as the underlying
// WebSocketProvider's OnReconnect hook.
func (m *Manager) ResubscribeAll() {
	m.mu.Lock()
	snapshot := make([]*entry, 0, len(m.entries))
	ids := make([]string, 0, len(m.entries))
	for id, e := range m.entries {
		snapshot = append(snapshot, e)
		ids = append(ids, id)
	}
	m.mu.Unlock()

	ctx := context.Background()
	for i, e := range snapshot {
		params, _ := e.params.([]interface{})
		serverID, err := m.provider.Subscribe(ctx, "eth_subscribe", append([]interface{}{e.kind}, params...), e.handler)
		if err != nil {
			m.logger.Error("resubscribe failed", zap.String("kind", e.kind), zap.Error(err))
			continue
		}
		m.mu.Lock()
		if current, ok := m.entries[ids[i]]; ok {
			current.serverID = serverID
		}
		m.mu.Unlock()
	}
}
