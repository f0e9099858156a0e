package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/arcsign/evmrpc/metrics"
)

// connState is the WebSocket provider's connection state machine (§4.1.3).
type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateReconnecting
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "CONNECTING"
	case stateConnected:
		return "CONNECTED"
	case stateReconnecting:
		return "RECONNECTING"
	case stateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Executor dispatches a subscription callback off the I/O goroutine
// (§4.6, §8: "callbacks are dispatched on the configured executor, not
// the I/O thread"). The default executor (nil) spawns one goroutine per
// notification, which needs no shutdown — matching §4.1.9's requirement
// that internally-created resources are released on Close while
// externally-supplied ones are left alone.
type Executor func(func())

// WebSocketConfig configures a WebSocketProvider.
type WebSocketConfig struct {
	URL string
	// MaxPending bounds concurrent in-flight requests (§4.1.2).
	MaxPending int
	// WriteQueueDepth bounds the producer→I/O-thread queue (§9 open
	// question: a literal ring buffer is not required, a bounded channel
	// is semantically equivalent).
	WriteQueueDepth int
	// MaxReconnectAttempts and backoff bounds (§4.1.4).
	MaxReconnectAttempts int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	Executor             Executor
	Logger               *zap.Logger
	Dialer               *websocket.Dialer
	// Metrics records per-call volume/latency and orphan counts if set
	// (nil is a no-op).
	Metrics metrics.Recorder
}

func (c *WebSocketConfig) withDefaults() {
	if c.MaxPending <= 0 {
		c.MaxPending = 256
	}
	if c.WriteQueueDepth <= 0 {
		c.WriteQueueDepth = 256
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 1 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 32 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

type pendingCall struct {
	resultCh  chan Response
	completed atomic.Bool
}

type writeJob struct {
	payload []byte
	onError func(error)
}

// WebSocketProvider is the stateful multiplexer described in §4.1. A
// write goroutine is the socket's only writer and a read goroutine its
// only reader; producers (caller goroutines) submit writes through a
// bounded channel, never touching the socket directly. The
// pending-requests map is guarded by pendingMu rather than owned by one
// goroutine: each Send inserts its own entry before queuing the write
// and removes it on timeout or write failure, and the read goroutine
// removes entries as responses arrive.
type WebSocketProvider struct {
	cfg WebSocketConfig

	state     atomic.Int32
	connMu    sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
	closeCh   chan struct{}

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall
	nextID    atomic.Int64
	sem       *semaphore.Weighted

	subsMu sync.Mutex
	subs   map[string]SubscriptionCallback

	writeCh chan writeJob

	orphanCount     atomic.Int64
	reconnectAttempt atomic.Int32

	// OnReconnect is invoked after a successful reconnect, from the
	// reconnect goroutine, so a subscription manager can re-establish
	// its subscriptions (§4.6 "On reconnect, all known subscriptions are
	// re-established").
	OnReconnect func()
}

// NewWebSocketProvider dials cfg.URL and starts the I/O loop.
func NewWebSocketProvider(cfg WebSocketConfig) (*WebSocketProvider, error) {
	cfg.withDefaults()
	p := &WebSocketProvider{
		cfg:     cfg,
		pending: make(map[int64]*pendingCall),
		subs:    make(map[string]SubscriptionCallback),
		sem:     semaphore.NewWeighted(int64(cfg.MaxPending)),
		writeCh: make(chan writeJob, cfg.WriteQueueDepth),
		closeCh: make(chan struct{}),
	}
	p.state.Store(int32(stateConnecting))

	conn, _, err := cfg.Dialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", cfg.URL, err)
	}
	p.conn = conn
	p.state.Store(int32(stateConnected))

	go p.writeLoop()
	go p.readLoop()

	return p, nil
}

func (p *WebSocketProvider) currentState() connState {
	return connState(p.state.Load())
}

func (p *WebSocketProvider) Send(ctx context.Context, method string, params interface{}) (result json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.RecordRPCCall(method, time.Since(start), err == nil)
		}
	}()

	switch p.currentState() {
	case stateClosed:
		return nil, &TransportClosedError{Reason: "closed"}
	case stateReconnecting:
		return nil, &TransportClosedError{Reason: "reconnecting"}
	}

	if !p.sem.TryAcquire(1) {
		return nil, &BackpressureError{MaxPending: p.cfg.MaxPending}
	}
	defer p.sem.Release(1)

	id := p.nextID.Add(1)
	call := &pendingCall{resultCh: make(chan Response, 1)}

	p.pendingMu.Lock()
	p.pending[id] = call
	p.pendingMu.Unlock()

	removeAndMarkDone := func() bool {
		return call.completed.CompareAndSwap(false, true)
	}

	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		p.removePending(id)
		return nil, err
	}

	select {
	case p.writeCh <- writeJob{payload: payload, onError: func(werr error) {
		if removeAndMarkDone() {
			p.removePending(id)
			call.resultCh <- Response{ID: id, Error: &WireError{Message: werr.Error()}}
		}
	}}:
	case <-p.closeCh:
		p.removePending(id)
		return nil, &TransportClosedError{Reason: "shutdown"}
	}

	select {
	case resp := <-call.resultCh:
		if resp.Error != nil {
			return nil, &RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data, RequestID: id}
		}
		return resp.Result, nil
	case <-ctx.Done():
		if removeAndMarkDone() {
			p.removePending(id)
		}
		return nil, &TimeoutError{Method: method}
	case <-p.closeCh:
		if removeAndMarkDone() {
			p.removePending(id)
		}
		return nil, &TransportClosedError{Reason: "shutdown"}
	}
}

func (p *WebSocketProvider) removePending(id int64) {
	p.pendingMu.Lock()
	delete(p.pending, id)
	p.pendingMu.Unlock()
}

// Subscribe issues method (e.g. "eth_subscribe") and registers cb against
// the returned subscription id (§4.1.5, §4.6).
func (p *WebSocketProvider) Subscribe(ctx context.Context, method string, params interface{}, cb SubscriptionCallback) (string, error) {
	raw, err := p.Send(ctx, method, params)
	if err != nil {
		return "", err
	}
	var subID string
	if err := json.Unmarshal(raw, &subID); err != nil {
		return "", fmt.Errorf("malformed subscription id: %w", err)
	}
	p.subsMu.Lock()
	p.subs[subID] = cb
	p.subsMu.Unlock()
	return subID, nil
}

func (p *WebSocketProvider) Unsubscribe(ctx context.Context, unsubscribeMethod, subscriptionID string) (bool, error) {
	raw, err := p.Send(ctx, unsubscribeMethod, []interface{}{subscriptionID})
	if err != nil {
		return false, err
	}
	p.subsMu.Lock()
	delete(p.subs, subscriptionID)
	p.subsMu.Unlock()

	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, nil
	}
	return ok, nil
}

// writeLoop is the sole writer of the socket; it drains writeCh, which is
// the MPSC queue every Send() producer feeds (§4.1.7).
func (p *WebSocketProvider) writeLoop() {
	for {
		select {
		case job := <-p.writeCh:
			p.connMu.Lock()
			conn := p.conn
			p.connMu.Unlock()
			if conn == nil {
				job.onError(fmt.Errorf("no active connection"))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, job.payload); err != nil {
				job.onError(err)
				p.triggerReconnect()
			}
		case <-p.closeCh:
			return
		}
	}
}

// readLoop is the socket's only reader: it parses inbound frames and
// completes pending calls or dispatches notifications.
func (p *WebSocketProvider) readLoop() {
	p.connMu.Lock()
	conn := p.conn
	p.connMu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			p.triggerReconnect()
			return
		}

		var fr frame
		if err := json.Unmarshal(raw, &fr); err != nil {
			continue
		}

		if fr.ID != nil {
			var resp Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				continue
			}
			p.pendingMu.Lock()
			call, ok := p.pending[resp.ID]
			if ok {
				delete(p.pending, resp.ID)
			}
			p.pendingMu.Unlock()

			if !ok {
				p.recordOrphan(resp.ID)
				continue
			}
			if call.completed.CompareAndSwap(false, true) {
				call.resultCh <- resp
			} else {
				// Response raced its own timeout; counted as orphan.
				p.recordOrphan(resp.ID)
			}
			continue
		}

		if strings.HasSuffix(fr.Method, "_subscription") {
			var note Notification
			if err := json.Unmarshal(raw, &note); err != nil {
				continue
			}
			p.subsMu.Lock()
			cb, ok := p.subs[note.Params.Subscription]
			p.subsMu.Unlock()
			if ok {
				p.dispatch(cb, note.Params.Result)
			}
		}
	}
}

// dispatch runs cb on the configured Executor, recovering panics so a
// misbehaving callback can never reach the I/O loop (§4.6, §7).
func (p *WebSocketProvider) dispatch(cb SubscriptionCallback, result json.RawMessage) {
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				p.cfg.Logger.Error("subscription callback panicked", zap.Any("panic", r))
			}
		}()
		cb(result)
	}
	if p.cfg.Executor != nil {
		p.cfg.Executor(run)
		return
	}
	go run()
}

// OrphanCount returns the number of responses received for an id not in
// the pending map, for diagnostics (§8 invariant).
func (p *WebSocketProvider) OrphanCount() int64 {
	return p.orphanCount.Load()
}

// recordOrphan counts an orphan response, logs it, and mirrors the
// running total into the configured metrics Recorder if any (§4.1.1,
// §8 invariant: orphans are counted, logged, dropped, never retried).
func (p *WebSocketProvider) recordOrphan(id int64) {
	count := p.orphanCount.Add(1)
	p.cfg.Logger.Error("orphan JSON-RPC response", zap.Int64("id", id))
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.SetOrphanedNotifications(count)
	}
}

// State returns the current connection state as a string, for tests and
// diagnostics.
func (p *WebSocketProvider) State() string {
	return p.currentState().String()
}

// triggerReconnect transitions CONNECTED→RECONNECTING exactly once and
// runs the backoff loop (§4.1.4). A no-op if already reconnecting or
// closed.
func (p *WebSocketProvider) triggerReconnect() {
	if !p.state.CompareAndSwap(int32(stateConnected), int32(stateReconnecting)) {
		return
	}
	go p.reconnectLoop()
}

func (p *WebSocketProvider) reconnectLoop() {
	attempt := 0
	backoff := p.cfg.InitialBackoff

	for attempt < p.cfg.MaxReconnectAttempts {
		select {
		case <-p.closeCh:
			return
		case <-time.After(backoff):
		}

		attempt++
		p.reconnectAttempt.Store(int32(attempt))

		conn, _, err := p.cfg.Dialer.Dial(p.cfg.URL, nil)
		if err != nil {
			backoff *= 2
			if backoff > p.cfg.MaxBackoff {
				backoff = p.cfg.MaxBackoff
			}
			continue
		}

		p.connMu.Lock()
		p.conn = conn
		p.connMu.Unlock()

		p.reconnectAttempt.Store(0)
		p.state.Store(int32(stateConnected))
		go p.readLoop()

		if p.OnReconnect != nil {
			p.OnReconnect()
		}
		return
	}

	// Exhausted: transition to CLOSED and fail everything outstanding.
	p.state.Store(int32(stateClosed))
	p.failAllPending(&TransportClosedError{Reason: "reconnect attempts exhausted"})
	p.closeOnce.Do(func() { close(p.closeCh) })
}

func (p *WebSocketProvider) failAllPending(err error) {
	p.pendingMu.Lock()
	calls := make([]*pendingCall, 0, len(p.pending))
	for id, c := range p.pending {
		calls = append(calls, c)
		delete(p.pending, id)
	}
	p.pendingMu.Unlock()

	for _, c := range calls {
		if c.completed.CompareAndSwap(false, true) {
			c.resultCh <- Response{Error: &WireError{Message: err.Error()}}
		}
	}
}

// Close idempotently tears down the provider: transitions to CLOSED,
// fails all pending requests with a shutdown error, and closes the
// socket. Externally-supplied Executors and dialers are left untouched
// (§4.1.9).
func (p *WebSocketProvider) Close() error {
	p.state.Store(int32(stateClosed))
	p.closeOnce.Do(func() { close(p.closeCh) })
	p.failAllPending(&TransportClosedError{Reason: "closed"})

	p.connMu.Lock()
	conn := p.conn
	p.connMu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

var _ Provider = (*WebSocketProvider)(nil)
