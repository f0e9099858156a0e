package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/evmrpc/metrics"
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	// Endpoints is the ordered list of node URLs to try, with failover.
	Endpoints []string
	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration
	// BatchWindow is how long concurrent sends are coalesced into a
	// single JSON-RPC batch request before being flushed (§4.1 "Supports
	// implicit request batching... batch window or keep one-per-request"
	// is implementation freedom; this provider chooses batching).
	// Zero disables batching (one request per send).
	BatchWindow time.Duration
	// MaxBatchSize caps how many requests one flush will combine.
	MaxBatchSize int
	Logger       *zap.Logger
	Health       HealthTracker
	// Metrics records per-call volume/latency if set (nil is a no-op).
	Metrics metrics.Recorder
}

func (c *HTTPConfig) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 50
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Health == nil {
		c.Health = NewCircuitBreakerHealthTracker()
	}
}

// HTTPProvider is a stateless JSON-RPC transport over HTTP. Each Send
// emits one request object with a monotonically increasing id; when
// BatchWindow > 0, concurrent sends arriving within the window are
// coalesced into one HTTP POST carrying a JSON array (§4.1).
//
// HTTPProvider has no subscription support: Subscribe always returns
// ErrSubscribeUnsupported.
type HTTPProvider struct {
	cfg       HTTPConfig
	client    *http.Client
	nextID    atomic.Int64
	batchMu   sync.Mutex
	batch     []batchItem
	flushOnce sync.Once
	flushCh   chan struct{}
	closed    atomic.Bool
}

type batchItem struct {
	req  Request
	done chan batchResult
}

type batchResult struct {
	raw json.RawMessage
	err error
}

// NewHTTPProvider constructs an HTTPProvider. At least one endpoint is
// required.
func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one HTTP endpoint is required")
	}
	cfg.withDefaults()
	p := &HTTPProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		flushCh: make(chan struct{}, 1),
	}
	return p, nil
}

func (p *HTTPProvider) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if p.closed.Load() {
		return nil, &TransportClosedError{}
	}
	req := Request{JSONRPC: "2.0", ID: p.nextID.Add(1), Method: method, Params: params}

	start := time.Now()
	var raw json.RawMessage
	var err error
	if p.cfg.BatchWindow <= 0 {
		raw, err = p.sendSingle(ctx, req)
	} else {
		raw, err = p.sendBatched(ctx, req)
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordRPCCall(method, time.Since(start), err == nil)
	}
	return raw, err
}

func (p *HTTPProvider) sendSingle(ctx context.Context, req Request) (json.RawMessage, error) {
	var lastErr error
	attempted := make(map[string]bool)
	for len(attempted) < len(p.cfg.Endpoints) {
		endpoint := p.cfg.Health.Pick(p.cfg.Endpoints, attempted)
		if endpoint == "" {
			break
		}
		attempted[endpoint] = true

		start := time.Now()
		resp, err := p.post(ctx, endpoint, req)
		if err != nil {
			p.cfg.Health.RecordFailure(endpoint, err)
			lastErr = err
			continue
		}
		p.cfg.Health.RecordSuccess(endpoint, time.Since(start))
		if resp.Error != nil {
			return nil, &RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data, RequestID: req.ID}
		}
		return resp.Result, nil
	}
	return nil, fmt.Errorf("all HTTP endpoints failed: %w", lastErr)
}

func (p *HTTPProvider) post(ctx context.Context, endpoint string, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, string(raw))
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("malformed JSON-RPC response: %w", err)
	}
	return &resp, nil
}

// sendBatched enqueues req and schedules a flush after BatchWindow,
// piggy-backing onto an in-flight timer if one is already armed.
func (p *HTTPProvider) sendBatched(ctx context.Context, req Request) (json.RawMessage, error) {
	done := make(chan batchResult, 1)

	p.batchMu.Lock()
	p.batch = append(p.batch, batchItem{req: req, done: done})
	shouldFlushNow := len(p.batch) >= p.cfg.MaxBatchSize
	isFirst := len(p.batch) == 1
	p.batchMu.Unlock()

	if shouldFlushNow {
		p.flush(ctx)
	} else if isFirst {
		go func() {
			time.Sleep(p.cfg.BatchWindow)
			p.flush(context.Background())
		}()
	}

	select {
	case r := <-done:
		return r.raw, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *HTTPProvider) flush(ctx context.Context) {
	p.batchMu.Lock()
	items := p.batch
	p.batch = nil
	p.batchMu.Unlock()

	if len(items) == 0 {
		return
	}
	if len(items) == 1 {
		raw, err := p.sendSingle(ctx, items[0].req)
		items[0].done <- batchResult{raw: raw, err: err}
		return
	}

	reqs := make([]Request, len(items))
	for i, it := range items {
		reqs[i] = it.req
	}

	var lastErr error
	attempted := make(map[string]bool)
	for len(attempted) < len(p.cfg.Endpoints) {
		endpoint := p.cfg.Health.Pick(p.cfg.Endpoints, attempted)
		if endpoint == "" {
			break
		}
		attempted[endpoint] = true

		responses, err := p.postBatch(ctx, endpoint, reqs)
		if err != nil {
			p.cfg.Health.RecordFailure(endpoint, err)
			lastErr = err
			continue
		}
		p.cfg.Health.RecordSuccess(endpoint, 0)

		byID := make(map[int64]Response, len(responses))
		for _, r := range responses {
			byID[r.ID] = r
		}
		for _, it := range items {
			r, ok := byID[it.req.ID]
			if !ok {
				it.done <- batchResult{err: fmt.Errorf("no response for request id %d in batch", it.req.ID)}
				continue
			}
			if r.Error != nil {
				it.done <- batchResult{err: &RPCError{Code: r.Error.Code, Message: r.Error.Message, Data: r.Error.Data, RequestID: it.req.ID}}
				continue
			}
			it.done <- batchResult{raw: r.Result}
		}
		return
	}

	for _, it := range items {
		it.done <- batchResult{err: fmt.Errorf("all HTTP endpoints failed for batch: %w", lastErr)}
	}
}

func (p *HTTPProvider) postBatch(ctx context.Context, endpoint string, reqs []Request) ([]Response, error) {
	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, string(raw))
	}
	var responses []Response
	if err := json.Unmarshal(raw, &responses); err != nil {
		return nil, fmt.Errorf("malformed JSON-RPC batch response: %w", err)
	}
	return responses, nil
}

// Subscribe is unsupported over HTTP (§4.1).
func (p *HTTPProvider) Subscribe(ctx context.Context, method string, params interface{}, cb SubscriptionCallback) (string, error) {
	return "", ErrSubscribeUnsupported
}

// Unsubscribe is unsupported over HTTP.
func (p *HTTPProvider) Unsubscribe(ctx context.Context, unsubscribeMethod, subscriptionID string) (bool, error) {
	return false, ErrSubscribeUnsupported
}

func (p *HTTPProvider) Close() error {
	p.closed.Store(true)
	p.client.CloseIdleConnections()
	return nil
}

var _ Provider = (*HTTPProvider)(nil)
