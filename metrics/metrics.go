// Package metrics provides observability for this module's operations:
// RPC call health, transaction lifecycle timings, and subscription
// counts, exported in Prometheus format. Grounded on the teacher's
// metrics.ChainMetrics interface shape (method names, health-status
// semantics), rewired from the teacher's hand-rolled text exporter onto
// github.com/prometheus/client_golang, which the rest of the example
// corpus reaches for when it needs real metrics plumbing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records operational metrics (§ ambient stack). Thread-safe;
// every method may be called concurrently.
type Recorder interface {
	RecordRPCCall(method string, duration time.Duration, success bool)
	RecordTransactionSend(chainID uint64, duration time.Duration, success bool)
	RecordTransactionConfirm(chainID uint64, duration time.Duration, success bool)
	SetActiveSubscriptions(count int)
	SetOrphanedNotifications(count int64)
	HealthStatus() HealthStatus
}

// HealthStatus summarizes recent RPC health. Only the RPC success rate
// is considered: PrometheusRecorder reports degraded when it falls below
// 90% over its window. Latency is not considered, and a window with no
// recorded calls counts as ok.
type HealthStatus struct {
	Status  string
	Message string
}

// IsHealthy reports whether Status is "ok".
func (h HealthStatus) IsHealthy() bool { return h.Status == "ok" }

// PrometheusRecorder implements Recorder with Prometheus collectors
// registered against a caller-supplied registry.
type PrometheusRecorder struct {
	rpcCalls         *prometheus.CounterVec
	rpcDuration      *prometheus.HistogramVec
	txSend           *prometheus.CounterVec
	txSendDuration   prometheus.Histogram
	txConfirm        *prometheus.CounterVec
	txConfirmLatency prometheus.Histogram
	activeSubs       prometheus.Gauge
	orphanedNotifs   prometheus.Gauge

	successWindow *slidingSuccess
}

// NewPrometheusRecorder constructs a Recorder and registers its
// collectors on reg. Pass prometheus.NewRegistry() for an isolated
// registry, or prometheus.DefaultRegisterer to serve from /metrics.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evmrpc_rpc_calls_total",
			Help: "Total number of JSON-RPC calls by method and outcome.",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evmrpc_rpc_duration_seconds",
			Help:    "JSON-RPC call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		txSend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evmrpc_tx_send_total",
			Help: "Total number of transaction submissions by outcome.",
		}, []string{"chain_id", "status"}),
		txSendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "evmrpc_tx_send_duration_seconds",
			Help:    "Transaction submission latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		txConfirm: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evmrpc_tx_confirm_total",
			Help: "Total number of transaction confirmations by outcome.",
		}, []string{"chain_id", "status"}),
		txConfirmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "evmrpc_tx_confirm_duration_seconds",
			Help:    "Time from submission to confirmation in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		activeSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evmrpc_active_subscriptions",
			Help: "Number of currently active subscriptions.",
		}),
		orphanedNotifs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evmrpc_orphaned_notifications_total",
			Help: "JSON-RPC responses received for request ids with no pending request.",
		}),
		successWindow: newSlidingSuccess(5 * time.Minute),
	}
	reg.MustRegister(
		r.rpcCalls, r.rpcDuration,
		r.txSend, r.txSendDuration,
		r.txConfirm, r.txConfirmLatency,
		r.activeSubs, r.orphanedNotifs,
	)
	return r
}

func (r *PrometheusRecorder) RecordRPCCall(method string, duration time.Duration, success bool) {
	status := statusLabel(success)
	r.rpcCalls.WithLabelValues(method, status).Inc()
	r.rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
	r.successWindow.record(success)
}

func (r *PrometheusRecorder) RecordTransactionSend(chainID uint64, duration time.Duration, success bool) {
	r.txSend.WithLabelValues(chainIDLabel(chainID), statusLabel(success)).Inc()
	r.txSendDuration.Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordTransactionConfirm(chainID uint64, duration time.Duration, success bool) {
	r.txConfirm.WithLabelValues(chainIDLabel(chainID), statusLabel(success)).Inc()
	r.txConfirmLatency.Observe(duration.Seconds())
}

func (r *PrometheusRecorder) SetActiveSubscriptions(count int) {
	r.activeSubs.Set(float64(count))
}

func (r *PrometheusRecorder) SetOrphanedNotifications(count int64) {
	r.orphanedNotifs.Set(float64(count))
}

// HealthStatus reports degraded if the rolling 5-minute RPC success
// rate has dropped below 90%, mirroring the teacher's degradation
// threshold.
func (r *PrometheusRecorder) HealthStatus() HealthStatus {
	rate, total := r.successWindow.rate()
	if total == 0 {
		return HealthStatus{Status: "ok", Message: "no rpc calls recorded yet"}
	}
	if rate < 0.90 {
		return HealthStatus{Status: "degraded", Message: "rpc success rate below 90% over the last 5 minutes"}
	}
	return HealthStatus{Status: "ok"}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func chainIDLabel(chainID uint64) string {
	return uintToString(chainID)
}

func uintToString(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

var _ Recorder = (*PrometheusRecorder)(nil)
