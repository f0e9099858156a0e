package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *PrometheusRecorder {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusRecorder(reg)
}

func TestHealthStatusOKWithNoCalls(t *testing.T) {
	r := newTestRecorder(t)
	status := r.HealthStatus()
	require.True(t, status.IsHealthy())
}

func TestHealthStatusDegradesOnLowSuccessRate(t *testing.T) {
	r := newTestRecorder(t)
	for i := 0; i < 9; i++ {
		r.RecordRPCCall("eth_call", 10*time.Millisecond, false)
	}
	r.RecordRPCCall("eth_call", 10*time.Millisecond, true)

	status := r.HealthStatus()
	require.False(t, status.IsHealthy())
	require.Equal(t, "degraded", status.Status)
}

func TestHealthStatusOKWithHighSuccessRate(t *testing.T) {
	r := newTestRecorder(t)
	for i := 0; i < 19; i++ {
		r.RecordRPCCall("eth_call", 10*time.Millisecond, true)
	}
	r.RecordRPCCall("eth_call", 10*time.Millisecond, false)

	status := r.HealthStatus()
	require.True(t, status.IsHealthy())
}

func TestRecordTransactionMetricsDoNotPanic(t *testing.T) {
	r := newTestRecorder(t)
	r.RecordTransactionSend(1, 100*time.Millisecond, true)
	r.RecordTransactionConfirm(1, 2*time.Second, true)
	r.SetActiveSubscriptions(3)
	r.SetOrphanedNotifications(1)
}

func TestUintToString(t *testing.T) {
	require.Equal(t, "0", uintToString(0))
	require.Equal(t, "1", uintToString(1))
	require.Equal(t, "11155111", uintToString(11155111))
}
