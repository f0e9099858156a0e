package rpc

import (
	"fmt"
	"strings"
)

// RPCError wraps a node-returned JSON-RPC error object (§7 RpcError).
type RPCError struct {
	Code      int
	Message   string
	Data      []byte
	RequestID int64
}

func (e *RPCError) Error() string {
	if e.RequestID != 0 {
		return fmt.Sprintf("rpc error %d (request %d): %s", e.Code, e.RequestID, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// LooksLikeRevertData reports whether data is 0x-prefixed hex longer than
// a bare 4-byte selector (§4.2: "data field looks like revert data").
// Exported so retry.Classify can special-case RPCError without the rpc
// package needing to depend on the retry package's Classification type.
func (e *RPCError) LooksLikeRevertData() bool {
	s := strings.Trim(string(e.Data), `"`)
	if !strings.HasPrefix(s, "0x") {
		return false
	}
	return len(s)-2 > 8
}

// BackpressureError is returned when a WebSocket provider's maxPending
// bound is hit (§4.1.2).
type BackpressureError struct {
	MaxPending int
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("too many pending requests (max %d)", e.MaxPending)
}

// TransportClosedError is returned for any send issued against a closed
// or reconnecting provider (§4.1.3, §7 TransportClosed).
type TransportClosedError struct {
	Reason string
}

func (e *TransportClosedError) Error() string {
	if e.Reason == "" {
		return "transport is closed"
	}
	return "transport is closed: " + e.Reason
}

// TimeoutError is returned when a per-request deadline expires (§4.1.6).
type TimeoutError struct {
	Method string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %q timed out", e.Method)
}
