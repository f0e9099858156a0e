package rpc

import (
	"context"
	"encoding/json"
)

// SubscriptionCallback receives a decoded notification payload for a
// single subscription (§4.1.5, §4.6).
type SubscriptionCallback func(result json.RawMessage)

// Provider is the shared contract for both transports (§4.1): carry a
// JSON-RPC frame to the node and correlate the response, and optionally
// support server-pushed subscriptions.
type Provider interface {
	// Send issues one JSON-RPC call and blocks until a response,
	// timeout, or shutdown.
	Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error)

	// Subscribe issues an eth_subscribe-shaped call and registers cb to
	// receive every subsequent notification carrying the returned
	// subscription id. Returns ErrSubscribeUnsupported on HTTP.
	Subscribe(ctx context.Context, method string, params interface{}, cb SubscriptionCallback) (subscriptionID string, err error)

	// Unsubscribe issues an eth_unsubscribe-shaped call and removes the
	// local registration, if any.
	Unsubscribe(ctx context.Context, unsubscribeMethod, subscriptionID string) (bool, error)

	// Close releases all resources. Close is idempotent.
	Close() error
}

// ErrSubscribeUnsupported is returned by providers (HTTP) that cannot
// carry server-pushed notifications (§4.1 "No subscription support").
type errSubscribeUnsupported struct{}

func (errSubscribeUnsupported) Error() string { return "provider does not support subscriptions" }

// ErrSubscribeUnsupported is the sentinel value returned by
// HTTPProvider's Subscribe and Unsubscribe.
var ErrSubscribeUnsupported error = errSubscribeUnsupported{}
