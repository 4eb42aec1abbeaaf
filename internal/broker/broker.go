// Package broker implements the pub/sub capability set of §4.3: a
// keyed publish/subscribe abstraction with an in-process backend for
// single-replica deployments and a Redis-backed shared backend for
// cross-replica fan-out.
package broker

import "context"

// Payload is the opaque bytes carried through the broker — callers
// marshal/unmarshal protocol envelopes themselves.
type Payload = []byte

// Callback is invoked for every message delivered to a subscription. It
// runs on the gateway connection's reader context or an equivalent and
// MUST NOT block the broker (§4.3 invariant).
type Callback func(payload Payload)

// AllCallback is invoked for every message delivered to a subscribeAll
// pattern subscription, with the instanceId the message was published
// under.
type AllCallback func(instanceID string, payload Payload)

// Unsubscribe is an idempotent async disposer. After it returns, no
// further callbacks fire for that subscription (§4.3 invariant).
type Unsubscribe func()

// Broker is the capability set the gateway depends on (§9: "pub/sub as
// capability" — the gateway depends only on this interface, never a
// concrete transport).
type Broker interface {
	Publish(ctx context.Context, channel, instanceID string, payload Payload) error
	Subscribe(channel, instanceID string, cb Callback) Unsubscribe
	SubscribeAll(channel string, cb AllCallback) Unsubscribe
	Close() error
}
