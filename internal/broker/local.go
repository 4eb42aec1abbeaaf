package broker

import (
	"context"
	"strconv"
	"sync"
)

type listener struct {
	id string
	cb Callback
}

type allListener struct {
	id string
	cb AllCallback
}

// LocalBroker is the in-process keyed multicast table. Publish does
// synchronous fan-out; no external dependency. An RWMutex-protected
// registry of per-key listener sets, generalized from a fixed set of
// named maps to an arbitrary keyed listener table.
type LocalBroker struct {
	mu        sync.RWMutex
	listeners map[string][]listener    // key: "channel:instanceId"
	all       map[string][]allListener // key: channel
	nextID    uint64
}

// NewLocalBroker constructs an empty in-process broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{
		listeners: make(map[string][]listener),
		all:       make(map[string][]allListener),
	}
}

func key(channel, instanceID string) string {
	return channel + ":" + instanceID
}

// Publish delivers payload to every local listener for (channel,
// instanceId), then to every subscribeAll listener for channel.
func (b *LocalBroker) Publish(_ context.Context, channel, instanceID string, payload Payload) error {
	b.mu.RLock()
	direct := append([]listener(nil), b.listeners[key(channel, instanceID)]...)
	wildcard := append([]allListener(nil), b.all[channel]...)
	b.mu.RUnlock()

	for _, l := range direct {
		l.cb(payload)
	}
	for _, l := range wildcard {
		l.cb(instanceID, payload)
	}
	return nil
}

// Subscribe registers cb for (channel, instanceId) and returns an
// idempotent disposer.
func (b *LocalBroker) Subscribe(channel, instanceID string, cb Callback) Unsubscribe {
	k := key(channel, instanceID)

	b.mu.Lock()
	b.nextID++
	id := strconv.FormatUint(b.nextID, 10)
	b.listeners[k] = append(b.listeners[k], listener{id: id, cb: cb})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.listeners[k] = removeListener(b.listeners[k], id)
			if len(b.listeners[k]) == 0 {
				delete(b.listeners, k)
			}
		})
	}
}

// SubscribeAll registers cb for every instanceId on channel.
func (b *LocalBroker) SubscribeAll(channel string, cb AllCallback) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := strconv.FormatUint(b.nextID, 10)
	b.all[channel] = append(b.all[channel], allListener{id: id, cb: cb})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.all[channel] = removeAllListener(b.all[channel], id)
			if len(b.all[channel]) == 0 {
				delete(b.all, channel)
			}
		})
	}
}

// Close is a no-op for the in-process broker — there is no remote
// connection to tear down.
func (b *LocalBroker) Close() error {
	return nil
}

func removeListener(list []listener, id string) []listener {
	out := list[:0]
	for _, l := range list {
		if l.id != id {
			out = append(out, l)
		}
	}
	return out
}

func removeAllListener(list []allListener, id string) []allListener {
	out := list[:0]
	for _, l := range list {
		if l.id != id {
			out = append(out, l)
		}
	}
	return out
}
