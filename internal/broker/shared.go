package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// WildcardInstanceID is substituted for instanceId in the shared key
// format when subscribing across all instances (§6: "broadcast pattern
// fleet:instance:*:<channel>").
const WildcardInstanceID = "*"

func sharedKey(channel, instanceID string) string {
	return fmt.Sprintf("fleet:instance:%s:%s", instanceID, channel)
}

func sharedPattern(channel string) string {
	return sharedKey(channel, WildcardInstanceID)
}

// SharedBroker wraps a LocalBroker for the same-replica fast path and a
// Redis pub/sub connection for cross-replica delivery (§4.3 "Shared
// broker"), reference-counting remote subscriptions so the underlying
// Redis subscription is torn down only when the local listener count
// reaches zero (§4.3 invariant, §5 "atomic with the table removal").
type SharedBroker struct {
	local *LocalBroker
	rdb   *redis.Client
	log   zerolog.Logger

	mu          sync.Mutex
	refCounts   map[string]int                  // key: redis channel name -> local listener count
	cancelFuncs map[string]context.CancelFunc    // key: redis channel name -> subscription loop canceller
}

// NewSharedBroker constructs a broker that publishes locally first, then
// to the given Redis client, and relays remote messages back into the
// local broker for local subscribers.
func NewSharedBroker(rdb *redis.Client, log zerolog.Logger) *SharedBroker {
	return &SharedBroker{
		local:       NewLocalBroker(),
		rdb:         rdb,
		log:         log.With().Str("component", "shared_broker").Logger(),
		refCounts:   make(map[string]int),
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// Publish delivers to local listeners first (same-replica fast path, §4.3),
// then publishes to Redis for other replicas.
func (b *SharedBroker) Publish(ctx context.Context, channel, instanceID string, payload Payload) error {
	if err := b.local.Publish(ctx, channel, instanceID, payload); err != nil {
		return err
	}
	return b.rdb.Publish(ctx, sharedKey(channel, instanceID), payload).Err()
}

// Subscribe registers a local callback and ensures a remote subscription
// exists for the key, reference-counted.
func (b *SharedBroker) Subscribe(channel, instanceID string, cb Callback) Unsubscribe {
	rkey := sharedKey(channel, instanceID)
	b.acquireRemote(rkey, false)
	localUnsub := b.local.Subscribe(channel, instanceID, cb)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.releaseRemote(rkey, localUnsub)
		})
	}
}

// SubscribeAll registers a local pattern callback and ensures a remote
// pattern subscription exists, reference-counted.
func (b *SharedBroker) SubscribeAll(channel string, cb AllCallback) Unsubscribe {
	rkey := sharedPattern(channel)
	b.acquireRemote(rkey, true)
	localUnsub := b.local.SubscribeAll(channel, cb)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.releaseRemote(rkey, localUnsub)
		})
	}
}

func (b *SharedBroker) acquireRemote(rkey string, pattern bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refCounts[rkey]++
	if b.refCounts[rkey] > 1 {
		return // already subscribed remotely
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancelFuncs[rkey] = cancel
	go b.relayLoop(ctx, rkey, pattern)
}

func (b *SharedBroker) releaseRemote(rkey string, localUnsub Unsubscribe) {
	b.mu.Lock()
	defer b.mu.Unlock()

	localUnsub()
	b.refCounts[rkey]--
	if b.refCounts[rkey] > 0 {
		return
	}
	delete(b.refCounts, rkey)
	if cancel, ok := b.cancelFuncs[rkey]; ok {
		cancel()
		delete(b.cancelFuncs, rkey)
	}
}

// relayLoop subscribes to a single Redis channel/pattern and relays
// incoming messages into the local broker so existing local subscribers
// receive them without a second round-trip.
func (b *SharedBroker) relayLoop(ctx context.Context, rkey string, pattern bool) {
	var sub *redis.PubSub
	if pattern {
		sub = b.rdb.PSubscribe(ctx, rkey)
	} else {
		sub = b.rdb.Subscribe(ctx, rkey)
	}
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			channel, instanceID := parseSharedChannel(msg.Channel)
			// Relay into the local broker only — the message already
			// reached this replica's Redis subscription, so publishing it
			// back out to Redis would create a publish loop.
			_ = b.local.Publish(ctx, channel, instanceID, Payload(msg.Payload))
		}
	}
}

func parseSharedChannel(redisChannel string) (channel, instanceID string) {
	// "fleet:instance:<instanceId>:<channel>"
	parts := strings.SplitN(redisChannel, ":", 4)
	if len(parts) != 4 {
		return "", ""
	}
	return parts[3], parts[2]
}

// Close tears down all active remote subscriptions and the Redis client.
func (b *SharedBroker) Close() error {
	b.mu.Lock()
	for _, cancel := range b.cancelFuncs {
		cancel()
	}
	b.cancelFuncs = make(map[string]context.CancelFunc)
	b.refCounts = make(map[string]int)
	b.mu.Unlock()

	return b.rdb.Close()
}
