package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBroker_PublishDeliversToSubscriber(t *testing.T) {
	b := NewLocalBroker()
	received := make(chan Payload, 1)

	unsub := b.Subscribe("metrics", "i1", func(p Payload) { received <- p })
	defer unsub()

	require.NoError(t, b.Publish(context.Background(), "metrics", "i1", Payload("hello")))

	select {
	case p := <-received:
		assert.Equal(t, "hello", string(p))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestLocalBroker_UnsubscribeIsNoOp(t *testing.T) {
	b := NewLocalBroker()
	received := make(chan Payload, 1)

	unsub := b.Subscribe("metrics", "i1", func(p Payload) { received <- p })
	unsub()

	require.NoError(t, b.Publish(context.Background(), "metrics", "i1", Payload("hello")))

	select {
	case <-received:
		t.Fatal("unsubscribed listener should not receive messages")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalBroker_UnsubscribeIdempotent(t *testing.T) {
	b := NewLocalBroker()
	unsub := b.Subscribe("metrics", "i1", func(Payload) {})
	assert.NotPanics(t, func() {
		unsub()
		unsub()
	})
}

func TestLocalBroker_SubscribeAllReceivesEveryInstance(t *testing.T) {
	b := NewLocalBroker()
	type delivery struct {
		instanceID string
		payload    string
	}
	received := make(chan delivery, 2)

	unsub := b.SubscribeAll("events", func(instanceID string, p Payload) {
		received <- delivery{instanceID, string(p)}
	})
	defer unsub()

	require.NoError(t, b.Publish(context.Background(), "events", "i1", Payload("a")))
	require.NoError(t, b.Publish(context.Background(), "events", "i2", Payload("b")))

	got := map[string]string{}
	for i := 0; i < 2; i++ {
		select {
		case d := <-received:
			got[d.instanceID] = d.payload
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
	assert.Equal(t, "a", got["i1"])
	assert.Equal(t, "b", got["i2"])
}
