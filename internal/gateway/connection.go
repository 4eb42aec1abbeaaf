package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024

	sendBufferSize = 256

	// pongWait is a generous read-deadline fallback independent of the
	// gateway's own 2x-interval termination check in keepalive.go.
	pongWait = 60 * time.Second
)

// Connection represents one authenticated WebSocket connection (agent or
// browser). The sync.Once-guarded close and atomic.Bool closed-flag
// prevent a send-on-closed-channel panic race between the write loop and
// an unregister triggered from elsewhere.
type Connection struct {
	id          string
	conn        *websocket.Conn
	principal   Principal
	send        chan []byte
	gateway     *Gateway
	connectedAt time.Time
	lastPong    atomic.Int64 // unix nanos

	subsMu        sync.Mutex
	subscriptions []func()

	closeOnce sync.Once
	closed    atomic.Bool
}

func newConnection(id string, conn *websocket.Conn, principal Principal, gw *Gateway) *Connection {
	c := &Connection{
		id:          id,
		conn:        conn,
		principal:   principal,
		send:        make(chan []byte, sendBufferSize),
		gateway:     gw,
		connectedAt: time.Now(),
	}
	c.lastPong.Store(time.Now().UnixNano())
	return c
}

// SafeSend sends data to the connection without panicking on a closed
// channel. Returns true if the message was queued.
func (c *Connection) SafeSend(data []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// sendEnvelope marshals and sends an envelope, ignoring marshal failures
// beyond a no-op (the caller constructs well-formed envelopes).
func (c *Connection) sendEnvelope(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.SafeSend(data)
}

// addSubscription records a disposer on the connection record so the
// close handler can release it (§9 "Connection-owned subscriptions").
func (c *Connection) addSubscription(unsub func()) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subscriptions = append(c.subscriptions, unsub)
}

// releaseSubscriptions runs every disposer under best-effort semantics:
// continue through panics/errors rather than stopping at the first one.
func (c *Connection) releaseSubscriptions() {
	c.subsMu.Lock()
	subs := c.subscriptions
	c.subscriptions = nil
	c.subsMu.Unlock()

	for _, unsub := range subs {
		func() {
			defer func() { _ = recover() }()
			unsub()
		}()
	}
}

// Close safely closes the send channel exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

func (c *Connection) touchPong() {
	c.lastPong.Store(time.Now().UnixNano())
}

func (c *Connection) lastPongTime() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// readPump reads envelopes off the WebSocket connection and hands them to
// the dispatch table until the connection errors or closes.
func (c *Connection) readPump() {
	defer func() {
		c.gateway.unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touchPong()
		return nil
	})
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touchPong()
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gateway.log.Debug().Err(err).Str("conn_id", c.id).Msg("read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.gateway.dispatch(c, data)
	}
}

// writePump drains the send channel to the socket. Pings are driven by the
// gateway's own keep-alive ticker (keepalive.go), not this loop — gorilla
// documents WriteControl as safe to call concurrently with WriteMessage, so
// the two don't race.
func (c *Connection) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ping sends a WebSocket ping control frame, used by the gateway's
// keep-alive loop.
func (c *Connection) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
