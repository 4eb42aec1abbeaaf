// Package gateway implements the WebSocket ingest/fan-out surface: connection
// upgrade and authentication, a registry of live connections, and dispatch of
// inbound envelopes into store writes and broker publishes.
package gateway

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fleetwatch/controlplane/internal/auth"
	"github.com/fleetwatch/controlplane/internal/broker"
	"github.com/fleetwatch/controlplane/internal/metrics"
	"github.com/fleetwatch/controlplane/internal/store"
)

// Config holds the tunables the gateway needs at construction time.
type Config struct {
	KeepAliveInterval time.Duration
	AllowedOrigins    []string
}

// Gateway owns the registry of live WebSocket connections and routes
// envelopes between them, the store, and the broker.
type Gateway struct {
	log     zerolog.Logger
	store   *store.Store
	broker  broker.Broker
	cfg     Config
	upgrade websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*Connection

	register   chan *Connection
	unregister chan *Connection

	nextConnID uint64
	idMu       sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Gateway. Call Run in its own goroutine before serving
// upgraded connections.
func New(log zerolog.Logger, st *store.Store, b broker.Broker, cfg Config) *Gateway {
	g := &Gateway{
		log:         log.With().Str("component", "gateway").Logger(),
		store:       st,
		broker:      b,
		cfg:         cfg,
		connections: make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
	}
	g.upgrade = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Run drives connection bookkeeping until the gateway is closed. It never
// touches the network directly — only the in-memory registry — so
// registration and deregistration serialize without holding the registry
// lock across I/O.
func (g *Gateway) Run() {
	go g.runKeepAlive(g.cfg.KeepAliveInterval)

	for {
		select {
		case <-g.done:
			return
		case c := <-g.register:
			g.mu.Lock()
			g.connections[c.id] = c
			g.mu.Unlock()
			metrics.ConnectionsActive.Inc()
			g.log.Debug().Str("conn_id", c.id).Str("instance_id", c.principal.InstanceID).Msg("connection registered")
		case c := <-g.unregister:
			g.mu.Lock()
			_, ok := g.connections[c.id]
			delete(g.connections, c.id)
			g.mu.Unlock()
			if ok {
				c.releaseSubscriptions()
				c.Close()
				metrics.ConnectionsActive.Dec()
				g.log.Debug().Str("conn_id", c.id).Msg("connection unregistered")
			}
		}
	}
}

// Close stops Run and closes every live connection.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		close(g.done)
		g.mu.Lock()
		conns := make([]*Connection, 0, len(g.connections))
		for _, c := range g.connections {
			conns = append(conns, c)
		}
		g.connections = make(map[string]*Connection)
		g.mu.Unlock()

		for _, c := range conns {
			c.releaseSubscriptions()
			c.Close()
			_ = c.conn.Close()
			metrics.ConnectionsActive.Dec()
		}
	})
}

// ConnectionCount reports the number of live connections. The metrics gauge
// (internal/metrics) is maintained separately, by Inc/Dec calls in Run and
// Close.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

func (g *Gateway) nextConnectionID() string {
	g.idMu.Lock()
	defer g.idMu.Unlock()
	g.nextConnID++
	return time.Now().Format("20060102150405.") + strconv.FormatUint(g.nextConnID, 10)
}

// ServeWS upgrades the request after authenticating it, then spawns the
// connection's read/write pumps.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	principal, err := g.authenticate(r.Context(), r)
	if err != nil {
		code := "INTERNAL_ERROR"
		if ae, ok := err.(*auth.Error); ok {
			code = ae.Code
		}
		w.Header().Set("X-Error-Code", code)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrade.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConnection(g.nextConnectionID(), conn, principal, g)
	g.register <- c

	go c.writePump()
	go c.readPump()
}
