package gateway

import "time"

// DefaultKeepAliveInterval matches §4.2's default of 30 seconds.
const DefaultKeepAliveInterval = 30 * time.Second

// runKeepAlive iterates the connection registry every interval, terminating
// any connection whose lastPong is older than 2x the interval and pinging
// the rest (§4.2 "Connection lifecycle").
func (g *Gateway) runKeepAlive(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	staleAfter := 2 * interval

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.sweepConnections(staleAfter)
		}
	}
}

func (g *Gateway) sweepConnections(staleAfter time.Duration) {
	g.mu.RLock()
	conns := make([]*Connection, 0, len(g.connections))
	for _, c := range g.connections {
		conns = append(conns, c)
	}
	g.mu.RUnlock()

	now := time.Now()
	for _, c := range conns {
		if now.Sub(c.lastPongTime()) > staleAfter {
			g.log.Debug().Str("conn_id", c.id).Msg("terminating stale connection")
			_ = c.conn.Close() // readPump observes the error and unregisters
			continue
		}
		if err := c.ping(); err != nil {
			g.log.Debug().Err(err).Str("conn_id", c.id).Msg("ping failed")
		}
	}
}
