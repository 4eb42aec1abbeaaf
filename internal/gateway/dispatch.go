package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fleetwatch/controlplane/internal/auth"
	"github.com/fleetwatch/controlplane/internal/metrics"
	"github.com/fleetwatch/controlplane/internal/protocol"
	"github.com/fleetwatch/controlplane/internal/store"
)

// dispatch parses one inbound frame as an envelope and routes it by
// (channel, type) per §4.2's table. Errors are reported back on the same
// connection as an `error` envelope; the socket stays open.
func (g *Gateway) dispatch(c *Connection, raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.replyError(c, "", protocol.ErrCodeParseError, "malformed envelope")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Str("conn_id", c.id).Str("correlation_id", env.CorrelationID).
				Msg("panic in dispatch handler")
			g.replyError(c, env.CorrelationID, protocol.ErrCodeHandlerError, "internal handler error")
		}
	}()

	ctx := context.Background()
	metrics.EnvelopesProcessed.WithLabelValues(env.Channel, env.Type).Inc()

	switch {
	case env.Channel == protocol.ChannelMetrics && env.Type == protocol.TypeMetricsUpdate:
		g.handleMetricsUpdate(ctx, c, env)
	case env.Channel == protocol.ChannelHeartbeat && env.Type == protocol.TypeHeartbeatPing:
		g.handleHeartbeatPing(ctx, c, env)
	case env.Channel == protocol.ChannelLogs && (env.Type == protocol.TypeLogLine || env.Type == protocol.TypeLogBatch):
		g.handleLogs(ctx, c, env)
	case env.Channel == protocol.ChannelTerminal:
		g.handleTerminal(ctx, c, env)
	case env.Channel == protocol.ChannelEvents && env.Type == protocol.TypeEventInstance:
		g.handleEventInstance(ctx, c, env)
	case env.Channel == protocol.ChannelCommands && env.Type == protocol.TypeCommandExec:
		g.handleCommandExec(ctx, c, env)
	case env.Channel == protocol.ChannelCommands && env.Type == protocol.TypeCommandResult:
		g.handleCommandResult(ctx, c, env)
	case env.Type == protocol.TypeSubscribe:
		g.handleSubscribe(c, env)
	case env.Type == protocol.TypeUnsubscribe:
		g.handleUnsubscribe(c, env)
	default:
		g.replyError(c, env.CorrelationID, protocol.ErrCodeUnknownMessageType, "unknown message type")
	}
}

func (g *Gateway) replyError(c *Connection, correlationID, code, message string) {
	env, err := protocol.NewEnvelope(protocol.ChannelEvents, protocol.TypeError, nowMillis(), protocol.ErrorData{Code: code, Message: message})
	if err != nil {
		return
	}
	env.CorrelationID = correlationID
	c.sendEnvelope(env)
}

func (g *Gateway) replyAck(c *Connection, correlationID string) {
	env, err := protocol.NewEnvelope(protocol.ChannelEvents, protocol.TypeAck, nowMillis(), protocol.AckData{Ok: true})
	if err != nil {
		return
	}
	env.CorrelationID = correlationID
	c.sendEnvelope(env)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// requireInstanceID returns the agent's bound instance id, replying
// NO_INSTANCE_ID and reporting false when absent (§4.2).
func (g *Gateway) requireInstanceID(c *Connection, env protocol.Envelope) (string, bool) {
	if c.principal.InstanceID == "" {
		g.replyError(c, env.CorrelationID, protocol.ErrCodeNoInstanceID, "principal has no bound instance id")
		return "", false
	}
	return c.principal.InstanceID, true
}

func (g *Gateway) handleMetricsUpdate(ctx context.Context, c *Connection, env protocol.Envelope) {
	instanceID, ok := g.requireInstanceID(c, env)
	if !ok {
		return
	}
	var p protocol.MetricsUpdatePayload
	if err := env.ParseData(&p); err != nil {
		g.replyError(c, env.CorrelationID, protocol.ErrCodeParseError, "invalid metrics:update payload")
		return
	}

	m := store.Metric{
		InstanceID:   instanceID,
		Timestamp:    time.Now(),
		CPUPercent:   p.CPUPercent,
		MemUsed:      p.MemoryUsed,
		MemTotal:     p.MemoryTotal,
		DiskUsed:     p.DiskUsed,
		DiskTotal:    p.DiskTotal,
		LoadAvg1:     p.LoadAvg[0],
		LoadAvg5:     p.LoadAvg[1],
		NetBytesSent: p.NetworkBytesOut,
		NetBytesRecv: p.NetworkBytesIn,
	}
	if err := g.store.InsertMetric(ctx, m); err != nil {
		g.log.Error().Err(err).Str("instance_id", instanceID).Msg("insert metric failed")
		g.replyError(c, env.CorrelationID, protocol.ErrCodeHandlerError, "failed to persist metric")
		return
	}

	_ = g.broker.Publish(ctx, protocol.ChannelMetrics, instanceID, env.Data)
}

func (g *Gateway) handleHeartbeatPing(ctx context.Context, c *Connection, env protocol.Envelope) {
	instanceID, ok := g.requireInstanceID(c, env)
	if !ok {
		return
	}
	var p protocol.HeartbeatPingPayload
	if err := env.ParseData(&p); err != nil {
		g.replyError(c, env.CorrelationID, protocol.ErrCodeParseError, "invalid heartbeat:ping payload")
		return
	}

	hb := store.Heartbeat{InstanceID: instanceID, Timestamp: time.Now(), AgentVersion: p.AgentVersion, UptimeSec: p.Uptime}
	if err := g.store.InsertHeartbeat(ctx, hb); err != nil {
		g.log.Error().Err(err).Str("instance_id", instanceID).Msg("insert heartbeat failed")
		g.replyError(c, env.CorrelationID, protocol.ErrCodeHandlerError, "failed to persist heartbeat")
		return
	}

	pong, err := protocol.NewEnvelope(protocol.ChannelHeartbeat, protocol.TypeHeartbeatPong, nowMillis(), protocol.HeartbeatPongPayload{Ok: true})
	if err != nil {
		return
	}
	pong.InstanceID = instanceID
	pong.CorrelationID = env.CorrelationID
	c.sendEnvelope(pong)

	pongBytes, err := json.Marshal(pong)
	if err == nil {
		_ = g.broker.Publish(ctx, protocol.ChannelHeartbeat, instanceID, pongBytes)
	}
}

func (g *Gateway) handleLogs(ctx context.Context, c *Connection, env protocol.Envelope) {
	instanceID, ok := g.requireInstanceID(c, env)
	if !ok {
		return
	}
	_ = g.broker.Publish(ctx, protocol.ChannelLogs, instanceID, env.Data)
}

func (g *Gateway) handleTerminal(ctx context.Context, c *Connection, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeTerminalCreate, protocol.TypeTerminalData, protocol.TypeTerminalResize, protocol.TypeTerminalClose:
	default:
		g.replyError(c, env.CorrelationID, protocol.ErrCodeUnknownMessageType, "unknown terminal message type")
		return
	}

	if !c.principal.IsAgent() && auth.IsRoleAtMost(c.principal.Role, store.RoleViewer) {
		g.replyError(c, env.CorrelationID, protocol.ErrCodeForbidden, "viewer role cannot drive a terminal session")
		return
	}

	instanceID := c.principal.InstanceID
	if instanceID == "" {
		var p protocol.TerminalCreatePayload
		_ = env.ParseData(&p) // best-effort; instanceId for browser-initiated sessions travels in the envelope's instanceId field
		instanceID = env.InstanceID
	}
	if instanceID == "" {
		g.replyError(c, env.CorrelationID, protocol.ErrCodeNoInstanceID, "no instance id for terminal session")
		return
	}

	_ = g.broker.Publish(ctx, protocol.ChannelTerminal, instanceID, env.Data)
}

func (g *Gateway) handleEventInstance(ctx context.Context, c *Connection, env protocol.Envelope) {
	instanceID, ok := g.requireInstanceID(c, env)
	if !ok {
		return
	}
	_ = g.broker.Publish(ctx, protocol.ChannelEvents, instanceID, env.Data)
}

func (g *Gateway) handleCommandExec(ctx context.Context, c *Connection, env protocol.Envelope) {
	if auth.IsRoleAtMost(c.principal.Role, store.RoleViewer) {
		g.replyError(c, env.CorrelationID, protocol.ErrCodeForbidden, "viewer role cannot execute commands")
		return
	}
	instanceID := env.InstanceID
	if instanceID == "" {
		g.replyError(c, env.CorrelationID, protocol.ErrCodeNoInstanceID, "command:exec requires a target instance id")
		return
	}
	_ = g.broker.Publish(ctx, protocol.ChannelCommands, instanceID, env.Data)
}

func (g *Gateway) handleCommandResult(ctx context.Context, c *Connection, env protocol.Envelope) {
	instanceID, ok := g.requireInstanceID(c, env)
	if !ok {
		return
	}
	_ = g.broker.Publish(ctx, protocol.ChannelCommands, instanceID, env.Data)
}

func (g *Gateway) handleSubscribe(c *Connection, env protocol.Envelope) {
	var p protocol.SubscribePayload
	if err := env.ParseData(&p); err != nil {
		g.replyError(c, env.CorrelationID, protocol.ErrCodeParseError, "invalid subscribe payload")
		return
	}

	unsub := g.broker.Subscribe(p.Channel, p.InstanceID, func(payload []byte) {
		c.SafeSend(payload)
	})
	c.addSubscription(unsub)
	g.replyAck(c, env.CorrelationID)
}

func (g *Gateway) handleUnsubscribe(c *Connection, env protocol.Envelope) {
	// Subscriptions are tracked per-connection and released in bulk on
	// close; an explicit unsubscribe just acknowledges (the broker's
	// Unsubscribe closures are not individually addressable by the
	// client-supplied payload without a subscription id round-trip, which
	// §4.1 does not define). Acked as a no-op.
	g.replyAck(c, env.CorrelationID)
}
