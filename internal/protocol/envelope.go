// Package protocol defines the WebSocket envelope and per-channel payload
// types shared between the gateway, the broker, and connected clients.
package protocol

import "encoding/json"

// Channel names. These double as pub/sub broker channel segments.
const (
	ChannelMetrics   = "metrics"
	ChannelHeartbeat = "heartbeat"
	ChannelLogs      = "logs"
	ChannelTerminal  = "terminal"
	ChannelEvents    = "events"
	ChannelCommands  = "commands"
)

// Envelope types, scoped within their channel.
const (
	TypeMetricsUpdate = "metrics:update"

	TypeHeartbeatPing = "heartbeat:ping"
	TypeHeartbeatPong = "heartbeat:pong"

	TypeLogLine  = "log:line"
	TypeLogBatch = "log:batch"

	TypeTerminalCreate  = "terminal:create"
	TypeTerminalData    = "terminal:data"
	TypeTerminalResize  = "terminal:resize"
	TypeTerminalClose   = "terminal:close"
	TypeTerminalCreated = "terminal:created"
	TypeTerminalError   = "terminal:error"

	TypeEventInstance = "event:instance"

	TypeCommandExec   = "command:exec"
	TypeCommandResult = "command:result"

	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"

	TypeError = "error"
	TypeAck   = "ack"
)

// Error codes carried in an "error" envelope's data.code field.
const (
	ErrCodeParseError         = "PARSE_ERROR"
	ErrCodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	ErrCodeNoInstanceID       = "NO_INSTANCE_ID"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeHandlerError       = "HANDLER_ERROR"
	ErrCodeMissingAPIKey      = "MISSING_API_KEY"
	ErrCodeInvalidAPIKey      = "INVALID_API_KEY"
	ErrCodeExpiredAPIKey      = "EXPIRED_API_KEY"
)

// Envelope is the outer JSON wrapper for every message exchanged over the
// real-time transport (§4.1).
type Envelope struct {
	Channel       string          `json:"channel"`
	Type          string          `json:"type"`
	InstanceID    string          `json:"instanceId,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Ts            int64           `json:"ts"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope builds an envelope with the data field marshaled from payload.
func NewEnvelope(channel, typ string, ts int64, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Channel: channel, Type: typ, Ts: ts, Data: data}, nil
}

// ParseData unmarshals the envelope's data field into target.
func (e *Envelope) ParseData(target any) error {
	return json.Unmarshal(e.Data, target)
}

// ErrorData is the data field of an "error" envelope.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AckData is the data field of an "ack" envelope.
type AckData struct {
	Ok bool `json:"ok"`
}
