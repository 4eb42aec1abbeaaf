package protocol

// MetricsUpdatePayload is the data field of a metrics:update envelope.
type MetricsUpdatePayload struct {
	CPUPercent       float64    `json:"cpuPercent"`
	MemoryUsed       float64    `json:"memoryUsed"`
	MemoryTotal      float64    `json:"memoryTotal"`
	DiskUsed         float64    `json:"diskUsed"`
	DiskTotal        float64    `json:"diskTotal"`
	Uptime           float64    `json:"uptime"`
	LoadAvg          [3]float64 `json:"loadAvg"`
	NetworkBytesIn   float64    `json:"networkBytesIn"`
	NetworkBytesOut  float64    `json:"networkBytesOut"`
	ProcessCount     int        `json:"processCount"`
}

// HeartbeatPingPayload is the data field of a heartbeat:ping envelope.
type HeartbeatPingPayload struct {
	AgentVersion string  `json:"agentVersion"`
	Uptime       float64 `json:"uptime"`
}

// HeartbeatPongPayload is the data field of the heartbeat:pong reply.
type HeartbeatPongPayload struct {
	Ok bool `json:"ok"`
}

// LogLinePayload is the data field of a log:line envelope.
type LogLinePayload struct {
	Level   string `json:"level"` // debug|info|warn|error
	Message string `json:"message"`
	Source  string `json:"source"`
	Ts      int64  `json:"ts"`
}

// LogBatchPayload is the data field of a log:batch envelope.
type LogBatchPayload struct {
	Lines []LogLinePayload `json:"lines"`
}

// TerminalCreatePayload is the data field of a terminal:create envelope.
type TerminalCreatePayload struct {
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
	Shell     string `json:"shell,omitempty"`
}

// TerminalDataPayload is the data field of a terminal:data envelope.
type TerminalDataPayload struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"` // base64
}

// TerminalResizePayload is the data field of a terminal:resize envelope.
type TerminalResizePayload struct {
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

// TerminalClosePayload is the data field of a terminal:close envelope.
type TerminalClosePayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

// EventInstancePayload is the data field of an event:instance envelope.
type EventInstancePayload struct {
	EventType string         `json:"eventType"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Instance lifecycle event types.
const (
	InstanceEventDeploy             = "deploy"
	InstanceEventRedeploy           = "redeploy"
	InstanceEventConnect            = "connect"
	InstanceEventDisconnect         = "disconnect"
	InstanceEventBackup             = "backup"
	InstanceEventRestore            = "restore"
	InstanceEventDestroy            = "destroy"
	InstanceEventExtensionInstall   = "extension:install"
	InstanceEventExtensionRemove    = "extension:remove"
	InstanceEventHeartbeatLost      = "heartbeat:lost"
	InstanceEventHeartbeatRecovered = "heartbeat:recovered"
	InstanceEventError              = "error"
)

// CommandExecPayload is the data field of a command:exec envelope.
type CommandExecPayload struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Timeout int64             `json:"timeout,omitempty"` // ms
}

// CommandResultPayload is the data field of a command:result envelope.
type CommandResultPayload struct {
	ExitCode   int    `json:"exitCode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"durationMs"`
}

// SubscribePayload is the data field of a subscribe/unsubscribe envelope.
type SubscribePayload struct {
	Channel    string `json:"channel"`
	InstanceID string `json:"instanceId,omitempty"`
}
