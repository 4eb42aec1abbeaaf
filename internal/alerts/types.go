// Package alerts implements the rule evaluation engine and notification
// dispatcher (§4.4): a periodic evaluator that reads rule definitions and
// instance telemetry from persistence, fires or auto-resolves alerts with
// deduplication, and a dispatcher that delivers fired alerts across
// configured channels.
package alerts

// ThresholdConditions is the Conditions shape for RuleTypeThreshold.
type ThresholdConditions struct {
	Metric      string  `json:"metric"`
	Operator    string  `json:"operator"`
	Threshold   float64 `json:"threshold"`
	DurationSec int     `json:"duration_sec,omitempty"`
}

// AnomalyConditions is the Conditions shape for RuleTypeAnomaly.
type AnomalyConditions struct {
	Metric           string  `json:"metric"`
	DeviationPercent float64 `json:"deviation_percent"`
	WindowSec        int     `json:"window_sec"`
}

// LifecycleConditions is the Conditions shape for RuleTypeLifecycle.
type LifecycleConditions struct {
	Event          string   `json:"event"`
	TimeoutSec     int      `json:"timeout_sec,omitempty"`
	TargetStatuses []string `json:"target_statuses,omitempty"`
}

// Lifecycle event names.
const (
	LifecycleHeartbeatLost = "heartbeat_lost"
	LifecycleUnresponsive  = "unresponsive"
	LifecycleStatusChanged = "status_changed"
)

// evaluation is the result of invoking a type-specific evaluator.
type evaluation struct {
	fired    bool
	title    string
	message  string
	metadata map[string]any
}
