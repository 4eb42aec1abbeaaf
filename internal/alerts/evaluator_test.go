package alerts

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/controlplane/internal/store"
)

func TestEvaluateThreshold_FiresWhenOverThreshold(t *testing.T) {
	cond, err := json.Marshal(ThresholdConditions{Metric: "cpu_percent", Operator: "gt", Threshold: 80})
	require.NoError(t, err)
	rule := store.AlertRule{Type: store.RuleTypeThreshold, Conditions: cond}
	snap := &tickSnapshot{metrics: map[string]store.Metric{"i1": {CPUPercent: 95}}}

	result, err := evaluateThreshold(rule, "i1", snap)
	require.NoError(t, err)
	assert.True(t, result.fired)
}

func TestEvaluateThreshold_DoesNotFireBelowThreshold(t *testing.T) {
	cond, err := json.Marshal(ThresholdConditions{Metric: "cpu_percent", Operator: "gt", Threshold: 80})
	require.NoError(t, err)
	rule := store.AlertRule{Type: store.RuleTypeThreshold, Conditions: cond}
	snap := &tickSnapshot{metrics: map[string]store.Metric{"i1": {CPUPercent: 10}}}

	result, err := evaluateThreshold(rule, "i1", snap)
	require.NoError(t, err)
	assert.False(t, result.fired)
}

func TestEvaluateThreshold_DerivesMemPercent(t *testing.T) {
	cond, err := json.Marshal(ThresholdConditions{Metric: "mem_percent", Operator: "gte", Threshold: 90})
	require.NoError(t, err)
	rule := store.AlertRule{Type: store.RuleTypeThreshold, Conditions: cond}
	snap := &tickSnapshot{metrics: map[string]store.Metric{"i1": {MemUsed: 950, MemTotal: 1000}}}

	result, err := evaluateThreshold(rule, "i1", snap)
	require.NoError(t, err)
	assert.True(t, result.fired)
}

func TestEvaluateLifecycle_HeartbeatLostNoHeartbeatButNotRunning(t *testing.T) {
	cond, err := json.Marshal(LifecycleConditions{Event: LifecycleHeartbeatLost})
	require.NoError(t, err)
	rule := store.AlertRule{Type: store.RuleTypeLifecycle, Conditions: cond}
	snap := &tickSnapshot{instances: []store.Instance{{ID: "i1", Status: store.InstanceStatusUnknown}}}

	result, err := evaluateLifecycle(rule, "i1", snap)
	require.NoError(t, err)
	assert.False(t, result.fired)
}

func TestEvaluateLifecycle_HeartbeatLostAgedOut(t *testing.T) {
	cond, err := json.Marshal(LifecycleConditions{Event: LifecycleHeartbeatLost, TimeoutSec: 60})
	require.NoError(t, err)
	rule := store.AlertRule{Type: store.RuleTypeLifecycle, Conditions: cond}
	snap := &tickSnapshot{
		instances:  []store.Instance{{ID: "i1", Status: store.InstanceStatusRunning}},
		heartbeats: map[string]store.Heartbeat{"i1": {Timestamp: time.Now().Add(-5 * time.Minute)}},
	}

	result, err := evaluateLifecycle(rule, "i1", snap)
	require.NoError(t, err)
	assert.True(t, result.fired)
}

func TestEvaluateLifecycle_Unresponsive(t *testing.T) {
	cond, err := json.Marshal(LifecycleConditions{Event: LifecycleUnresponsive})
	require.NoError(t, err)
	rule := store.AlertRule{Type: store.RuleTypeLifecycle, Conditions: cond}
	snap := &tickSnapshot{instances: []store.Instance{{ID: "i1", Status: store.InstanceStatusError}}}

	result, err := evaluateLifecycle(rule, "i1", snap)
	require.NoError(t, err)
	assert.True(t, result.fired)
}

func TestEvaluateByType_SecurityStubNeverFires(t *testing.T) {
	e := &Evaluator{}
	rule := store.AlertRule{Type: store.RuleTypeSecurity}
	result, err := e.evaluateByType(rule, "i1", &tickSnapshot{})
	require.NoError(t, err)
	assert.False(t, result.fired)
}

func TestDedupeKey_Format(t *testing.T) {
	assert.Equal(t, "rule-1:inst-1", dedupeKey("rule-1", "inst-1"))
}

// TestFireAlert_ConcurrentCallsProduceExactlyOneNonDuplicate exercises
// scenario 6: many goroutines racing fireAlert for the same dedupeKey must
// collapse to a single inserted alert, with every other caller observing
// isDuplicate=true against that one row.
func TestFireAlert_ConcurrentCallsProduceExactlyOneNonDuplicate(t *testing.T) {
	st, err := store.Open(":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := &Evaluator{log: zerolog.Nop(), store: st}
	rule := store.AlertRule{ID: "rule-1", Severity: store.SeverityHigh}
	key := dedupeKey(rule.ID, "inst-1")

	const callers = 20
	var wg sync.WaitGroup
	results := make([]bool, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, isDuplicate, err := e.fireAlert(context.Background(), rule, nil, "t", "m", []byte(`{}`), key)
			results[i] = isDuplicate
			errs[i] = err
		}()
	}
	wg.Wait()

	nonDuplicates := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if !results[i] {
			nonDuplicates++
		}
	}
	assert.Equal(t, 1, nonDuplicates, "exactly one caller should have created the alert")

	alert, err := st.NonTerminalAlertByDedupeKey(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, alert)
}
