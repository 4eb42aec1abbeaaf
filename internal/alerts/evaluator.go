package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fleetwatch/controlplane/internal/metrics"
	"github.com/fleetwatch/controlplane/internal/store"
)

// maxConcurrentEvaluations bounds the per-tick (rule, instance) fan-out so a
// tick covering many rules/instances can't spin up an unbounded number of
// goroutines at once.
const maxConcurrentEvaluations = 32

// DefaultTickInterval matches §4.4.1's default of 60 seconds.
const DefaultTickInterval = 60 * time.Second

// Evaluator runs the periodic rule-evaluation tick: a ticker plus a
// reentrancy guard, with per-unit-of-work errors logged rather than
// propagated.
type Evaluator struct {
	log        zerolog.Logger
	store      *store.Store
	dispatcher *Dispatcher
	interval   time.Duration

	ticking atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	// fireGroup collapses concurrent fireAlert calls for the same
	// dedupeKey into one create-or-return-existing pass, so two
	// goroutines racing the same (rule, instance) pair can't both insert
	// a non-terminal alert.
	fireGroup singleflight.Group
}

// NewEvaluator constructs an Evaluator. interval <= 0 uses DefaultTickInterval.
func NewEvaluator(log zerolog.Logger, st *store.Store, d *Dispatcher, interval time.Duration) *Evaluator {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Evaluator{
		log:        log.With().Str("component", "evaluator").Logger(),
		store:      st,
		dispatcher: d,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

// Run starts an immediate tick and then ticks on the configured interval
// until Stop is called. It blocks; call it in its own goroutine.
func (e *Evaluator) Run() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.tick()
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.tick()
			}()
		}
	}
}

// Stop signals the tick loop to exit and waits for in-flight ticks to
// complete (§5 "in-flight evaluations are allowed to complete").
func (e *Evaluator) Stop() {
	close(e.done)
	e.wg.Wait()
}

func (e *Evaluator) tick() {
	if !e.ticking.CompareAndSwap(false, true) {
		e.log.Debug().Msg("tick skipped — previous tick still running")
		metrics.EvaluatorTicksSkipped.Inc()
		return
	}
	defer e.ticking.Store(false)

	ctx := context.Background()
	started := time.Now()
	defer func() { metrics.EvaluatorTickDuration.Observe(time.Since(started).Seconds()) }()

	rules, err := e.store.EnabledRules(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to load enabled rules")
		return
	}
	instances, err := e.store.Instances(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to load instance directory")
		return
	}
	latestMetrics, err := e.store.LatestMetricsByInstance(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to prefetch latest metrics")
		return
	}
	latestHeartbeats, err := e.store.LatestHeartbeatsByInstance(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to prefetch latest heartbeats")
		return
	}

	snapshot := &tickSnapshot{
		instances:  instances,
		metrics:    latestMetrics,
		heartbeats: latestHeartbeats,
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentEvaluations)
	for _, rule := range rules {
		targets := snapshot.targetsFor(rule)
		for _, instanceID := range targets {
			rule, instanceID := rule, instanceID
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						e.log.Error().Interface("panic", r).Str("rule_id", rule.ID).Str("instance_id", instanceID).
							Msg("panic evaluating rule")
					}
				}()
				if err := e.evaluateRuleInstance(ctx, rule, instanceID, snapshot); err != nil {
					e.log.Error().Err(err).Str("rule_id", rule.ID).Str("instance_id", instanceID).Msg("rule evaluation failed")
				}
				// Errors are logged per-pair above, never propagated — one
				// failing (rule, instance) must not cancel its siblings.
				return nil
			})
		}
	}
	_ = g.Wait()

	e.log.Debug().Dur("elapsed", time.Since(started)).Int("rules", len(rules)).Msg("tick complete")
}

type tickSnapshot struct {
	instances  []store.Instance
	metrics    map[string]store.Metric
	heartbeats map[string]store.Heartbeat
}

func (s *tickSnapshot) targetsFor(rule store.AlertRule) []string {
	if rule.InstanceID != nil {
		return []string{*rule.InstanceID}
	}
	ids := make([]string, 0, len(s.instances))
	for _, inst := range s.instances {
		ids = append(ids, inst.ID)
	}
	return ids
}

func (s *tickSnapshot) instance(id string) (store.Instance, bool) {
	for _, inst := range s.instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return store.Instance{}, false
}

func dedupeKey(ruleID, instanceID string) string {
	return fmt.Sprintf("%s:%s", ruleID, instanceID)
}

func (e *Evaluator) evaluateRuleInstance(ctx context.Context, rule store.AlertRule, instanceID string, snap *tickSnapshot) error {
	key := dedupeKey(rule.ID, instanceID)

	cooling, err := e.store.NonTerminalAlertWithinCooldown(ctx, key, rule.CooldownSec, time.Now())
	if err != nil {
		return err
	}
	if cooling != nil {
		return nil
	}

	result, err := e.evaluateByType(rule, instanceID, snap)
	if err != nil {
		return err
	}

	if !result.fired {
		existing, err := e.store.NonTerminalAlertByDedupeKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return e.store.AutoResolveAlert(ctx, existing.ID, time.Now())
		}
		return nil
	}

	metadataJSON, err := json.Marshal(result.metadata)
	if err != nil {
		return err
	}

	var instPtr *string
	if rule.InstanceID != nil {
		instPtr = &instanceID
	}

	alert, isDuplicate, err := e.fireAlert(ctx, rule, instPtr, result.title, result.message, metadataJSON, key)
	if err != nil {
		return err
	}
	if !isDuplicate && e.dispatcher != nil {
		go e.dispatcher.Dispatch(context.Background(), alert.ID)
	}
	return nil
}

// fireAlert implements §4.4.2's create-or-return-existing semantics. The
// check-then-insert is collapsed per dedupeKey through fireGroup so two
// goroutines evaluating the same (rule, instance) pair in the same tick (or
// overlapping ticks) can't both observe "no existing alert" and both
// insert — at most one non-terminal alert per dedupeKey survives.
func (e *Evaluator) fireAlert(ctx context.Context, rule store.AlertRule, instanceID *string, title, message string, metadata []byte, key string) (*store.Alert, bool, error) {
	type result struct {
		alert       *store.Alert
		isDuplicate bool
	}

	leader := false
	v, err, _ := e.fireGroup.Do(key, func() (any, error) {
		leader = true
		existing, err := e.store.NonTerminalAlertByDedupeKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return result{alert: existing, isDuplicate: true}, nil
		}

		alert := store.Alert{
			ID:         uuid.NewString(),
			RuleID:     rule.ID,
			InstanceID: instanceID,
			Severity:   rule.Severity,
			Title:      title,
			Message:    message,
			Metadata:   metadata,
			Status:     store.AlertStatusActive,
			DedupeKey:  key,
			FiredAt:    time.Now(),
		}
		if err := e.store.InsertAlert(ctx, alert); err != nil {
			return nil, err
		}
		return result{alert: &alert, isDuplicate: false}, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(result)
	// A caller that joined another caller's in-flight Do shares its result;
	// only the caller whose function ran can have created the alert.
	return r.alert, r.isDuplicate || !leader, nil
}

func (e *Evaluator) evaluateByType(rule store.AlertRule, instanceID string, snap *tickSnapshot) (evaluation, error) {
	switch rule.Type {
	case store.RuleTypeThreshold:
		return evaluateThreshold(rule, instanceID, snap)
	case store.RuleTypeAnomaly:
		return e.evaluateAnomaly(rule, instanceID, snap)
	case store.RuleTypeLifecycle:
		return evaluateLifecycle(rule, instanceID, snap)
	case store.RuleTypeSecurity, store.RuleTypeCost:
		// Stubs reserved for external integrations (§4.4.1).
		return evaluation{}, nil
	default:
		return evaluation{}, fmt.Errorf("unknown rule type %q", rule.Type)
	}
}

func evaluateThreshold(rule store.AlertRule, instanceID string, snap *tickSnapshot) (evaluation, error) {
	var cond ThresholdConditions
	if err := json.Unmarshal(rule.Conditions, &cond); err != nil {
		return evaluation{}, err
	}

	metric, ok := snap.metrics[instanceID]
	if !ok {
		return evaluation{}, nil
	}

	value, ok := thresholdMetricValue(cond.Metric, metric)
	if !ok {
		return evaluation{}, fmt.Errorf("unknown threshold metric %q", cond.Metric)
	}

	if !compare(value, cond.Operator, cond.Threshold) {
		return evaluation{}, nil
	}

	return evaluation{
		fired:   true,
		title:   fmt.Sprintf("%s %s %.2f on %s", cond.Metric, cond.Operator, cond.Threshold, instanceID),
		message: fmt.Sprintf("%s is %.2f, threshold %s %.2f", cond.Metric, value, cond.Operator, cond.Threshold),
		metadata: map[string]any{
			"metric":    cond.Metric,
			"value":     value,
			"threshold": cond.Threshold,
			"operator":  cond.Operator,
		},
	}, nil
}

func thresholdMetricValue(metric string, m store.Metric) (float64, bool) {
	switch metric {
	case "cpu_percent":
		return m.CPUPercent, true
	case "mem_percent":
		return ratio(m.MemUsed, m.MemTotal), true
	case "disk_percent":
		return ratio(m.DiskUsed, m.DiskTotal), true
	case "load_avg_1":
		return m.LoadAvg1, true
	case "load_avg_5":
		return m.LoadAvg5, true
	default:
		return 0, false
	}
}

func ratio(used, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return used / total * 100
}

func compare(value float64, op string, threshold float64) bool {
	switch op {
	case "gt":
		return value > threshold
	case "gte":
		return value >= threshold
	case "lt":
		return value < threshold
	case "lte":
		return value <= threshold
	default:
		return false
	}
}

func (e *Evaluator) evaluateAnomaly(rule store.AlertRule, instanceID string, snap *tickSnapshot) (evaluation, error) {
	var cond AnomalyConditions
	if err := json.Unmarshal(rule.Conditions, &cond); err != nil {
		return evaluation{}, err
	}

	now := time.Now()
	since := now.Add(-time.Duration(cond.WindowSec) * time.Second)
	samples, err := e.store.MetricsInWindow(context.Background(), instanceID, since, now)
	if err != nil {
		return evaluation{}, err
	}
	if len(samples) < 5 {
		return evaluation{}, nil
	}

	excludeZero := cond.Metric == "net_bytes_recv" || cond.Metric == "net_bytes_sent"
	var sum float64
	var count int
	for _, s := range samples {
		v := anomalyMetricValue(cond.Metric, s)
		if excludeZero && v == 0 {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return evaluation{}, nil
	}
	baseline := sum / float64(count)
	if baseline <= 0 {
		return evaluation{}, nil
	}

	current, ok := snap.metrics[instanceID]
	if !ok {
		return evaluation{}, nil
	}
	currentValue := anomalyMetricValue(cond.Metric, current)
	deviation := absPercent(currentValue, baseline)

	if deviation < cond.DeviationPercent {
		return evaluation{}, nil
	}

	return evaluation{
		fired:   true,
		title:   fmt.Sprintf("%s anomaly on %s", cond.Metric, instanceID),
		message: fmt.Sprintf("%s deviates %.1f%% from baseline %.2f (current %.2f)", cond.Metric, deviation, baseline, currentValue),
		metadata: map[string]any{
			"metric":    cond.Metric,
			"baseline":  baseline,
			"current":   currentValue,
			"deviation": deviation,
		},
	}, nil
}

func anomalyMetricValue(metric string, m store.Metric) float64 {
	switch metric {
	case "cpu_percent":
		return m.CPUPercent
	case "mem_percent":
		return ratio(m.MemUsed, m.MemTotal)
	case "net_bytes_recv":
		return m.NetBytesRecv
	case "net_bytes_sent":
		return m.NetBytesSent
	default:
		return 0
	}
}

func absPercent(current, baseline float64) float64 {
	d := (current - baseline) / baseline * 100
	if d < 0 {
		d = -d
	}
	return d
}

func evaluateLifecycle(rule store.AlertRule, instanceID string, snap *tickSnapshot) (evaluation, error) {
	var cond LifecycleConditions
	if err := json.Unmarshal(rule.Conditions, &cond); err != nil {
		return evaluation{}, err
	}

	inst, instOK := snap.instance(instanceID)
	hb, hasHeartbeat := snap.heartbeats[instanceID]

	switch cond.Event {
	case LifecycleHeartbeatLost:
		timeout := cond.TimeoutSec
		if timeout <= 0 {
			timeout = 120
		}
		if !hasHeartbeat {
			if instOK && inst.Status != store.InstanceStatusRunning {
				return evaluation{}, nil
			}
			return evaluation{
				fired:   true,
				title:   fmt.Sprintf("heartbeat lost on %s", instanceID),
				message: "no heartbeat has ever been recorded for this instance",
			}, nil
		}
		age := time.Since(hb.Timestamp).Seconds()
		if age < float64(timeout) {
			return evaluation{}, nil
		}
		return evaluation{
			fired:   true,
			title:   fmt.Sprintf("heartbeat lost on %s", instanceID),
			message: fmt.Sprintf("last heartbeat was %.0fs ago, timeout %ds", age, timeout),
			metadata: map[string]any{"age_seconds": age, "timeout_seconds": timeout},
		}, nil

	case LifecycleUnresponsive:
		if !instOK {
			return evaluation{}, nil
		}
		if inst.Status != store.InstanceStatusError && inst.Status != store.InstanceStatusUnknown {
			return evaluation{}, nil
		}
		return evaluation{
			fired:   true,
			title:   fmt.Sprintf("%s unresponsive", instanceID),
			message: fmt.Sprintf("instance status is %s", inst.Status),
		}, nil

	case LifecycleStatusChanged:
		if !instOK {
			return evaluation{}, nil
		}
		targets := cond.TargetStatuses
		if len(targets) == 0 {
			targets = []string{store.InstanceStatusError, store.InstanceStatusUnknown}
		}
		for _, t := range targets {
			if inst.Status == t {
				return evaluation{
					fired:   true,
					title:   fmt.Sprintf("%s status changed", instanceID),
					message: fmt.Sprintf("instance status is now %s", inst.Status),
				}, nil
			}
		}
		return evaluation{}, nil

	default:
		return evaluation{}, fmt.Errorf("unknown lifecycle event %q", cond.Event)
	}
}
