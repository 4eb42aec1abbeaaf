package alerts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fleetwatch/controlplane/internal/metrics"
	"github.com/fleetwatch/controlplane/internal/store"
)

// AlertPayload is the stable shape delivered to every channel adapter
// (§4.4.3).
type AlertPayload struct {
	AlertID    string         `json:"alertId"`
	RuleID     string         `json:"ruleId"`
	RuleName   string         `json:"ruleName"`
	RuleType   string         `json:"ruleType"`
	InstanceID *string        `json:"instanceId,omitempty"`
	Severity   string         `json:"severity"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Status     string         `json:"status"`
	FiredAt    string         `json:"firedAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Adapter delivers an alert payload to one configured channel.
type Adapter interface {
	Deliver(ctx context.Context, cfg json.RawMessage, payload AlertPayload) error
}

// Dispatcher delivers fired alerts to every enabled channel their rule
// names, concurrently, with at-least-partial delivery semantics (§4.4.3).
type Dispatcher struct {
	log      zerolog.Logger
	store    *store.Store
	broker   eventPublisher
	adapters map[string]Adapter

	// group collapses concurrent Dispatch calls for the same alert id into
	// one delivery pass — a duplicate dispatch hand-off (e.g. a retried
	// evaluator tick racing the original) must not double-send.
	group singleflight.Group
}

// eventPublisher is the narrow broker capability the dispatcher needs — avoids an import cycle with internal/broker's fuller
// interface.
type eventPublisher interface {
	Publish(ctx context.Context, channel, instanceID string, payload []byte) error
}

// NewDispatcher constructs a Dispatcher with the adapter set keyed by
// store.ChannelType* constants.
func NewDispatcher(log zerolog.Logger, st *store.Store, broker eventPublisher, adapters map[string]Adapter) *Dispatcher {
	return &Dispatcher{
		log:      log.With().Str("component", "dispatcher").Logger(),
		store:    st,
		broker:   broker,
		adapters: adapters,
	}
}

// Dispatch loads the alert with its rule and enabled channels, builds the
// stable payload, and attempts delivery on every channel concurrently.
func (d *Dispatcher) Dispatch(ctx context.Context, alertID string) {
	_, _, _ = d.group.Do(alertID, func() (any, error) {
		d.dispatch(ctx, alertID)
		return nil, nil
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, alertID string) {
	alert, err := d.store.Alert(ctx, alertID)
	if err != nil || alert == nil {
		d.log.Error().Err(err).Str("alert_id", alertID).Msg("failed to load alert for dispatch")
		return
	}
	rule, err := d.store.Rule(ctx, alert.RuleID)
	if err != nil || rule == nil {
		d.log.Error().Err(err).Str("alert_id", alertID).Msg("failed to load rule for dispatch")
		return
	}
	channels, err := d.store.ChannelsByIDs(ctx, rule.ChannelIDs)
	if err != nil {
		d.log.Error().Err(err).Str("alert_id", alertID).Msg("failed to load channels for dispatch")
		return
	}

	var metadata map[string]any
	_ = json.Unmarshal(alert.Metadata, &metadata)

	payload := AlertPayload{
		AlertID:    alert.ID,
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		RuleType:   rule.Type,
		InstanceID: alert.InstanceID,
		Severity:   alert.Severity,
		Title:      alert.Title,
		Message:    alert.Message,
		Status:     alert.Status,
		FiredAt:    alert.FiredAt.Format(time.RFC3339),
		Metadata:   metadata,
	}

	// No SetLimit: the channel count per alert is small and bounded by
	// rule configuration, not by external input.
	var g errgroup.Group
	for _, ch := range channels {
		if !ch.Enabled {
			continue
		}
		ch := ch
		g.Go(func() error {
			d.deliverOne(ctx, ch, payload)
			return nil
		})
	}
	_ = g.Wait()

	d.publishEvent(ctx, alert, payload)
}

func (d *Dispatcher) deliverOne(ctx context.Context, ch store.NotificationChannel, payload AlertPayload) {
	adapter, ok := d.adapters[ch.Type]
	if !ok {
		d.log.Warn().Str("channel_type", ch.Type).Msg("no adapter registered for channel type")
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	payloadJSON, _ := json.Marshal(payload)

	deliverErr := adapter.Deliver(deliverCtx, ch.Config, payload)

	n := store.AlertNotification{
		ID:        uuid.NewString(),
		AlertID:   payload.AlertID,
		ChannelID: ch.ID,
		SentAt:    time.Now(),
		Success:   deliverErr == nil,
		Payload:   payloadJSON,
	}
	outcome := "success"
	if deliverErr != nil {
		msg := deliverErr.Error()
		n.Error = &msg
		outcome = "failure"
		d.log.Error().Err(deliverErr).Str("channel_id", ch.ID).Str("alert_id", payload.AlertID).Msg("notification delivery failed")
	}
	metrics.NotificationsSent.WithLabelValues(ch.Type, outcome).Inc()

	if err := d.store.InsertNotification(ctx, n); err != nil {
		d.log.Error().Err(err).Str("channel_id", ch.ID).Msg("failed to record notification — delivery attempt itself is not affected")
	}
}

func (d *Dispatcher) publishEvent(ctx context.Context, alert *store.Alert, payload AlertPayload) {
	if d.broker == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	instanceID := ""
	if alert.InstanceID != nil {
		instanceID = *alert.InstanceID
	}
	_ = d.broker.Publish(ctx, "events", instanceID, data)
}

// Test synthesises a canned payload and exercises the adapter for
// channelType without persisting anything (§4.4.3 "Test delivery").
func (d *Dispatcher) Test(ctx context.Context, channelType string, config json.RawMessage) error {
	adapter, ok := d.adapters[channelType]
	if !ok {
		return errUnknownChannelType(channelType)
	}
	payload := AlertPayload{
		AlertID:  "test",
		Severity: store.SeverityInfo,
		Title:    "Test Notification",
		Message:  "This is a test notification.",
		Status:   store.AlertStatusActive,
		FiredAt:  time.Now().Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return adapter.Deliver(ctx, config, payload)
}

type unknownChannelTypeError string

func (e unknownChannelTypeError) Error() string { return "unknown channel type: " + string(e) }

func errUnknownChannelType(t string) error { return unknownChannelTypeError(t) }
