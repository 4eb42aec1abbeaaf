package alerts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/controlplane/internal/store"
)

type fakeAdapter struct {
	calls int
	err   error
}

func (f *fakeAdapter) Deliver(context.Context, json.RawMessage, AlertPayload) error {
	f.calls++
	return f.err
}

type fakePublisher struct {
	published [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, _, _ string, payload []byte) error {
	f.published = append(f.published, payload)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDispatcher_DeliversToEnabledChannelsOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.CreateChannel(ctx, store.NotificationChannel{ID: "ch-on", Type: store.ChannelTypeInApp, Config: []byte(`{}`), Enabled: true}))
	require.NoError(t, st.CreateChannel(ctx, store.NotificationChannel{ID: "ch-off", Type: store.ChannelTypeInApp, Config: []byte(`{}`), Enabled: false}))

	rule := store.AlertRule{ID: "r1", Name: "test rule", Type: store.RuleTypeThreshold, Severity: store.SeverityHigh,
		Conditions: []byte(`{}`), ChannelIDs: []string{"ch-on", "ch-off"}}
	require.NoError(t, st.CreateRule(ctx, rule))

	alert := store.Alert{ID: "a1", RuleID: "r1", Severity: store.SeverityHigh, Title: "t", Message: "m",
		Metadata: []byte(`{}`), Status: store.AlertStatusActive, DedupeKey: "r1:", FiredAt: time.Now()}
	require.NoError(t, st.InsertAlert(ctx, alert))

	adapter := &fakeAdapter{}
	pub := &fakePublisher{}
	d := NewDispatcher(zerolog.Nop(), st, pub, map[string]Adapter{store.ChannelTypeInApp: adapter})

	d.dispatch(ctx, "a1")

	assert.Equal(t, 1, adapter.calls)
	assert.Len(t, pub.published, 1)

	notes, err := st.NotificationsByAlert(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Success)
}

func TestDispatcher_RecordsFailureWithoutPanicking(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.CreateChannel(ctx, store.NotificationChannel{ID: "ch1", Type: store.ChannelTypeWebhook, Config: []byte(`{}`), Enabled: true}))
	require.NoError(t, st.CreateRule(ctx, store.AlertRule{ID: "r1", Name: "rule", Type: store.RuleTypeThreshold,
		Severity: store.SeverityLow, Conditions: []byte(`{}`), ChannelIDs: []string{"ch1"}}))
	require.NoError(t, st.InsertAlert(ctx, store.Alert{ID: "a1", RuleID: "r1", Severity: store.SeverityLow,
		Title: "t", Message: "m", Metadata: []byte(`{}`), Status: store.AlertStatusActive, DedupeKey: "r1:", FiredAt: time.Now()}))

	failing := &fakeAdapter{err: assert.AnError}
	d := NewDispatcher(zerolog.Nop(), st, &fakePublisher{}, map[string]Adapter{store.ChannelTypeWebhook: failing})

	require.NotPanics(t, func() { d.dispatch(ctx, "a1") })

	notes, err := st.NotificationsByAlert(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.False(t, notes[0].Success)
	require.NotNil(t, notes[0].Error)
}

func TestChannelService_MasksWebhookSecretAndHeaders(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	cfg := []byte(`{"url":"https://example.com/hook","secret":"shh","headers":{"Authorization":"Bearer xyz","X-Plain":"ok"}}`)
	require.NoError(t, st.CreateChannel(ctx, store.NotificationChannel{ID: "c1", Type: store.ChannelTypeWebhook, Config: cfg, Enabled: true}))

	svc := NewChannelService(st, nil)
	masked, err := svc.Get(ctx, "c1")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(masked.Config, &out))
	assert.Equal(t, "***", out["secret"])
	headers := out["headers"].(map[string]any)
	assert.Equal(t, "***", headers["Authorization"])
	assert.Equal(t, "ok", headers["X-Plain"])
}

func TestChannelService_MasksChatWebhookURLTerminalSegment(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	cfg := []byte(`{"webhook_url":"https://hooks.example.com/services/T000/B000/XXXX"}`)
	require.NoError(t, st.CreateChannel(ctx, store.NotificationChannel{ID: "c2", Type: store.ChannelTypeSlack, Config: cfg, Enabled: true}))

	svc := NewChannelService(st, nil)
	masked, err := svc.Get(ctx, "c2")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(masked.Config, &out))
	assert.Equal(t, "https://hooks.example.com/services/T000/B000/***", out["webhook_url"])
}
