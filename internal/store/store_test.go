package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRule_CreateListFindRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateChannel(ctx, NotificationChannel{
		ID: "ch1", Name: "ops", Type: ChannelTypeWebhook, Config: []byte(`{}`), Enabled: true,
	}))

	rule := AlertRule{
		ID:          uuid.NewString(),
		Name:        "CPU>90",
		Type:        RuleTypeThreshold,
		Severity:    SeverityHigh,
		Conditions:  []byte(`{"metric":"cpu_percent","operator":"gt","threshold":90}`),
		CooldownSec: 300,
		Enabled:     true,
		ChannelIDs:  []string{"ch1"},
	}
	require.NoError(t, s.CreateRule(ctx, rule))

	rules, total, err := s.ListRules(ctx, RuleFilter{}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, rules, 1)

	found, err := s.Rule(ctx, rule.ID)
	require.NoError(t, err)
	require.Equal(t, rule.Name, found.Name)
	require.Equal(t, []string{"ch1"}, found.ChannelIDs)
}

func TestAlert_NonTerminalUniquePerDedupeKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	dedupeKey := "rule1:instance1"
	now := time.Now().UTC()

	require.NoError(t, s.InsertAlert(ctx, Alert{
		ID: uuid.NewString(), RuleID: "rule1", Severity: SeverityHigh,
		Title: "t", Message: "m", Status: AlertStatusActive, DedupeKey: dedupeKey, FiredAt: now,
	}))

	existing, err := s.NonTerminalAlertByDedupeKey(ctx, dedupeKey)
	require.NoError(t, err)
	require.NotNil(t, existing)

	resolved, err := s.ResolveAlert(ctx, existing.ID, "user1", now)
	require.NoError(t, err)
	require.Equal(t, AlertStatusResolved, resolved.Status)

	after, err := s.NonTerminalAlertByDedupeKey(ctx, dedupeKey)
	require.NoError(t, err)
	require.Nil(t, after)
}

func TestAlert_AcknowledgeRefusedWhenResolved(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	id := uuid.NewString()
	require.NoError(t, s.InsertAlert(ctx, Alert{
		ID: id, RuleID: "rule1", Severity: SeverityHigh, Title: "t", Message: "m",
		Status: AlertStatusActive, DedupeKey: "rule1:i1", FiredAt: now,
	}))
	_, err := s.ResolveAlert(ctx, id, "user1", now)
	require.NoError(t, err)

	result, err := s.AcknowledgeAlert(ctx, id, "user2", now)
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestLatestMetricsByInstance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t0 := time.Now().UTC().Add(-time.Minute)
	t1 := time.Now().UTC()

	require.NoError(t, s.InsertMetric(ctx, Metric{InstanceID: "i1", Timestamp: t0, CPUPercent: 10}))
	require.NoError(t, s.InsertMetric(ctx, Metric{InstanceID: "i1", Timestamp: t1, CPUPercent: 92.7}))

	latest, err := s.LatestMetricsByInstance(ctx)
	require.NoError(t, err)
	require.InDelta(t, 92.7, latest["i1"].CPUPercent, 0.001)
}
