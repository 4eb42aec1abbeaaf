package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleetwatch/controlplane/internal/store"
)

// Service exposes the alert-service state transitions of §4.4.2 over the
// store, independent of the evaluator's own direct store access.
type Service struct {
	store *store.Store
}

// NewService constructs a Service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Acknowledge sets status ACKNOWLEDGED unless the alert is RESOLVED or
// missing, in which case it returns (nil, nil).
func (s *Service) Acknowledge(ctx context.Context, alertID, userID string) (*store.Alert, error) {
	return s.store.AcknowledgeAlert(ctx, alertID, userID, time.Now())
}

// Resolve sets status RESOLVED. Always permitted unless the alert is
// missing.
func (s *Service) Resolve(ctx context.Context, alertID, userID string) (*store.Alert, error) {
	return s.store.ResolveAlert(ctx, alertID, userID, time.Now())
}

// BulkAcknowledge acknowledges every id in ids.
func (s *Service) BulkAcknowledge(ctx context.Context, ids []string, userID string) error {
	return s.store.BulkAcknowledge(ctx, ids, userID, time.Now())
}

// BulkResolve resolves every id in ids.
func (s *Service) BulkResolve(ctx context.Context, ids []string, userID string) error {
	return s.store.BulkResolve(ctx, ids, userID, time.Now())
}

// List returns a paginated, firedAt-descending list of alerts matching f.
func (s *Service) List(ctx context.Context, f store.AlertFilter, page, pageSize int) ([]store.Alert, store.Page, error) {
	alerts, total, err := s.store.ListAlerts(ctx, f, page, pageSize)
	if err != nil {
		return nil, store.Page{}, err
	}
	return alerts, store.NewPage(page, pageSize, total), nil
}

// Summary returns the grouped alert counts (§4.4.2).
func (s *Service) Summary(ctx context.Context) (*store.AlertSummary, error) {
	return s.store.Summary(ctx)
}

// RuleService exposes §4.5's rule CRUD + toggle operations.
type RuleService struct {
	store *store.Store
}

// NewRuleService constructs a RuleService.
func NewRuleService(st *store.Store) *RuleService {
	return &RuleService{store: st}
}

const defaultCooldownSec = 300

// Create applies the default cooldown (300s) when CooldownSec is 0; Enabled
// is stored as given.
func (s *RuleService) Create(ctx context.Context, r store.AlertRule) (*store.AlertRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CooldownSec == 0 {
		r.CooldownSec = defaultCooldownSec
	}
	if err := s.store.CreateRule(ctx, r); err != nil {
		return nil, err
	}
	return s.store.Rule(ctx, r.ID)
}

// Update overwrites every stored field of the rule with r's values; fields
// left at their zero value are stored as zero, not kept from the stored
// rule. channelIDs are replaced only when the caller supplied
// replaceChannels.
func (s *RuleService) Update(ctx context.Context, r store.AlertRule, replaceChannels bool) (*store.AlertRule, error) {
	if err := s.store.UpdateRule(ctx, r, replaceChannels); err != nil {
		return nil, err
	}
	return s.store.Rule(ctx, r.ID)
}

// Toggle flips Enabled and returns the updated rule.
func (s *RuleService) Toggle(ctx context.Context, id string) (*store.AlertRule, error) {
	return s.store.ToggleRule(ctx, id)
}

// Delete removes a rule and its channel associations.
func (s *RuleService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteRule(ctx, id)
}

// Get returns a single rule.
func (s *RuleService) Get(ctx context.Context, id string) (*store.AlertRule, error) {
	return s.store.Rule(ctx, id)
}

// List supports filters {type, severity, enabled, instanceId}; a
// null-scoped rule matches every instanceId filter (§4.5).
func (s *RuleService) List(ctx context.Context, f store.RuleFilter, page, pageSize int) ([]store.AlertRule, store.Page, error) {
	rules, total, err := s.store.ListRules(ctx, f, page, pageSize)
	if err != nil {
		return nil, store.Page{}, err
	}
	return rules, store.NewPage(page, pageSize, total), nil
}
