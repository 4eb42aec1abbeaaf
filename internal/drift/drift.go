// Package drift is a thin read-side service over configuration snapshots
// and drift events: aggregate summaries plus the CRUD the HTTP façade
// needs, on top of internal/store (§4.5 "Drift and security summaries").
package drift

import (
	"context"
	"time"

	"github.com/fleetwatch/controlplane/internal/store"
)

// Service exposes drift snapshot/event reads and remediation.
type Service struct {
	store *store.Store
}

// NewService constructs a Service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// LatestSnapshot returns the current snapshot for an instance.
func (s *Service) LatestSnapshot(ctx context.Context, instanceID string) (*store.ConfigSnapshot, error) {
	return s.store.LatestConfigSnapshot(ctx, instanceID)
}

// RecordSnapshot persists a new snapshot (called by the external drift
// detector once per scan).
func (s *Service) RecordSnapshot(ctx context.Context, snap store.ConfigSnapshot) error {
	return s.store.InsertConfigSnapshot(ctx, snap)
}

// ListSnapshots returns a paginated list of snapshots.
func (s *Service) ListSnapshots(ctx context.Context, page, pageSize int) ([]store.ConfigSnapshot, store.Page, error) {
	snaps, total, err := s.store.ListConfigSnapshots(ctx, page, pageSize)
	if err != nil {
		return nil, store.Page{}, err
	}
	return snaps, store.NewPage(page, pageSize, total), nil
}

// RecordEvent persists a field-level drift event.
func (s *Service) RecordEvent(ctx context.Context, e store.DriftEvent) error {
	return s.store.InsertDriftEvent(ctx, e)
}

// Remediate marks a drift event resolved.
func (s *Service) Remediate(ctx context.Context, id string) error {
	return s.store.RemediateDriftEvent(ctx, id, time.Now())
}

// ListEvents returns unresolved-first, then most-recently-detected drift
// events.
func (s *Service) ListEvents(ctx context.Context, page, pageSize int) ([]store.DriftEvent, store.Page, error) {
	events, total, err := s.store.ListDriftEvents(ctx, page, pageSize)
	if err != nil {
		return nil, store.Page{}, err
	}
	return events, store.NewPage(page, pageSize, total), nil
}

// Summary returns the aggregate drift counts (§4.5).
func (s *Service) Summary(ctx context.Context) (*store.DriftSummary, error) {
	return s.store.DriftSummaryCounts(ctx)
}
