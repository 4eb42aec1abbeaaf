package security

import (
	"context"
	"time"

	"github.com/fleetwatch/controlplane/internal/store"
)

// Summary is the aggregate security-posture view the HTTP façade serves
// (§4.5 "for security: critical vuln count, overdue secret count, revoked
// key count").
type Summary struct {
	CriticalVulnerabilities int `json:"criticalVulnerabilities"`
	OverdueSecrets          int `json:"overdueSecrets"`
	RevokedKeys             int `json:"revokedKeys"`
}

// SummaryService computes the aggregate Summary and exposes the scanning
// artifact write paths (append-or-update, supersede on rescan).
type SummaryService struct {
	store *store.Store
}

// NewSummaryService constructs a SummaryService.
func NewSummaryService(st *store.Store) *SummaryService {
	return &SummaryService{store: st}
}

// Summary computes the current aggregate counts.
func (s *SummaryService) Summary(ctx context.Context) (Summary, error) {
	critical, err := s.store.CriticalVulnerabilityCount(ctx)
	if err != nil {
		return Summary{}, err
	}
	overdue, err := s.store.OverdueSecretCount(ctx, time.Now())
	if err != nil {
		return Summary{}, err
	}
	revoked, err := s.store.RevokedKeyCount(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{CriticalVulnerabilities: critical, OverdueSecrets: overdue, RevokedKeys: revoked}, nil
}

// RecordVulnerability appends a scan result, superseding any prior record
// for the same instance/package (§3 "supersede on rescan").
func (s *SummaryService) RecordVulnerability(ctx context.Context, v store.Vulnerability) error {
	return s.store.InsertVulnerability(ctx, v)
}

// RecordBomEntry appends a BOM scan result, superseding prior entries.
func (s *SummaryService) RecordBomEntry(ctx context.Context, e store.BomEntry) error {
	return s.store.InsertBomEntry(ctx, e)
}

// RecordSshKey appends an authorized-key observation.
func (s *SummaryService) RecordSshKey(ctx context.Context, k store.SshKey) error {
	return s.store.InsertSshKey(ctx, k)
}

// RevokeSshKey marks a key revoked.
func (s *SummaryService) RevokeSshKey(ctx context.Context, id string) error {
	return s.store.RevokeSshKey(ctx, id, time.Now())
}
