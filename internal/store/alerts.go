package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NonTerminalAlertWithinCooldown returns the non-terminal alert for
// dedupeKey whose firedAt is within now-cooldownSec, or (nil, nil) if none
// matches (§4.4.1 step b) — absence of a row is the expected outcome on
// almost every evaluation, not an error.
func (s *Store) NonTerminalAlertWithinCooldown(ctx context.Context, dedupeKey string, cooldownSec int, now time.Time) (*Alert, error) {
	cutoff := now.Add(-time.Duration(cooldownSec) * time.Second)
	a, err := s.scanAlertRow(ctx, `
		SELECT id, rule_id, instance_id, severity, title, message, metadata, status,
			dedupe_key, fired_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by
		FROM alerts
		WHERE dedupe_key = ? AND status IN ('ACTIVE','ACKNOWLEDGED') AND fired_at >= ?
		ORDER BY fired_at DESC LIMIT 1
	`, dedupeKey, cutoff)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return a, err
}

// NonTerminalAlertByDedupeKey returns the (at most one) non-terminal alert
// for dedupeKey, regardless of cooldown window, or (nil, nil) if none
// matches.
func (s *Store) NonTerminalAlertByDedupeKey(ctx context.Context, dedupeKey string) (*Alert, error) {
	a, err := s.scanAlertRow(ctx, `
		SELECT id, rule_id, instance_id, severity, title, message, metadata, status,
			dedupe_key, fired_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by
		FROM alerts
		WHERE dedupe_key = ? AND status IN ('ACTIVE','ACKNOWLEDGED')
		ORDER BY fired_at DESC LIMIT 1
	`, dedupeKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (s *Store) scanAlertRow(ctx context.Context, query string, args ...any) (*Alert, error) {
	var a Alert
	var instanceID, acknowledgedBy, resolvedBy sql.NullString
	var acknowledgedAt, resolvedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.RuleID, &instanceID, &a.Severity, &a.Title, &a.Message, &a.Metadata, &a.Status,
		&a.DedupeKey, &a.FiredAt, &acknowledgedAt, &acknowledgedBy, &resolvedAt, &resolvedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if instanceID.Valid {
		a.InstanceID = &instanceID.String
	}
	if acknowledgedAt.Valid {
		a.AcknowledgedAt = &acknowledgedAt.Time
	}
	if acknowledgedBy.Valid {
		a.AcknowledgedBy = &acknowledgedBy.String
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		a.ResolvedBy = &resolvedBy.String
	}
	return &a, nil
}

// InsertAlert creates a new ACTIVE alert row, returning its id via a.ID
// (already populated by the caller).
func (s *Store) InsertAlert(ctx context.Context, a Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, rule_id, instance_id, severity, title, message, metadata,
			status, dedupe_key, fired_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.RuleID, a.InstanceID, a.Severity, a.Title, a.Message, a.Metadata,
		a.Status, a.DedupeKey, a.FiredAt)
	return err
}

// Alert returns a single alert by id, or ErrNotFound.
func (s *Store) Alert(ctx context.Context, id string) (*Alert, error) {
	return s.scanAlertRow(ctx, `
		SELECT id, rule_id, instance_id, severity, title, message, metadata, status,
			dedupe_key, fired_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by
		FROM alerts WHERE id = ?
	`, id)
}

// AcknowledgeAlert sets status ACKNOWLEDGED unless the alert is RESOLVED
// or missing (§4.4.2).
func (s *Store) AcknowledgeAlert(ctx context.Context, id, userID string, now time.Time) (*Alert, error) {
	a, err := s.Alert(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if a.Status == AlertStatusResolved {
		return nil, nil
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'ACKNOWLEDGED', acknowledged_at = ?, acknowledged_by = ? WHERE id = ?
	`, now, userID, id)
	if err != nil {
		return nil, err
	}
	return s.Alert(ctx, id)
}

// ResolveAlert sets status RESOLVED (§4.4.2: "always permitted otherwise").
func (s *Store) ResolveAlert(ctx context.Context, id, userID string, now time.Time) (*Alert, error) {
	if _, err := s.Alert(ctx, id); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'RESOLVED', resolved_at = ?, resolved_by = ? WHERE id = ?
	`, now, userID, id)
	if err != nil {
		return nil, err
	}
	return s.Alert(ctx, id)
}

// AutoResolveAlert transitions a non-terminal alert to RESOLVED with
// resolvedBy = SystemAutoResolution (§4.4.1 step d).
func (s *Store) AutoResolveAlert(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'RESOLVED', resolved_at = ?, resolved_by = ? WHERE id = ?
	`, now, SystemAutoResolution, id)
	return err
}

// BulkAcknowledge acknowledges every non-resolved alert among ids.
func (s *Store) BulkAcknowledge(ctx context.Context, ids []string, userID string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, now, userID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		UPDATE alerts SET status = 'ACKNOWLEDGED', acknowledged_at = ?, acknowledged_by = ?
		WHERE id IN (%s) AND status != 'RESOLVED'
	`, strings.Join(placeholders, ","))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// BulkResolve resolves every alert among ids.
func (s *Store) BulkResolve(ctx context.Context, ids []string, userID string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, now, userID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		UPDATE alerts SET status = 'RESOLVED', resolved_at = ?, resolved_by = ?
		WHERE id IN (%s)
	`, strings.Join(placeholders, ","))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	Status     string
	Severity   string
	InstanceID string
	RuleID     string
}

// ListAlerts returns a filtered, paginated alert set ordered by firedAt
// descending (§4.4.2).
func (s *Store) ListAlerts(ctx context.Context, f AlertFilter, page, pageSize int) ([]Alert, int, error) {
	where := []string{"1=1"}
	args := []any{}

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.InstanceID != "" {
		where = append(where, "instance_id = ?")
		args = append(args, f.InstanceID)
	}
	if f.RuleID != "" {
		where = append(where, "rule_id = ?")
		args = append(args, f.RuleID)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM alerts WHERE %s`, whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, rule_id, instance_id, severity, title, message, metadata, status,
			dedupe_key, fired_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by
		FROM alerts WHERE %s ORDER BY fired_at DESC LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var instanceID, acknowledgedBy, resolvedBy sql.NullString
		var acknowledgedAt, resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.RuleID, &instanceID, &a.Severity, &a.Title, &a.Message, &a.Metadata,
			&a.Status, &a.DedupeKey, &a.FiredAt, &acknowledgedAt, &acknowledgedBy, &resolvedAt, &resolvedBy); err != nil {
			return nil, 0, err
		}
		if instanceID.Valid {
			a.InstanceID = &instanceID.String
		}
		if acknowledgedAt.Valid {
			a.AcknowledgedAt = &acknowledgedAt.Time
		}
		if acknowledgedBy.Valid {
			a.AcknowledgedBy = &acknowledgedBy.String
		}
		if resolvedAt.Valid {
			a.ResolvedAt = &resolvedAt.Time
		}
		if resolvedBy.Valid {
			a.ResolvedBy = &resolvedBy.String
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// AlertSummary holds the two grouped counts from §4.5: by severity among
// ACTIVE, and by status across all.
type AlertSummary struct {
	BySeverity map[string]int
	ByStatus   map[string]int
}

// Summary computes AlertSummary (§4.4.2 summary()).
func (s *Store) Summary(ctx context.Context) (*AlertSummary, error) {
	out := &AlertSummary{BySeverity: map[string]int{}, ByStatus: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT severity, COUNT(*) FROM alerts WHERE status = 'ACTIVE' GROUP BY severity`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			rows.Close()
			return nil, err
		}
		out.BySeverity[sev] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out.ByStatus[st] = n
	}
	return out, rows.Err()
}
