package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LatestConfigSnapshot returns the most recent snapshot for an instance
// (§3: "per instance most recent snapshot is current").
func (s *Store) LatestConfigSnapshot(ctx context.Context, instanceID string) (*ConfigSnapshot, error) {
	var snap ConfigSnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT id, instance_id, taken_at, declared, actual, drift_status, config_hash
		FROM config_snapshots WHERE instance_id = ? ORDER BY taken_at DESC LIMIT 1
	`, instanceID).Scan(&snap.ID, &snap.InstanceID, &snap.TakenAt, &snap.Declared, &snap.Actual,
		&snap.DriftStatus, &snap.ConfigHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// InsertConfigSnapshot records a new snapshot.
func (s *Store) InsertConfigSnapshot(ctx context.Context, snap ConfigSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_snapshots (id, instance_id, taken_at, declared, actual, drift_status, config_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.InstanceID, snap.TakenAt, snap.Declared, snap.Actual, snap.DriftStatus, snap.ConfigHash)
	return err
}

// ListConfigSnapshots returns a paginated snapshot set, most recent first.
func (s *Store) ListConfigSnapshots(ctx context.Context, page, pageSize int) ([]ConfigSnapshot, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM config_snapshots`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, taken_at, declared, actual, drift_status, config_hash
		FROM config_snapshots ORDER BY taken_at DESC LIMIT ? OFFSET ?
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []ConfigSnapshot
	for rows.Next() {
		var snap ConfigSnapshot
		if err := rows.Scan(&snap.ID, &snap.InstanceID, &snap.TakenAt, &snap.Declared, &snap.Actual,
			&snap.DriftStatus, &snap.ConfigHash); err != nil {
			return nil, 0, err
		}
		out = append(out, snap)
	}
	return out, total, rows.Err()
}

// InsertDriftEvent records a detected field-level drift.
func (s *Store) InsertDriftEvent(ctx context.Context, e DriftEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drift_events (id, snapshot_id, severity, field_path, declared_val, actual_val,
			description, detected_at, remediation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SnapshotID, e.Severity, e.FieldPath, e.DeclaredVal, e.ActualVal,
		e.Description, e.DetectedAt, e.Remediation)
	return err
}

// RemediateDriftEvent marks a drift event resolved.
func (s *Store) RemediateDriftEvent(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE drift_events SET resolved_at = ? WHERE id = ?`, now, id)
	return err
}

// ListDriftEvents returns a paginated drift-event set, unresolved first.
func (s *Store) ListDriftEvents(ctx context.Context, page, pageSize int) ([]DriftEvent, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drift_events`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, snapshot_id, severity, field_path, declared_val, actual_val, description,
			detected_at, resolved_at, remediation
		FROM drift_events ORDER BY (resolved_at IS NOT NULL), detected_at DESC LIMIT ? OFFSET ?
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []DriftEvent
	for rows.Next() {
		var e DriftEvent
		if err := rows.Scan(&e.ID, &e.SnapshotID, &e.Severity, &e.FieldPath, &e.DeclaredVal, &e.ActualVal,
			&e.Description, &e.DetectedAt, &e.ResolvedAt, &e.Remediation); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// DriftSummary holds the aggregate counts named in §4.5.
type DriftSummary struct {
	BySeverity        map[string]int
	ByStatus          map[string]int
	InstancesWithDrift int
	TotalUnresolved   int
}

// DriftSummaryCounts computes DriftSummary.
func (s *Store) DriftSummaryCounts(ctx context.Context) (*DriftSummary, error) {
	out := &DriftSummary{BySeverity: map[string]int{}, ByStatus: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, COUNT(*) FROM drift_events WHERE resolved_at IS NULL GROUP BY severity
	`)
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
		out.TotalUnresolved += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT drift_status, COUNT(*) FROM config_snapshots GROUP BY drift_status`)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// An instance counts once, when its most recent snapshot is DRIFTED.
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM config_snapshots c
		INNER JOIN (
			SELECT instance_id, MAX(taken_at) AS max_ts FROM config_snapshots GROUP BY instance_id
		) latest ON latest.instance_id = c.instance_id AND latest.max_ts = c.taken_at
		WHERE c.drift_status = ?
	`, DriftStatusDrifted).Scan(&out.InstancesWithDrift)
	return out, err
}
