package store

import (
	"context"
	"time"
)

// InsertVulnerability records a scan hit, superseding prior rows for the
// same (instance, package) on rescan (§3).
func (s *Store) InsertVulnerability(ctx context.Context, v Vulnerability) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE vulnerabilities SET superseded = 1 WHERE instance_id = ? AND package = ? AND superseded = 0
	`, v.InstanceID, v.Package); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO vulnerabilities (id, instance_id, severity, package, version, description, detected_at, superseded)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, v.ID, v.InstanceID, v.Severity, v.Package, v.Version, v.Description, v.DetectedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// CriticalVulnerabilityCount counts active CRITICAL vulnerabilities, used
// by the security summary (§4.5).
func (s *Store) CriticalVulnerabilityCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM vulnerabilities WHERE superseded = 0 AND severity = 'CRITICAL'
	`).Scan(&n)
	return n, err
}

// InsertBomEntry records a BOM hit, superseding prior rows for the same
// (instance, package) on rescan.
func (s *Store) InsertBomEntry(ctx context.Context, e BomEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE bom_entries SET superseded = 1 WHERE instance_id = ? AND package = ? AND superseded = 0
	`, e.InstanceID, e.Package); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bom_entries (id, instance_id, package, version, license, detected_at, superseded)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, e.ID, e.InstanceID, e.Package, e.Version, e.License, e.DetectedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertSshKey records an authorized key observation.
func (s *Store) InsertSshKey(ctx context.Context, k SshKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ssh_keys (id, instance_id, fingerprint, comment, added_at)
		VALUES (?, ?, ?, ?, ?)
	`, k.ID, k.InstanceID, k.Fingerprint, k.Comment, k.AddedAt)
	return err
}

// RevokeSshKey marks a key revoked, used by the security summary's
// revoked-key count (§4.5).
func (s *Store) RevokeSshKey(ctx context.Context, id string, revokedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE ssh_keys SET revoked_at = ? WHERE id = ?`, revokedAt, id)
	return err
}

// RevokedKeyCount counts keys with a non-null revokedAt.
func (s *Store) RevokedKeyCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ssh_keys WHERE revoked_at IS NOT NULL`).Scan(&n)
	return n, err
}
