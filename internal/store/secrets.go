package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CreateSecret inserts a secret; ValueCiphertext must already be encrypted
// by the caller (§3, §9: "plaintext must never be persisted or logged").
func (s *Store) CreateSecret(ctx context.Context, sec Secret) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (id, instance_id, name, type, value_ciphertext, created_at, last_rotated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sec.ID, sec.InstanceID, sec.Name, sec.Type, sec.ValueCiphertext, sec.CreatedAt, sec.LastRotatedAt, sec.ExpiresAt)
	return err
}

// Secret returns a secret row by id, ciphertext included, or ErrNotFound.
// Decryption and role-gating for reveal happen in internal/security.
func (s *Store) Secret(ctx context.Context, id string) (*Secret, error) {
	var sec Secret
	err := s.db.QueryRowContext(ctx, `
		SELECT id, instance_id, name, type, value_ciphertext, created_at, last_rotated_at, expires_at
		FROM secrets WHERE id = ?
	`, id).Scan(&sec.ID, &sec.InstanceID, &sec.Name, &sec.Type, &sec.ValueCiphertext,
		&sec.CreatedAt, &sec.LastRotatedAt, &sec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

// RotateSecret replaces the ciphertext and stamps lastRotatedAt.
func (s *Store) RotateSecret(ctx context.Context, id string, ciphertext []byte, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE secrets SET value_ciphertext = ?, last_rotated_at = ? WHERE id = ?
	`, ciphertext, now, id)
	return err
}

// ListSecrets returns a paginated secret set (ciphertext included; the
// HTTP formatter masks before responding).
func (s *Store) ListSecrets(ctx context.Context, page, pageSize int) ([]Secret, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM secrets`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, name, type, value_ciphertext, created_at, last_rotated_at, expires_at
		FROM secrets ORDER BY name ASC LIMIT ? OFFSET ?
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Secret
	for rows.Next() {
		var sec Secret
		if err := rows.Scan(&sec.ID, &sec.InstanceID, &sec.Name, &sec.Type, &sec.ValueCiphertext,
			&sec.CreatedAt, &sec.LastRotatedAt, &sec.ExpiresAt); err != nil {
			return nil, 0, err
		}
		out = append(out, sec)
	}
	return out, total, rows.Err()
}

// OverdueSecretCount counts secrets past their expiresAt, used by the
// security summary (§4.5).
func (s *Store) OverdueSecretCount(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM secrets WHERE expires_at IS NOT NULL AND expires_at < ?
	`, now).Scan(&n)
	return n, err
}
