package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = errors.New("store: not found")

// Instances returns the full instance directory, used once per evaluator
// tick (§4.4.1 step 2).
func (s *Store) Instances(ctx context.Context) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, status FROM instances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		var inst Instance
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.Status); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// Instance returns a single instance by id.
func (s *Store) Instance(ctx context.Context, id string) (*Instance, error) {
	var inst Instance
	err := s.db.QueryRowContext(ctx, `SELECT id, name, status FROM instances WHERE id = ?`, id).
		Scan(&inst.ID, &inst.Name, &inst.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// UpsertInstance is used by ingest paths that observe an instance for the
// first time (core reads the lifecycle service's records in production;
// this keeps the directory populated in a single-service deployment).
func (s *Store) UpsertInstance(ctx context.Context, inst Instance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, name, status) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, status = excluded.status
	`, inst.ID, inst.Name, inst.Status)
	return err
}

// LookupAPIKeyByHash returns the API key row matching hash, or ErrNotFound.
func (s *Store) LookupAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	var k APIKey
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_user_id, hash, expires_at FROM api_keys WHERE hash = ?`, hash,
	).Scan(&k.ID, &k.OwnerUserID, &k.Hash, &k.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// User returns a single user by id.
func (s *Store) User(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `SELECT id, role FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
