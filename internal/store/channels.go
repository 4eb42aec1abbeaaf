package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateChannel inserts a notification channel.
func (s *Store) CreateChannel(ctx context.Context, c NotificationChannel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_channels (id, name, type, config, enabled)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Type, c.Config, c.Enabled)
	return err
}

// UpdateChannel overwrites a channel's name, type, config and enabled flag.
func (s *Store) UpdateChannel(ctx context.Context, c NotificationChannel) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_channels SET name = ?, type = ?, config = ?, enabled = ? WHERE id = ?
	`, c.Name, c.Type, c.Config, c.Enabled, c.ID)
	return err
}

// DeleteChannel removes a channel. Rule associations referencing it are
// left as dangling ids, matching a relational FK-less SQLite schema; the
// rule service tolerates channel ids that no longer resolve.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notification_channels WHERE id = ?`, id)
	return err
}

// Channel returns a single channel by id, or ErrNotFound. Secrets are NOT
// masked here — masking happens in the read formatter (internal/alerts,
// maskChannel),
// per SPEC_FULL.md / spec §9 "Secret masking on read".
func (s *Store) Channel(ctx context.Context, id string) (*NotificationChannel, error) {
	var c NotificationChannel
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, config, enabled FROM notification_channels WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.Type, &c.Config, &c.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChannelsByIDs returns the enabled channels among ids, used by the
// dispatcher (§4.4.3).
func (s *Store) ChannelsByIDs(ctx context.Context, ids []string) ([]NotificationChannel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT id, name, type, config, enabled FROM notification_channels
		WHERE id IN (%s) AND enabled = 1
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationChannel
	for rows.Next() {
		var c NotificationChannel
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Config, &c.Enabled); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListChannels returns a paginated channel set.
func (s *Store) ListChannels(ctx context.Context, page, pageSize int) ([]NotificationChannel, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_channels`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, config, enabled FROM notification_channels
		ORDER BY name ASC LIMIT ? OFFSET ?
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []NotificationChannel
	for rows.Next() {
		var c NotificationChannel
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Config, &c.Enabled); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
