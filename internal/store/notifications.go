package store

import "context"

// InsertNotification appends an immutable AlertNotification row (§3, §4.4.3).
// A failure to record must be logged by the caller but must not raise
// (§4.4.3); InsertNotification itself simply reports the error and lets
// the caller decide.
func (s *Store) InsertNotification(ctx context.Context, n AlertNotification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_notifications (id, alert_id, channel_id, sent_at, success, error, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.AlertID, n.ChannelID, n.SentAt, n.Success, n.Error, n.Payload)
	return err
}

// NotificationsByAlert returns every delivery attempt for an alert, most
// recent first.
func (s *Store) NotificationsByAlert(ctx context.Context, alertID string) ([]AlertNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_id, channel_id, sent_at, success, error, payload
		FROM alert_notifications WHERE alert_id = ? ORDER BY sent_at DESC
	`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertNotification
	for rows.Next() {
		var n AlertNotification
		if err := rows.Scan(&n.ID, &n.AlertID, &n.ChannelID, &n.SentAt, &n.Success, &n.Error, &n.Payload); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
