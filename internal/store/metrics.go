package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// InsertMetric appends a metric sample (§3: append-only).
func (s *Store) InsertMetric(ctx context.Context, m Metric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (instance_id, timestamp, cpu_percent, mem_used, mem_total,
			disk_used, disk_total, load_avg_1, load_avg_5, net_bytes_sent, net_bytes_recv)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.InstanceID, m.Timestamp, m.CPUPercent, m.MemUsed, m.MemTotal,
		m.DiskUsed, m.DiskTotal, m.LoadAvg1, m.LoadAvg5, m.NetBytesSent, m.NetBytesRecv)
	return err
}

// LatestMetricsByInstance returns the latest metric ("greatest timestamp")
// per instance, used once per evaluator tick (§4.4.1 step 3).
func (s *Store) LatestMetricsByInstance(ctx context.Context) (map[string]Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.instance_id, m.timestamp, m.cpu_percent, m.mem_used, m.mem_total,
			m.disk_used, m.disk_total, m.load_avg_1, m.load_avg_5, m.net_bytes_sent, m.net_bytes_recv
		FROM metrics m
		INNER JOIN (
			SELECT instance_id, MAX(timestamp) AS max_ts FROM metrics GROUP BY instance_id
		) latest ON latest.instance_id = m.instance_id AND latest.max_ts = m.timestamp
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Metric)
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.InstanceID, &m.Timestamp, &m.CPUPercent, &m.MemUsed, &m.MemTotal,
			&m.DiskUsed, &m.DiskTotal, &m.LoadAvg1, &m.LoadAvg5, &m.NetBytesSent, &m.NetBytesRecv); err != nil {
			return nil, err
		}
		out[m.InstanceID] = m
	}
	return out, rows.Err()
}

// MetricsInWindow returns all samples for instanceId with timestamp in
// [since, now), used by the ANOMALY evaluator (§4.4.1).
func (s *Store) MetricsInWindow(ctx context.Context, instanceID string, since, now time.Time) ([]Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, timestamp, cpu_percent, mem_used, mem_total,
			disk_used, disk_total, load_avg_1, load_avg_5, net_bytes_sent, net_bytes_recv
		FROM metrics
		WHERE instance_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, instanceID, since, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.InstanceID, &m.Timestamp, &m.CPUPercent, &m.MemUsed, &m.MemTotal,
			&m.DiskUsed, &m.DiskTotal, &m.LoadAvg1, &m.LoadAvg5, &m.NetBytesSent, &m.NetBytesRecv); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertHeartbeat appends a heartbeat sample (§3: append-only).
func (s *Store) InsertHeartbeat(ctx context.Context, h Heartbeat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeats (instance_id, timestamp, agent_version, uptime_sec)
		VALUES (?, ?, ?, ?)
	`, h.InstanceID, h.Timestamp, h.AgentVersion, h.UptimeSec)
	return err
}

// LatestHeartbeatsByInstance returns the latest ("live") heartbeat per
// instance, used once per evaluator tick.
func (s *Store) LatestHeartbeatsByInstance(ctx context.Context) (map[string]Heartbeat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.instance_id, h.timestamp, h.agent_version, h.uptime_sec
		FROM heartbeats h
		INNER JOIN (
			SELECT instance_id, MAX(timestamp) AS max_ts FROM heartbeats GROUP BY instance_id
		) latest ON latest.instance_id = h.instance_id AND latest.max_ts = h.timestamp
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Heartbeat)
	for rows.Next() {
		var h Heartbeat
		if err := rows.Scan(&h.InstanceID, &h.Timestamp, &h.AgentVersion, &h.UptimeSec); err != nil {
			return nil, err
		}
		out[h.InstanceID] = h
	}
	return out, rows.Err()
}

// LatestHeartbeat returns the single latest heartbeat for an instance, or
// ErrNotFound if none exists.
func (s *Store) LatestHeartbeat(ctx context.Context, instanceID string) (*Heartbeat, error) {
	var h Heartbeat
	err := s.db.QueryRowContext(ctx, `
		SELECT instance_id, timestamp, agent_version, uptime_sec
		FROM heartbeats WHERE instance_id = ? ORDER BY timestamp DESC LIMIT 1
	`, instanceID).Scan(&h.InstanceID, &h.Timestamp, &h.AgentVersion, &h.UptimeSec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}
