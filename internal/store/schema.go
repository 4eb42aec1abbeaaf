package store

import "database/sql"

func createSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'UNKNOWN',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		owner_user_id TEXT NOT NULL,
		hash TEXT NOT NULL UNIQUE,
		expires_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(hash);

	CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		cpu_percent REAL,
		mem_used REAL,
		mem_total REAL,
		disk_used REAL,
		disk_total REAL,
		load_avg_1 REAL,
		load_avg_5 REAL,
		net_bytes_sent REAL,
		net_bytes_recv REAL
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_instance_ts ON metrics(instance_id, timestamp);

	CREATE TABLE IF NOT EXISTS heartbeats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		agent_version TEXT,
		uptime_sec REAL
	);
	CREATE INDEX IF NOT EXISTS idx_heartbeats_instance_ts ON heartbeats(instance_id, timestamp);

	CREATE TABLE IF NOT EXISTS alert_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		instance_id TEXT,
		conditions TEXT NOT NULL,
		cooldown_sec INTEGER NOT NULL DEFAULT 300,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(enabled);

	CREATE TABLE IF NOT EXISTS alert_rule_channels (
		rule_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		PRIMARY KEY (rule_id, channel_id)
	);

	CREATE TABLE IF NOT EXISTS notification_channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		config TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		instance_id TEXT,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata TEXT,
		status TEXT NOT NULL,
		dedupe_key TEXT NOT NULL,
		fired_at DATETIME NOT NULL,
		acknowledged_at DATETIME,
		acknowledged_by TEXT,
		resolved_at DATETIME,
		resolved_by TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_dedupe_status ON alerts(dedupe_key, status);
	CREATE INDEX IF NOT EXISTS idx_alerts_fired_at ON alerts(fired_at);

	CREATE TABLE IF NOT EXISTS alert_notifications (
		id TEXT PRIMARY KEY,
		alert_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		success INTEGER NOT NULL,
		error TEXT,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alert_notifications_alert ON alert_notifications(alert_id);

	CREATE TABLE IF NOT EXISTS config_snapshots (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		taken_at DATETIME NOT NULL,
		declared TEXT,
		actual TEXT,
		drift_status TEXT NOT NULL,
		config_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_config_snapshots_instance ON config_snapshots(instance_id, taken_at);

	CREATE TABLE IF NOT EXISTS drift_events (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		field_path TEXT NOT NULL,
		declared_val TEXT,
		actual_val TEXT,
		description TEXT,
		detected_at DATETIME NOT NULL,
		resolved_at DATETIME,
		remediation TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_drift_events_snapshot ON drift_events(snapshot_id);
	CREATE INDEX IF NOT EXISTS idx_drift_events_unresolved ON drift_events(resolved_at);

	CREATE TABLE IF NOT EXISTS secrets (
		id TEXT PRIMARY KEY,
		instance_id TEXT,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		value_ciphertext BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		last_rotated_at DATETIME,
		expires_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_secrets_instance ON secrets(instance_id);

	CREATE TABLE IF NOT EXISTS vulnerabilities (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		package TEXT NOT NULL,
		version TEXT,
		description TEXT,
		detected_at DATETIME NOT NULL,
		superseded INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_vulnerabilities_instance ON vulnerabilities(instance_id);

	CREATE TABLE IF NOT EXISTS bom_entries (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		package TEXT NOT NULL,
		version TEXT,
		license TEXT,
		detected_at DATETIME NOT NULL,
		superseded INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_bom_entries_instance ON bom_entries(instance_id);

	CREATE TABLE IF NOT EXISTS ssh_keys (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		comment TEXT,
		added_at DATETIME NOT NULL,
		revoked_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_ssh_keys_instance ON ssh_keys(instance_id);
	`

	_, err := db.Exec(schema)
	return err
}
