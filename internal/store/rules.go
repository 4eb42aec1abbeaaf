package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// RuleFilter narrows ListRules (§4.5: type, severity, enabled, instanceId).
type RuleFilter struct {
	Type       string
	Severity   string
	Enabled    *bool
	InstanceID string
}

// CreateRule inserts a rule and its channel associations in one
// transaction (§4.5: "replaces channel associations if channelIds given").
func (s *Store) CreateRule(ctx context.Context, r AlertRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alert_rules (id, name, type, severity, instance_id, conditions, cooldown_sec, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, r.Type, r.Severity, r.InstanceID, r.Conditions, r.CooldownSec, r.Enabled)
	if err != nil {
		return err
	}

	if err := replaceRuleChannels(ctx, tx, r.ID, r.ChannelIDs); err != nil {
		return err
	}

	return tx.Commit()
}

func replaceRuleChannels(ctx context.Context, tx *sql.Tx, ruleID string, channelIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_rule_channels WHERE rule_id = ?`, ruleID); err != nil {
		return err
	}
	for _, cid := range channelIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO alert_rule_channels (rule_id, channel_id) VALUES (?, ?)`, ruleID, cid); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRule overwrites name, type, severity, instance_id, conditions,
// cooldown_sec and enabled with r's values; it does not merge with the
// stored row. Channel associations are replaced with r.ChannelIDs when
// replaceChannels is true and left untouched otherwise.
func (s *Store) UpdateRule(ctx context.Context, r AlertRule, replaceChannels bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE alert_rules SET name = ?, type = ?, severity = ?, instance_id = ?,
			conditions = ?, cooldown_sec = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, r.Name, r.Type, r.Severity, r.InstanceID, r.Conditions, r.CooldownSec, r.Enabled, r.ID)
	if err != nil {
		return err
	}

	if replaceChannels {
		if err := replaceRuleChannels(ctx, tx, r.ID, r.ChannelIDs); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ToggleRule flips the enabled bit and returns the resulting rule.
func (s *Store) ToggleRule(ctx context.Context, id string) (*AlertRule, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE alert_rules SET enabled = NOT enabled, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return s.Rule(ctx, id)
}

// DeleteRule removes a rule and its channel associations.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_rule_channels WHERE rule_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Rule returns a single rule with its channel ids, or ErrNotFound.
func (s *Store) Rule(ctx context.Context, id string) (*AlertRule, error) {
	var r AlertRule
	var instanceID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, severity, instance_id, conditions, cooldown_sec, enabled
		FROM alert_rules WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &r.Type, &r.Severity, &instanceID, &r.Conditions, &r.CooldownSec, &r.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if instanceID.Valid {
		r.InstanceID = &instanceID.String
	}

	channelIDs, err := s.ruleChannelIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	r.ChannelIDs = channelIDs
	return &r, nil
}

func (s *Store) ruleChannelIDs(ctx context.Context, ruleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id FROM alert_rule_channels WHERE rule_id = ?`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, err
		}
		out = append(out, cid)
	}
	return out, rows.Err()
}

// EnabledRules returns every enabled rule, used once per evaluator tick.
func (s *Store) EnabledRules(ctx context.Context) ([]AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, severity, instance_id, conditions, cooldown_sec, enabled
		FROM alert_rules WHERE enabled = 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertRule
	for rows.Next() {
		var r AlertRule
		var instanceID sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &r.Severity, &instanceID, &r.Conditions, &r.CooldownSec, &r.Enabled); err != nil {
			return nil, err
		}
		if instanceID.Valid {
			r.InstanceID = &instanceID.String
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		channelIDs, err := s.ruleChannelIDs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].ChannelIDs = channelIDs
	}
	return out, nil
}

// ListRules returns a filtered, paginated rule set. When InstanceID is
// supplied, rules scoped to that instance OR unscoped (NULL) match
// (§4.5: "a null-scoped rule applies to all instances").
func (s *Store) ListRules(ctx context.Context, f RuleFilter, page, pageSize int) ([]AlertRule, int, error) {
	where := []string{"1=1"}
	args := []any{}

	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, *f.Enabled)
	}
	if f.InstanceID != "" {
		where = append(where, "(instance_id = ? OR instance_id IS NULL)")
		args = append(args, f.InstanceID)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM alert_rules WHERE %s`, whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, name, type, severity, instance_id, conditions, cooldown_sec, enabled
		FROM alert_rules WHERE %s ORDER BY name ASC LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []AlertRule
	for rows.Next() {
		var r AlertRule
		var instanceID sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &r.Severity, &instanceID, &r.Conditions, &r.CooldownSec, &r.Enabled); err != nil {
			return nil, 0, err
		}
		if instanceID.Valid {
			r.InstanceID = &instanceID.String
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range out {
		channelIDs, err := s.ruleChannelIDs(ctx, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].ChannelIDs = channelIDs
	}

	return out, total, nil
}
