package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

type sqliteRuleRepo struct {
	db *sql.DB
}

const ruleColumns = `id, name, type, severity, conditions_json, domain_pattern,
	cooldown_minutes, notify_json, enabled, created_at, updated_at`

func (r *sqliteRuleRepo) Create(ctx context.Context, rule *models.AlertRule) error {
	conditions, notify, err := encodeRule(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alert_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Type, rule.Severity, conditions,
		nullString(rule.DomainPattern), rule.CooldownMinutes, notify,
		rule.Enabled, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create alert rule: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) Update(ctx context.Context, rule *models.AlertRule) error {
	conditions, notify, err := encodeRule(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE alert_rules
		SET name = ?, type = ?, severity = ?, conditions_json = ?,
			domain_pattern = ?, cooldown_minutes = ?, notify_json = ?,
			enabled = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.Name, rule.Type, rule.Severity, conditions,
		nullString(rule.DomainPattern), rule.CooldownMinutes, notify,
		rule.Enabled, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert rule: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM alert_rules WHERE id = ?", id)
	return scanRuleRow(row)
}

func (r *sqliteRuleRepo) GetByName(ctx context.Context, name string) (*models.AlertRule, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM alert_rules WHERE name = ?", name)
	return scanRuleRow(row)
}

func (r *sqliteRuleRepo) List(ctx context.Context) ([]*models.AlertRule, error) {
	return r.queryRules(ctx, "SELECT "+ruleColumns+" FROM alert_rules ORDER BY name")
}

func (r *sqliteRuleRepo) ListEnabled(ctx context.Context) ([]*models.AlertRule, error) {
	return r.queryRules(ctx,
		"SELECT "+ruleColumns+" FROM alert_rules WHERE enabled = 1 ORDER BY name")
}

func (r *sqliteRuleRepo) ListEnabledByType(ctx context.Context, alertType models.AlertType) ([]*models.AlertRule, error) {
	return r.queryRules(ctx,
		"SELECT "+ruleColumns+" FROM alert_rules WHERE enabled = 1 AND type = ? ORDER BY name",
		alertType)
}

func (r *sqliteRuleRepo) queryRules(ctx context.Context, query string, args ...any) ([]*models.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(sc rowScanner) (*models.AlertRule, error) {
	rule := &models.AlertRule{}
	var conditions, notify string
	var domainPattern sql.NullString

	err := sc.Scan(&rule.ID, &rule.Name, &rule.Type, &rule.Severity,
		&conditions, &domainPattern, &rule.CooldownMinutes, &notify,
		&rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan alert rule: %w", err)
	}

	rule.DomainPattern = domainPattern.String
	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("decode rule conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(notify), &rule.Notify); err != nil {
		return nil, fmt.Errorf("decode rule notify flags: %w", err)
	}
	return rule, nil
}

func scanRuleRow(row *sql.Row) (*models.AlertRule, error) {
	rule, err := scanRule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return rule, nil
}

func encodeRule(rule *models.AlertRule) (conditions, notify string, err error) {
	c, err := json.Marshal(rule.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("encode rule conditions: %w", err)
	}
	n, err := json.Marshal(rule.Notify)
	if err != nil {
		return "", "", fmt.Errorf("encode rule notify flags: %w", err)
	}
	return string(c), string(n), nil
}
