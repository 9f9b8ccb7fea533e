package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

type sqliteSuppressionRepo struct {
	db *sql.DB
}

const suppressionColumns = `id, name, active, alert_type, severity, domain,
	starts_at, ends_at, recurrence_json, created_at, updated_at`

func (r *sqliteSuppressionRepo) Create(ctx context.Context, sup *models.AlertSuppression) error {
	recurrence, err := encodeRecurrence(sup.Recurrence)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alert_suppressions (` + suppressionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		sup.ID, sup.Name, sup.Active,
		nullString(string(sup.AlertType)), nullString(string(sup.Severity)),
		nullString(sup.Domain), sup.StartsAt, sup.EndsAt, recurrence,
		sup.CreatedAt, sup.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create suppression: %w", err)
	}
	return nil
}

func (r *sqliteSuppressionRepo) Update(ctx context.Context, sup *models.AlertSuppression) error {
	recurrence, err := encodeRecurrence(sup.Recurrence)
	if err != nil {
		return err
	}

	query := `
		UPDATE alert_suppressions
		SET name = ?, active = ?, alert_type = ?, severity = ?, domain = ?,
			starts_at = ?, ends_at = ?, recurrence_json = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = r.db.ExecContext(ctx, query,
		sup.Name, sup.Active,
		nullString(string(sup.AlertType)), nullString(string(sup.Severity)),
		nullString(sup.Domain), sup.StartsAt, sup.EndsAt, recurrence,
		sup.UpdatedAt, sup.ID,
	)
	if err != nil {
		return fmt.Errorf("update suppression: %w", err)
	}
	return nil
}

func (r *sqliteSuppressionRepo) GetByID(ctx context.Context, id string) (*models.AlertSuppression, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+suppressionColumns+" FROM alert_suppressions WHERE id = ?", id)
	return scanSuppressionRow(row)
}

func (r *sqliteSuppressionRepo) GetByName(ctx context.Context, name string) (*models.AlertSuppression, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+suppressionColumns+" FROM alert_suppressions WHERE name = ?", name)
	return scanSuppressionRow(row)
}

func (r *sqliteSuppressionRepo) List(ctx context.Context) ([]*models.AlertSuppression, error) {
	return r.querySuppressions(ctx,
		"SELECT "+suppressionColumns+" FROM alert_suppressions ORDER BY name")
}

func (r *sqliteSuppressionRepo) ListActive(ctx context.Context) ([]*models.AlertSuppression, error) {
	return r.querySuppressions(ctx,
		"SELECT "+suppressionColumns+" FROM alert_suppressions WHERE active = 1 ORDER BY name")
}

func (r *sqliteSuppressionRepo) querySuppressions(ctx context.Context, query string, args ...any) ([]*models.AlertSuppression, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query suppressions: %w", err)
	}
	defer rows.Close()

	var sups []*models.AlertSuppression
	for rows.Next() {
		sup, err := scanSuppression(rows)
		if err != nil {
			return nil, err
		}
		sups = append(sups, sup)
	}
	return sups, rows.Err()
}

func scanSuppression(sc rowScanner) (*models.AlertSuppression, error) {
	sup := &models.AlertSuppression{}
	var alertType, severity, domain, recurrence sql.NullString

	err := sc.Scan(&sup.ID, &sup.Name, &sup.Active, &alertType, &severity,
		&domain, &sup.StartsAt, &sup.EndsAt, &recurrence,
		&sup.CreatedAt, &sup.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan suppression: %w", err)
	}

	sup.AlertType = models.AlertType(alertType.String)
	sup.Severity = models.Severity(severity.String)
	sup.Domain = domain.String
	if recurrence.Valid && recurrence.String != "" {
		var rec models.Recurrence
		if err := json.Unmarshal([]byte(recurrence.String), &rec); err != nil {
			return nil, fmt.Errorf("decode suppression recurrence: %w", err)
		}
		sup.Recurrence = &rec
	}
	return sup, nil
}

func scanSuppressionRow(row *sql.Row) (*models.AlertSuppression, error) {
	sup, err := scanSuppression(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return sup, nil
}

func encodeRecurrence(rec *models.Recurrence) (sql.NullString, error) {
	if rec == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode suppression recurrence: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
