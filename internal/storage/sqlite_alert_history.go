package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

type sqliteAlertHistoryRepo struct {
	db *sql.DB
}

const historyColumns = `id, type, severity, fingerprint, title, message, domain,
	current_value, threshold_value, metadata_json, status, cooldown_until,
	acknowledged_by, acknowledged_at, acknowledged_note,
	resolved_by, resolved_at, resolved_note,
	notification_sent, notification_channels_json, notification_sent_at, created_at`

func (r *sqliteAlertHistoryRepo) Insert(ctx context.Context, alert *models.AlertHistory) (err error) {
	defer observeQuery("history_insert", time.Now(), &err)

	metadata, err := encodeJSONString(alert.Metadata)
	if err != nil {
		return fmt.Errorf("encode alert metadata: %w", err)
	}
	channels, err := encodeJSONString(alert.NotificationChannels)
	if err != nil {
		return fmt.Errorf("encode notification channels: %w", err)
	}

	query := `
		INSERT INTO alert_history (` + historyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		alert.ID, alert.Type, alert.Severity, alert.Fingerprint,
		alert.Title, alert.Message, nullString(alert.Domain),
		alert.CurrentValue, alert.ThresholdValue, metadata,
		alert.Status, alert.CooldownUntil,
		nullString(alert.AcknowledgedBy), nullTime(alert.AcknowledgedAt), nullString(alert.AcknowledgedNote),
		nullString(alert.ResolvedBy), nullTime(alert.ResolvedAt), nullString(alert.ResolvedNote),
		alert.NotificationSent, channels, nullTime(alert.NotificationSentAt),
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert history: %w", err)
	}
	return nil
}

func (r *sqliteAlertHistoryRepo) GetByID(ctx context.Context, id string) (_ *models.AlertHistory, err error) {
	defer observeQuery("history_get", time.Now(), &err)

	row := r.db.QueryRowContext(ctx,
		"SELECT "+historyColumns+" FROM alert_history WHERE id = ?", id)
	alert, err := scanHistory(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return alert, nil
}

func (r *sqliteAlertHistoryRepo) FindRecentByFingerprint(ctx context.Context, fingerprint string, since time.Time) (_ *models.AlertHistory, err error) {
	defer observeQuery("history_find_recent", time.Now(), &err)

	query := `
		SELECT ` + historyColumns + `
		FROM alert_history
		WHERE fingerprint = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, fingerprint, since)
	alert, err := scanHistory(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return alert, nil
}

func (r *sqliteAlertHistoryRepo) List(ctx context.Context, filter HistoryFilter, limit, offset int) (_ []*models.AlertHistory, _ int64, err error) {
	defer observeQuery("history_list", time.Now(), &err)

	where, args := historyWhere(filter)

	var total int64
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alert_history"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count alert history: %w", err)
	}

	query := "SELECT " + historyColumns + " FROM alert_history" + where +
		" ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var alerts []*models.AlertHistory
	for rows.Next() {
		alert, err := scanHistory(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, total, rows.Err()
}

func (r *sqliteAlertHistoryRepo) Acknowledge(ctx context.Context, id, userID, note string, at time.Time) (_ bool, err error) {
	defer observeQuery("history_acknowledge", time.Now(), &err)

	// Guarded on current status so concurrent transitions serialize at the
	// row: only a created alert can be acknowledged.
	query := `
		UPDATE alert_history
		SET status = ?, acknowledged_by = ?, acknowledged_at = ?, acknowledged_note = ?
		WHERE id = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		models.StatusAcknowledged, userID, at, nullString(note),
		id, models.StatusCreated,
	)
	if err != nil {
		return false, fmt.Errorf("acknowledge alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acknowledge alert: rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *sqliteAlertHistoryRepo) Resolve(ctx context.Context, id, userID, note string, at time.Time) (_ bool, err error) {
	defer observeQuery("history_resolve", time.Now(), &err)

	query := `
		UPDATE alert_history
		SET status = ?, resolved_by = ?, resolved_at = ?, resolved_note = ?
		WHERE id = ? AND status IN (?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		models.StatusResolved, userID, at, nullString(note),
		id, models.StatusCreated, models.StatusAcknowledged,
	)
	if err != nil {
		return false, fmt.Errorf("resolve alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve alert: rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *sqliteAlertHistoryRepo) UpdateNotification(ctx context.Context, id string, sent bool, channels []string, at time.Time) (err error) {
	defer observeQuery("history_update_notification", time.Now(), &err)

	encoded, err := encodeJSONString(channels)
	if err != nil {
		return fmt.Errorf("encode notification channels: %w", err)
	}

	query := `
		UPDATE alert_history
		SET notification_sent = ?, notification_channels_json = ?, notification_sent_at = ?
		WHERE id = ?
	`
	if _, err = r.db.ExecContext(ctx, query, sent, encoded, at, id); err != nil {
		return fmt.Errorf("update alert notification: %w", err)
	}
	return nil
}

func historyWhere(filter HistoryFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Domain != "" {
		conds = append(conds, "domain = ?")
		args = append(args, filter.Domain)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanHistory(sc rowScanner) (*models.AlertHistory, error) {
	alert := &models.AlertHistory{}
	var domain, metadata, ackBy, ackNote, resBy, resNote, channels sql.NullString
	var ackAt, resAt, notifiedAt sql.NullTime

	err := sc.Scan(&alert.ID, &alert.Type, &alert.Severity, &alert.Fingerprint,
		&alert.Title, &alert.Message, &domain,
		&alert.CurrentValue, &alert.ThresholdValue, &metadata,
		&alert.Status, &alert.CooldownUntil,
		&ackBy, &ackAt, &ackNote,
		&resBy, &resAt, &resNote,
		&alert.NotificationSent, &channels, &notifiedAt, &alert.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan alert history: %w", err)
	}

	alert.Domain = domain.String
	alert.AcknowledgedBy = ackBy.String
	alert.AcknowledgedAt = timePtr(ackAt)
	alert.AcknowledgedNote = ackNote.String
	alert.ResolvedBy = resBy.String
	alert.ResolvedAt = timePtr(resAt)
	alert.ResolvedNote = resNote.String
	alert.NotificationSentAt = timePtr(notifiedAt)

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &alert.Metadata); err != nil {
			return nil, fmt.Errorf("decode alert metadata: %w", err)
		}
	}
	if channels.Valid && channels.String != "" {
		if err := json.Unmarshal([]byte(channels.String), &alert.NotificationChannels); err != nil {
			return nil, fmt.Errorf("decode notification channels: %w", err)
		}
	}
	return alert, nil
}

func encodeJSONString(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case map[string]string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
