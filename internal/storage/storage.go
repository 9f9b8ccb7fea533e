// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Rules() RuleRepository
	Suppressions() SuppressionRepository
	AlertHistory() AlertHistoryRepository
}

// RuleRepository defines operations for alert rule configuration.
// The alert engine only reads rules; Create/Update exist for seeding and
// for the dashboard CRUD layer.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.AlertRule) error
	Update(ctx context.Context, rule *models.AlertRule) error
	GetByID(ctx context.Context, id string) (*models.AlertRule, error)
	GetByName(ctx context.Context, name string) (*models.AlertRule, error)
	List(ctx context.Context) ([]*models.AlertRule, error)
	ListEnabled(ctx context.Context) ([]*models.AlertRule, error)
	ListEnabledByType(ctx context.Context, alertType models.AlertType) ([]*models.AlertRule, error)
}

// SuppressionRepository defines operations for suppression windows.
type SuppressionRepository interface {
	Create(ctx context.Context, sup *models.AlertSuppression) error
	Update(ctx context.Context, sup *models.AlertSuppression) error
	GetByID(ctx context.Context, id string) (*models.AlertSuppression, error)
	GetByName(ctx context.Context, name string) (*models.AlertSuppression, error)
	List(ctx context.Context) ([]*models.AlertSuppression, error)
	ListActive(ctx context.Context) ([]*models.AlertSuppression, error)
}

// HistoryFilter narrows alert history listings. Zero-value fields are
// ignored.
type HistoryFilter struct {
	Status models.AlertStatus
	Type   models.AlertType
	Domain string
}

// AlertHistoryRepository defines operations for fired alerts.
type AlertHistoryRepository interface {
	Insert(ctx context.Context, alert *models.AlertHistory) error
	GetByID(ctx context.Context, id string) (*models.AlertHistory, error)
	// FindRecentByFingerprint returns the most recent alert with the given
	// fingerprint created at or after since, or nil.
	FindRecentByFingerprint(ctx context.Context, fingerprint string, since time.Time) (*models.AlertHistory, error)
	List(ctx context.Context, filter HistoryFilter, limit, offset int) ([]*models.AlertHistory, int64, error)
	// Acknowledge transitions created -> acknowledged. The update is guarded
	// on the current status; false means the row was not in status created.
	Acknowledge(ctx context.Context, id, userID, note string, at time.Time) (bool, error)
	// Resolve transitions created or acknowledged -> resolved, same guard
	// semantics as Acknowledge.
	Resolve(ctx context.Context, id, userID, note string, at time.Time) (bool, error)
	// UpdateNotification records the fanout outcome as a follow-up update.
	UpdateNotification(ctx context.Context, id string, sent bool, channels []string, at time.Time) error
}
