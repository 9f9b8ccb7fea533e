package models

import "time"

// AlertStatus is the lifecycle state of a fired alert. Transitions only
// move forward: created -> acknowledged -> resolved, or created -> resolved.
// Resolved is terminal.
type AlertStatus string

const (
	StatusCreated      AlertStatus = "created"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

// AlertHistory is a fired alert. Rows are created and mutated only by the
// alert lifecycle manager; retention is someone else's job.
type AlertHistory struct {
	ID       string    `json:"id"`
	Type     AlertType `json:"alert_type"`
	Severity Severity  `json:"severity"`
	// Fingerprint is the deduplication identity: a hash of
	// (type, domain, threshold). The observed value never participates.
	Fingerprint string `json:"fingerprint"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	// Domain is empty for alerts not scoped to a single domain.
	Domain         string            `json:"domain,omitempty"`
	CurrentValue   float64           `json:"current_value"`
	ThresholdValue float64           `json:"threshold_value"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	Status        AlertStatus `json:"status"`
	CooldownUntil time.Time   `json:"cooldown_until"`

	AcknowledgedBy   string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedNote string     `json:"acknowledged_note,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolvedNote     string     `json:"resolved_note,omitempty"`

	NotificationSent     bool       `json:"notification_sent"`
	NotificationChannels []string   `json:"notification_channels"`
	NotificationSentAt   *time.Time `json:"notification_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BulkResult aggregates the outcome of a bulk lifecycle operation.
// SuccessCount + FailedCount always equals the number of ids processed.
type BulkResult struct {
	SuccessCount int      `json:"success_count"`
	FailedCount  int      `json:"failed_count"`
	Errors       []string `json:"errors"`
}
