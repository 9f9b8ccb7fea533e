// Package models defines domain models for DMARCWatch.
package models

import (
	"strings"
	"time"
)

// AlertType identifies the condition an alert rule watches for.
// The set is closed: adding a type means extending the switches in
// internal/alerting that own its metric key, comparison, and templates.
type AlertType string

const (
	AlertTypeFailureRate     AlertType = "failure_rate"
	AlertTypeVolumeSpike     AlertType = "volume_spike"
	AlertTypeVolumeDrop      AlertType = "volume_drop"
	AlertTypeNewSource       AlertType = "new_source"
	AlertTypePolicyViolation AlertType = "policy_violation"
	AlertTypeAnomaly         AlertType = "anomaly"
)

// ParseAlertType converts a string to AlertType.
// The second return is false for unrecognized types; callers skip those
// rather than treating them as errors.
func ParseAlertType(s string) (AlertType, bool) {
	switch AlertType(s) {
	case AlertTypeFailureRate, AlertTypeVolumeSpike, AlertTypeVolumeDrop,
		AlertTypeNewSource, AlertTypePolicyViolation, AlertTypeAnomaly:
		return AlertType(s), true
	default:
		return "", false
	}
}

// Severity represents alert severity level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity converts a string to Severity, defaulting to medium.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(s)) {
	case SeverityLow:
		return SeverityLow
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// NotifyConfig holds the per-channel notify flags of a rule.
type NotifyConfig struct {
	Teams   bool `json:"teams" yaml:"teams"`
	Email   bool `json:"email" yaml:"email"`
	Slack   bool `json:"slack" yaml:"slack"`
	Webhook bool `json:"webhook" yaml:"webhook"`
}

// EnabledChannels returns the enabled channel names in dispatch priority
// order: the priority channel (teams) first, then email, then the rest.
func (n NotifyConfig) EnabledChannels() []string {
	var channels []string
	if n.Teams {
		channels = append(channels, "teams")
	}
	if n.Email {
		channels = append(channels, "email")
	}
	if n.Slack {
		channels = append(channels, "slack")
	}
	if n.Webhook {
		channels = append(channels, "webhook")
	}
	return channels
}

// AlertRule is administrator-defined alert configuration. The alert engine
// only reads rules; creation and editing belong to the dashboard CRUD layer.
type AlertRule struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Type AlertType `json:"type"`
	// Severity is the single tier this rule checks. Conditions may carry
	// thresholds for other tiers, but only this one is consulted.
	Severity Severity `json:"severity"`
	// Conditions maps metric key to per-severity thresholds,
	// e.g. {"failure_rate": {"critical": 25.0}}.
	Conditions map[string]map[Severity]float64 `json:"conditions"`
	// DomainPattern restricts the rule to a domain: exact match, or
	// "*.suffix" for strict subdomains. Empty matches every domain.
	DomainPattern string `json:"domain_pattern,omitempty"`
	// CooldownMinutes overrides the per-type default when positive.
	CooldownMinutes int          `json:"cooldown_minutes"`
	Notify          NotifyConfig `json:"notify"`
	Enabled         bool         `json:"enabled"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Threshold returns the threshold for the given metric key at the rule's
// own severity tier. The second return is false when either the metric key
// or the tier is absent; such rules are skipped, not errors.
func (r *AlertRule) Threshold(metricKey string) (float64, bool) {
	tiers, ok := r.Conditions[metricKey]
	if !ok {
		return 0, false
	}
	v, ok := tiers[r.Severity]
	return v, ok
}

// MatchesDomain reports whether the rule applies to the given domain.
// A "*.suffix" pattern denotes strict subdomains: "*.example.com" matches
// "mail.example.com" but not "example.com" itself.
func (r *AlertRule) MatchesDomain(domain string) bool {
	if r.DomainPattern == "" {
		return true
	}
	if suffix, ok := strings.CutPrefix(r.DomainPattern, "*."); ok {
		return strings.HasSuffix(domain, "."+suffix)
	}
	return domain == r.DomainPattern
}
