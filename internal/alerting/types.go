// Package alerting implements the DMARCWatch alert engine: rule
// evaluation against reporting metrics, fingerprint deduplication with
// per-type cooldowns, suppression windows, and the alert lifecycle.
package alerting

import (
	"fmt"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// Metrics is a snapshot of reporting metrics for one domain over the
// current evaluation window. Producers fill what they have; the evaluator
// only consults the keys the enabled rules ask for.
type Metrics map[string]float64

// Well-known metric keys. Each alert type reads exactly one of these.
const (
	MetricFailureRate          = "failure_rate"
	MetricVolumeChangePercent  = "volume_change_percent"
	MetricNewSourceCount       = "new_source_count"
	MetricPolicyViolationCount = "policy_violation_count"
	MetricAnomalyScore         = "anomaly_score"
)

// MetricKey returns the metric key an alert type is evaluated against.
func MetricKey(t models.AlertType) string {
	switch t {
	case models.AlertTypeFailureRate:
		return MetricFailureRate
	case models.AlertTypeVolumeSpike, models.AlertTypeVolumeDrop:
		return MetricVolumeChangePercent
	case models.AlertTypeNewSource:
		return MetricNewSourceCount
	case models.AlertTypePolicyViolation:
		return MetricPolicyViolationCount
	case models.AlertTypeAnomaly:
		return MetricAnomalyScore
	default:
		return ""
	}
}

// Exceeds reports whether a metric value crosses the rule threshold for
// the given alert type. Every type fires at value >= threshold except
// volume_drop, which watches a signed change percentage and fires when
// the drop is at least as deep as the threshold magnitude.
func Exceeds(t models.AlertType, value, threshold float64) bool {
	if t == models.AlertTypeVolumeDrop {
		mag := threshold
		if mag < 0 {
			mag = -mag
		}
		return value <= -mag
	}
	return value >= threshold
}

// EffectiveThreshold returns the threshold to record on a fired alert.
// For volume_drop this is the negated magnitude, so the stored threshold
// and the stored current value sit on the same side of zero.
func EffectiveThreshold(t models.AlertType, threshold float64) float64 {
	if t == models.AlertTypeVolumeDrop {
		if threshold < 0 {
			return threshold
		}
		return -threshold
	}
	return threshold
}

// AlertText returns the human-readable title and message for a fired
// alert. domain may be empty for alerts not scoped to one domain.
func AlertText(t models.AlertType, domain string, value, threshold float64) (title, message string) {
	scope := domain
	if scope == "" {
		scope = "all domains"
	}

	switch t {
	case models.AlertTypeFailureRate:
		title = fmt.Sprintf("DMARC failure rate alert for %s", scope)
		message = fmt.Sprintf("DMARC failure rate for %s is %.1f%%, above the %.1f%% threshold.",
			scope, value, threshold)
	case models.AlertTypeVolumeSpike:
		title = fmt.Sprintf("Email volume spike for %s", scope)
		message = fmt.Sprintf("Email volume for %s increased by %.1f%%, above the %.1f%% threshold.",
			scope, value, threshold)
	case models.AlertTypeVolumeDrop:
		title = fmt.Sprintf("Email volume drop for %s", scope)
		message = fmt.Sprintf("Email volume for %s decreased by %.1f%%, beyond the %.1f%% threshold.",
			scope, -value, -threshold)
	case models.AlertTypeNewSource:
		title = fmt.Sprintf("New sending sources for %s", scope)
		message = fmt.Sprintf("%.0f new sending sources observed for %s (threshold: %.0f).",
			value, scope, threshold)
	case models.AlertTypePolicyViolation:
		title = fmt.Sprintf("DMARC policy violations for %s", scope)
		message = fmt.Sprintf("%.0f messages violated the published DMARC policy for %s (threshold: %.0f).",
			value, scope, threshold)
	case models.AlertTypeAnomaly:
		title = fmt.Sprintf("Sending anomaly detected for %s", scope)
		message = fmt.Sprintf("Anomaly score for %s is %.2f, above the %.2f threshold.",
			scope, value, threshold)
	default:
		title = fmt.Sprintf("Alert for %s", scope)
		message = fmt.Sprintf("Observed value %.2f crossed threshold %.2f for %s.",
			value, threshold, scope)
	}
	return title, message
}

// defaultCooldowns holds the per-type cooldown applied when a rule does
// not override it. Noisy types get short windows; new_source is expected
// roughly daily.
var defaultCooldowns = map[models.AlertType]time.Duration{
	models.AlertTypeFailureRate:     60 * time.Minute,
	models.AlertTypeVolumeSpike:     120 * time.Minute,
	models.AlertTypeVolumeDrop:      120 * time.Minute,
	models.AlertTypeNewSource:       24 * time.Hour,
	models.AlertTypePolicyViolation: 60 * time.Minute,
	models.AlertTypeAnomaly:         180 * time.Minute,
}

// fallbackCooldown covers alert types missing from the table.
const fallbackCooldown = 60 * time.Minute

// DefaultCooldown returns the default cooldown for an alert type.
func DefaultCooldown(t models.AlertType) time.Duration {
	if d, ok := defaultCooldowns[t]; ok {
		return d
	}
	return fallbackCooldown
}
