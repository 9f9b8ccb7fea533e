package alerting

import (
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// CooldownFor returns the cooldown duration for an alert fired by the
// given rule: the rule override when positive, otherwise the per-type
// default. rule may be nil for alerts created outside rule evaluation.
func CooldownFor(t models.AlertType, rule *models.AlertRule) time.Duration {
	if rule != nil && rule.CooldownMinutes > 0 {
		return time.Duration(rule.CooldownMinutes) * time.Minute
	}
	return DefaultCooldown(t)
}
