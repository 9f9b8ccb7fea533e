package alerting

import (
	"context"
	"fmt"
	"log"

	"github.com/dmarcwatch/dmarcwatch/internal/metrics"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// Evaluator runs enabled alert rules against metric snapshots and fires
// alerts through the manager.
type Evaluator struct {
	manager *Manager
}

// NewEvaluator creates an evaluator that fires through the given manager.
func NewEvaluator(manager *Manager) *Evaluator {
	return &Evaluator{manager: manager}
}

// Evaluate checks all enabled rules against one domain's metric snapshot
// and returns the alerts that were created. Rules are independent: a
// rule whose creation fails is logged and skipped, not fatal to the
// pass. Suppressed and deduplicated rules produce no alert and no error.
func (e *Evaluator) Evaluate(ctx context.Context, domain string, m Metrics) ([]*models.AlertHistory, error) {
	rules, err := e.manager.store.Rules().ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}

	metrics.EngineEvaluationsTotal.Inc()

	var fired []*models.AlertHistory
	for _, rule := range rules {
		alert, err := e.evaluateRule(ctx, rule, domain, m)
		if err != nil {
			log.Printf("warning: rule %s: %v", rule.Name, err)
			continue
		}
		if alert != nil {
			fired = append(fired, alert)
		}
	}
	return fired, nil
}

// evaluateRule checks one rule against the snapshot. Rules that do not
// apply (wrong domain, unknown type, missing metric or threshold tier)
// are skipped silently.
func (e *Evaluator) evaluateRule(ctx context.Context, rule *models.AlertRule, domain string, m Metrics) (*models.AlertHistory, error) {
	if !rule.MatchesDomain(domain) {
		return nil, nil
	}

	key := MetricKey(rule.Type)
	if key == "" {
		return nil, nil
	}
	value, ok := m[key]
	if !ok {
		return nil, nil
	}
	threshold, ok := rule.Threshold(key)
	if !ok {
		return nil, nil
	}

	if !Exceeds(rule.Type, value, threshold) {
		return nil, nil
	}

	effective := EffectiveThreshold(rule.Type, threshold)
	title, message := AlertText(rule.Type, domain, value, effective)

	return e.manager.Create(ctx, CreateRequest{
		Type:           rule.Type,
		Severity:       rule.Severity,
		Title:          title,
		Message:        message,
		Domain:         domain,
		CurrentValue:   value,
		ThresholdValue: effective,
		Metadata:       map[string]string{"rule_id": rule.ID, "rule_name": rule.Name},
		rule:           rule,
	})
}
