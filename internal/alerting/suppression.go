package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/storage"
)

// SuppressionMatcher decides whether a would-be alert falls inside an
// active suppression window.
type SuppressionMatcher struct {
	suppressions storage.SuppressionRepository
}

// NewSuppressionMatcher creates a suppression matcher backed by the
// given repository.
func NewSuppressionMatcher(repo storage.SuppressionRepository) *SuppressionMatcher {
	return &SuppressionMatcher{suppressions: repo}
}

// IsSuppressed reports whether any active suppression covers an event
// with the given type, severity, and domain at the given instant.
// Windows are independent: one match suppresses.
func (m *SuppressionMatcher) IsSuppressed(ctx context.Context, alertType models.AlertType, severity models.Severity, domain string, now time.Time) (bool, error) {
	sups, err := m.suppressions.ListActive(ctx)
	if err != nil {
		return false, fmt.Errorf("list active suppressions: %w", err)
	}
	for _, sup := range sups {
		if sup.Matches(alertType, severity, domain, now) {
			return true, nil
		}
	}
	return false, nil
}
