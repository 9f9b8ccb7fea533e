package models

import "time"

// Recurrence restricts a suppression to recurring UTC weekdays and hours
// inside its absolute window.
type Recurrence struct {
	Days  []time.Weekday `json:"days"`
	Hours []int          `json:"hours"`
}

// matchesTime reports whether now falls on one of the recurrence's
// weekdays and hours. Both sets are evaluated in UTC.
func (r *Recurrence) matchesTime(now time.Time) bool {
	now = now.UTC()
	dayOK := false
	for _, d := range r.Days {
		if now.Weekday() == d {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}
	for _, h := range r.Hours {
		if now.Hour() == h {
			return true
		}
	}
	return false
}

// AlertSuppression is an administrator-defined window during which matching
// alerts are not created. Read-only to the engine.
type AlertSuppression struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`

	// Optional filters; the zero value is a wildcard.
	AlertType AlertType `json:"alert_type,omitempty"`
	Severity  Severity  `json:"severity,omitempty"`
	Domain    string    `json:"domain,omitempty"`

	// Absolute window, half-open: [StartsAt, EndsAt).
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`

	// Recurrence further restricts the window when set.
	Recurrence *Recurrence `json:"recurrence,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Matches reports whether this suppression covers an event with the given
// type, severity, and domain at the given instant. All present conditions
// must hold; absent filters match anything.
func (s *AlertSuppression) Matches(alertType AlertType, severity Severity, domain string, now time.Time) bool {
	if !s.Active {
		return false
	}
	if now.Before(s.StartsAt) || !now.Before(s.EndsAt) {
		return false
	}
	if s.Recurrence != nil && !s.Recurrence.matchesTime(now) {
		return false
	}
	if s.AlertType != "" && s.AlertType != alertType {
		return false
	}
	if s.Severity != "" && s.Severity != severity {
		return false
	}
	if s.Domain != "" && s.Domain != domain {
		return false
	}
	return true
}
