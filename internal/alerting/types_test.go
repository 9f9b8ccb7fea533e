package alerting

import (
	"strings"
	"testing"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

func TestMetricKey(t *testing.T) {
	tests := []struct {
		alertType models.AlertType
		want      string
	}{
		{models.AlertTypeFailureRate, MetricFailureRate},
		{models.AlertTypeVolumeSpike, MetricVolumeChangePercent},
		{models.AlertTypeVolumeDrop, MetricVolumeChangePercent},
		{models.AlertTypeNewSource, MetricNewSourceCount},
		{models.AlertTypePolicyViolation, MetricPolicyViolationCount},
		{models.AlertTypeAnomaly, MetricAnomalyScore},
		{models.AlertType("bogus"), ""},
	}
	for _, tt := range tests {
		if got := MetricKey(tt.alertType); got != tt.want {
			t.Errorf("MetricKey(%s) = %q, want %q", tt.alertType, got, tt.want)
		}
	}
}

func TestExceeds(t *testing.T) {
	tests := []struct {
		name      string
		alertType models.AlertType
		value     float64
		threshold float64
		want      bool
	}{
		{"failure rate above", models.AlertTypeFailureRate, 30.0, 25.0, true},
		{"failure rate at threshold", models.AlertTypeFailureRate, 25.0, 25.0, true},
		{"failure rate below", models.AlertTypeFailureRate, 20.0, 25.0, false},
		{"spike above", models.AlertTypeVolumeSpike, 160.0, 150.0, true},
		{"drop deep enough", models.AlertTypeVolumeDrop, -60.0, 50.0, true},
		{"drop at threshold", models.AlertTypeVolumeDrop, -50.0, 50.0, true},
		{"drop too shallow", models.AlertTypeVolumeDrop, -40.0, 50.0, false},
		{"drop with rise", models.AlertTypeVolumeDrop, 10.0, 50.0, false},
		{"drop negative threshold", models.AlertTypeVolumeDrop, -60.0, -50.0, true},
		{"anomaly above", models.AlertTypeAnomaly, 0.9, 0.8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Exceeds(tt.alertType, tt.value, tt.threshold); got != tt.want {
				t.Errorf("Exceeds(%s, %v, %v) = %v, want %v",
					tt.alertType, tt.value, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestEffectiveThreshold(t *testing.T) {
	if got := EffectiveThreshold(models.AlertTypeVolumeDrop, 50.0); got != -50.0 {
		t.Errorf("volume_drop threshold = %v, want -50", got)
	}
	if got := EffectiveThreshold(models.AlertTypeVolumeDrop, -50.0); got != -50.0 {
		t.Errorf("already-negative threshold = %v, want -50", got)
	}
	if got := EffectiveThreshold(models.AlertTypeFailureRate, 25.0); got != 25.0 {
		t.Errorf("failure_rate threshold = %v, want 25", got)
	}
}

func TestAlertText(t *testing.T) {
	title, message := AlertText(models.AlertTypeFailureRate, "example.com", 30.0, 25.0)
	if !strings.Contains(title, "example.com") {
		t.Errorf("title %q should name the domain", title)
	}
	if !strings.Contains(message, "30.0") || !strings.Contains(message, "25.0") {
		t.Errorf("message %q should carry value and threshold", message)
	}

	// Empty domain falls back to an all-domains scope
	title, _ = AlertText(models.AlertTypeAnomaly, "", 0.9, 0.8)
	if !strings.Contains(title, "all domains") {
		t.Errorf("title %q should mention all domains", title)
	}

	// Drop messages speak in positive percentages
	_, message = AlertText(models.AlertTypeVolumeDrop, "example.com", -60.0, -50.0)
	if !strings.Contains(message, "60.0") || strings.Contains(message, "-60.0") {
		t.Errorf("drop message %q should state the drop as a positive percentage", message)
	}
}

func TestDefaultCooldown(t *testing.T) {
	tests := []struct {
		alertType models.AlertType
		want      time.Duration
	}{
		{models.AlertTypeFailureRate, time.Hour},
		{models.AlertTypeVolumeSpike, 2 * time.Hour},
		{models.AlertTypeVolumeDrop, 2 * time.Hour},
		{models.AlertTypeNewSource, 24 * time.Hour},
		{models.AlertTypePolicyViolation, time.Hour},
		{models.AlertTypeAnomaly, 3 * time.Hour},
		{models.AlertType("bogus"), fallbackCooldown},
	}
	for _, tt := range tests {
		if got := DefaultCooldown(tt.alertType); got != tt.want {
			t.Errorf("DefaultCooldown(%s) = %v, want %v", tt.alertType, got, tt.want)
		}
	}
}

func TestCooldownFor(t *testing.T) {
	rule := &models.AlertRule{CooldownMinutes: 30}
	if got := CooldownFor(models.AlertTypeFailureRate, rule); got != 30*time.Minute {
		t.Errorf("rule override = %v, want 30m", got)
	}

	// Zero override falls through to the type default
	rule.CooldownMinutes = 0
	if got := CooldownFor(models.AlertTypeFailureRate, rule); got != time.Hour {
		t.Errorf("zero override = %v, want 1h default", got)
	}

	if got := CooldownFor(models.AlertTypeNewSource, nil); got != 24*time.Hour {
		t.Errorf("nil rule = %v, want 24h default", got)
	}
}
