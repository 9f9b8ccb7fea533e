package alerting

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/storage"
)

// SeedConfig is the YAML shape of a rules seed file. Seeding upserts by
// name, so the file can be edited and re-applied without duplicating
// rows or losing history.
type SeedConfig struct {
	Rules        []SeedRule        `yaml:"rules"`
	Suppressions []SeedSuppression `yaml:"suppressions"`
}

// SeedRule is one alert rule in a seed file.
type SeedRule struct {
	Name            string                                  `yaml:"name"`
	Type            string                                  `yaml:"type"`
	Severity        string                                  `yaml:"severity"`
	Conditions      map[string]map[models.Severity]float64  `yaml:"conditions"`
	DomainPattern   string                                  `yaml:"domain_pattern"`
	CooldownMinutes int                                     `yaml:"cooldown_minutes"`
	Notify          models.NotifyConfig                     `yaml:"notify"`
	Enabled         *bool                                   `yaml:"enabled"`
}

// SeedSuppression is one suppression window in a seed file. Weekdays are
// numeric, 0 = Sunday, matching time.Weekday.
type SeedSuppression struct {
	Name      string    `yaml:"name"`
	Active    *bool     `yaml:"active"`
	AlertType string    `yaml:"alert_type"`
	Severity  string    `yaml:"severity"`
	Domain    string    `yaml:"domain"`
	StartsAt  time.Time `yaml:"starts_at"`
	EndsAt    time.Time `yaml:"ends_at"`
	Recurrence *struct {
		Days  []int `yaml:"days"`
		Hours []int `yaml:"hours"`
	} `yaml:"recurrence"`
}

// LoadSeedFile parses and validates a YAML seed file.
func LoadSeedFile(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return LoadSeed(data)
}

// LoadSeed parses and validates YAML seed bytes.
func LoadSeed(data []byte) (*SeedConfig, error) {
	var cfg SeedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse seed YAML: %w", err)
	}

	for i, rule := range cfg.Rules {
		if err := rule.validate(); err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
	}
	for i, sup := range cfg.Suppressions {
		if err := sup.validate(); err != nil {
			return nil, fmt.Errorf("invalid suppression at index %d: %w", i, err)
		}
	}
	return &cfg, nil
}

func (r *SeedRule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, ok := models.ParseAlertType(r.Type); !ok {
		return fmt.Errorf("unknown alert type %q", r.Type)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("conditions are required")
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown_minutes must not be negative")
	}
	return nil
}

func (s *SeedSuppression) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.AlertType != "" {
		if _, ok := models.ParseAlertType(s.AlertType); !ok {
			return fmt.Errorf("unknown alert type %q", s.AlertType)
		}
	}
	if s.StartsAt.IsZero() || s.EndsAt.IsZero() {
		return fmt.Errorf("starts_at and ends_at are required")
	}
	if !s.StartsAt.Before(s.EndsAt) {
		return fmt.Errorf("starts_at must precede ends_at")
	}
	if s.Recurrence != nil {
		for _, d := range s.Recurrence.Days {
			if d < 0 || d > 6 {
				return fmt.Errorf("recurrence day %d out of range 0-6", d)
			}
		}
		for _, h := range s.Recurrence.Hours {
			if h < 0 || h > 23 {
				return fmt.Errorf("recurrence hour %d out of range 0-23", h)
			}
		}
	}
	return nil
}

// Seed applies a seed config to storage, upserting rules and
// suppressions by name. Existing rows keep their id and created_at.
func Seed(ctx context.Context, store storage.Storage, cfg *SeedConfig) error {
	now := time.Now().UTC()

	for _, seed := range cfg.Rules {
		rule := seed.toModel(now)
		existing, err := store.Rules().GetByName(ctx, rule.Name)
		if err != nil {
			return fmt.Errorf("look up rule %s: %w", rule.Name, err)
		}
		if existing != nil {
			rule.ID = existing.ID
			rule.CreatedAt = existing.CreatedAt
			if err := store.Rules().Update(ctx, rule); err != nil {
				return fmt.Errorf("update rule %s: %w", rule.Name, err)
			}
			continue
		}
		if err := store.Rules().Create(ctx, rule); err != nil {
			return fmt.Errorf("create rule %s: %w", rule.Name, err)
		}
	}

	for _, seed := range cfg.Suppressions {
		sup := seed.toModel(now)
		existing, err := store.Suppressions().GetByName(ctx, sup.Name)
		if err != nil {
			return fmt.Errorf("look up suppression %s: %w", sup.Name, err)
		}
		if existing != nil {
			sup.ID = existing.ID
			sup.CreatedAt = existing.CreatedAt
			if err := store.Suppressions().Update(ctx, sup); err != nil {
				return fmt.Errorf("update suppression %s: %w", sup.Name, err)
			}
			continue
		}
		if err := store.Suppressions().Create(ctx, sup); err != nil {
			return fmt.Errorf("create suppression %s: %w", sup.Name, err)
		}
	}

	log.Printf("seeded %d rules and %d suppressions", len(cfg.Rules), len(cfg.Suppressions))
	return nil
}

// SeedFromFile loads a seed file and applies it.
func SeedFromFile(ctx context.Context, store storage.Storage, path string) error {
	cfg, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	return Seed(ctx, store, cfg)
}

func (r *SeedRule) toModel(now time.Time) *models.AlertRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &models.AlertRule{
		ID:              uuid.New().String(),
		Name:            r.Name,
		Type:            models.AlertType(r.Type),
		Severity:        models.ParseSeverity(r.Severity),
		Conditions:      r.Conditions,
		DomainPattern:   r.DomainPattern,
		CooldownMinutes: r.CooldownMinutes,
		Notify:          r.Notify,
		Enabled:         enabled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *SeedSuppression) toModel(now time.Time) *models.AlertSuppression {
	active := true
	if s.Active != nil {
		active = *s.Active
	}
	sup := &models.AlertSuppression{
		ID:        uuid.New().String(),
		Name:      s.Name,
		Active:    active,
		AlertType: models.AlertType(s.AlertType),
		Domain:    s.Domain,
		StartsAt:  s.StartsAt.UTC(),
		EndsAt:    s.EndsAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.Severity != "" {
		sup.Severity = models.ParseSeverity(s.Severity)
	}
	if s.Recurrence != nil {
		rec := &models.Recurrence{Hours: s.Recurrence.Hours}
		for _, d := range s.Recurrence.Days {
			rec.Days = append(rec.Days, time.Weekday(d))
		}
		sup.Recurrence = rec
	}
	return sup
}
