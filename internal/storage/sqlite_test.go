package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

func setupTestDB(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()

	// Create temp directory for test database
	tmpDir, err := os.MkdirTemp("", "dmarcwatch-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	store := NewSQLiteStorage(dbPath)
	if err := store.Open(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("open database: %v", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("migrate database: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func TestSQLiteStorage_Migrate(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// Verify tables exist by querying them
	tables := []string{"alert_rules", "alert_suppressions", "alert_history", "schema_migrations"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s should exist: %v", table, err)
		}
	}
}

func testRule(name string) *models.AlertRule {
	now := time.Now().UTC()
	return &models.AlertRule{
		ID:       uuid.New().String(),
		Name:     name,
		Type:     models.AlertTypeFailureRate,
		Severity: models.SeverityCritical,
		Conditions: map[string]map[models.Severity]float64{
			"failure_rate": {models.SeverityCritical: 25.0},
		},
		DomainPattern:   "example.com",
		CooldownMinutes: 30,
		Notify:          models.NotifyConfig{Teams: true, Email: true},
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestRuleRepository_CRUD(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rule := testRule("high-failure-rate")
	if err := store.Rules().Create(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	// Get by ID
	got, err := store.Rules().GetByID(ctx, rule.ID)
	if err != nil {
		t.Fatalf("get rule by id: %v", err)
	}
	if got == nil {
		t.Fatal("rule should exist")
	}
	if got.Name != rule.Name {
		t.Errorf("name = %v, want %v", got.Name, rule.Name)
	}
	if v, ok := got.Threshold("failure_rate"); !ok || v != 25.0 {
		t.Errorf("threshold = %v/%v, want 25.0/true", v, ok)
	}
	if !got.Notify.Teams || !got.Notify.Email || got.Notify.Slack {
		t.Errorf("notify flags round-trip mismatch: %+v", got.Notify)
	}

	// Get by name
	got, err = store.Rules().GetByName(ctx, rule.Name)
	if err != nil {
		t.Fatalf("get rule by name: %v", err)
	}
	if got == nil {
		t.Fatal("rule should exist")
	}

	// Update
	rule.CooldownMinutes = 120
	rule.UpdatedAt = time.Now().UTC()
	if err := store.Rules().Update(ctx, rule); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	got, _ = store.Rules().GetByID(ctx, rule.ID)
	if got.CooldownMinutes != 120 {
		t.Errorf("cooldown_minutes = %d, want 120", got.CooldownMinutes)
	}

	// List
	rules, err := store.Rules().List(ctx)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("rules count = %d, want 1", len(rules))
	}
}

func TestRuleRepository_ListEnabledByType(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	enabled := testRule("enabled-failure-rate")
	store.Rules().Create(ctx, enabled)

	disabled := testRule("disabled-failure-rate")
	disabled.Enabled = false
	store.Rules().Create(ctx, disabled)

	other := testRule("spike-rule")
	other.Type = models.AlertTypeVolumeSpike
	store.Rules().Create(ctx, other)

	got, err := store.Rules().ListEnabledByType(ctx, models.AlertTypeFailureRate)
	if err != nil {
		t.Fatalf("list enabled by type: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rules count = %d, want 1", len(got))
	}
	if got[0].ID != enabled.ID {
		t.Errorf("rule id = %v, want %v", got[0].ID, enabled.ID)
	}

	all, err := store.Rules().ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("enabled rules count = %d, want 2", len(all))
	}
}

func TestRuleRepository_GetMissing(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	got, err := store.Rules().GetByID(ctx, uuid.New().String())
	if err != nil {
		t.Fatalf("get missing rule: %v", err)
	}
	if got != nil {
		t.Error("missing rule should be nil")
	}
}

func TestSuppressionRepository_CRUD(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	sup := &models.AlertSuppression{
		ID:        uuid.New().String(),
		Name:      "weekend-maintenance",
		Active:    true,
		AlertType: models.AlertTypeVolumeDrop,
		Domain:    "example.com",
		StartsAt:  now.Add(-time.Hour),
		EndsAt:    now.Add(time.Hour),
		Recurrence: &models.Recurrence{
			Days:  []time.Weekday{time.Saturday, time.Sunday},
			Hours: []int{2, 3, 4},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Suppressions().Create(ctx, sup); err != nil {
		t.Fatalf("create suppression: %v", err)
	}

	got, err := store.Suppressions().GetByID(ctx, sup.ID)
	if err != nil {
		t.Fatalf("get suppression by id: %v", err)
	}
	if got == nil {
		t.Fatal("suppression should exist")
	}
	if got.Recurrence == nil {
		t.Fatal("recurrence should round-trip")
	}
	if len(got.Recurrence.Days) != 2 || len(got.Recurrence.Hours) != 3 {
		t.Errorf("recurrence = %+v, want 2 days and 3 hours", got.Recurrence)
	}
	if got.AlertType != models.AlertTypeVolumeDrop {
		t.Errorf("alert_type = %v, want volume_drop", got.AlertType)
	}
	if got.Severity != "" {
		t.Errorf("severity = %q, want empty wildcard", got.Severity)
	}

	got, err = store.Suppressions().GetByName(ctx, sup.Name)
	if err != nil {
		t.Fatalf("get suppression by name: %v", err)
	}
	if got == nil {
		t.Fatal("suppression should exist")
	}

	// Update: deactivate and drop recurrence
	sup.Active = false
	sup.Recurrence = nil
	sup.UpdatedAt = time.Now().UTC()
	if err := store.Suppressions().Update(ctx, sup); err != nil {
		t.Fatalf("update suppression: %v", err)
	}
	got, _ = store.Suppressions().GetByID(ctx, sup.ID)
	if got.Active {
		t.Error("suppression should be inactive")
	}
	if got.Recurrence != nil {
		t.Error("recurrence should be cleared")
	}
}

func TestSuppressionRepository_ListActive(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	for _, tc := range []struct {
		name   string
		active bool
	}{
		{"active-window", true},
		{"inactive-window", false},
	} {
		store.Suppressions().Create(ctx, &models.AlertSuppression{
			ID:        uuid.New().String(),
			Name:      tc.name,
			Active:    tc.active,
			StartsAt:  now,
			EndsAt:    now.Add(time.Hour),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	active, err := store.Suppressions().ListActive(ctx)
	if err != nil {
		t.Fatalf("list active suppressions: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active count = %d, want 1", len(active))
	}
	if active[0].Name != "active-window" {
		t.Errorf("name = %v, want active-window", active[0].Name)
	}

	all, err := store.Suppressions().List(ctx)
	if err != nil {
		t.Fatalf("list suppressions: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("suppressions count = %d, want 2", len(all))
	}
}

func testHistory(fingerprint string, createdAt time.Time) *models.AlertHistory {
	return &models.AlertHistory{
		ID:             uuid.New().String(),
		Type:           models.AlertTypeFailureRate,
		Severity:       models.SeverityCritical,
		Fingerprint:    fingerprint,
		Title:          "Critical DMARC failure rate",
		Message:        "Failure rate 30.0% exceeds threshold 25.0%",
		Domain:         "example.com",
		CurrentValue:   30.0,
		ThresholdValue: 25.0,
		Metadata:       map[string]string{"rule": "high-failure-rate"},
		Status:         models.StatusCreated,
		CooldownUntil:  createdAt.Add(time.Hour),
		CreatedAt:      createdAt,
	}
}

func TestAlertHistoryRepository_InsertGet(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	alert := testHistory("fp-insert-get", time.Now().UTC())
	if err := store.AlertHistory().Insert(ctx, alert); err != nil {
		t.Fatalf("insert alert: %v", err)
	}

	got, err := store.AlertHistory().GetByID(ctx, alert.ID)
	if err != nil {
		t.Fatalf("get alert by id: %v", err)
	}
	if got == nil {
		t.Fatal("alert should exist")
	}
	if got.Fingerprint != alert.Fingerprint {
		t.Errorf("fingerprint = %v, want %v", got.Fingerprint, alert.Fingerprint)
	}
	if got.Status != models.StatusCreated {
		t.Errorf("status = %v, want created", got.Status)
	}
	if got.Metadata["rule"] != "high-failure-rate" {
		t.Errorf("metadata = %v, want rule entry", got.Metadata)
	}
	if got.AcknowledgedAt != nil || got.ResolvedAt != nil {
		t.Error("audit timestamps should be nil on a fresh alert")
	}

	got, err = store.AlertHistory().GetByID(ctx, uuid.New().String())
	if err != nil {
		t.Fatalf("get missing alert: %v", err)
	}
	if got != nil {
		t.Error("missing alert should be nil")
	}
}

func TestAlertHistoryRepository_FindRecentByFingerprint(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	old := testHistory("fp-recent", now.Add(-2*time.Hour))
	recent := testHistory("fp-recent", now.Add(-10*time.Minute))
	other := testHistory("fp-other", now)
	for _, a := range []*models.AlertHistory{old, recent, other} {
		if err := store.AlertHistory().Insert(ctx, a); err != nil {
			t.Fatalf("insert alert: %v", err)
		}
	}

	// Only the alert inside the window comes back, and it is the newest one.
	got, err := store.AlertHistory().FindRecentByFingerprint(ctx, "fp-recent", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("find recent: %v", err)
	}
	if got == nil {
		t.Fatal("recent alert should be found")
	}
	if got.ID != recent.ID {
		t.Errorf("id = %v, want %v", got.ID, recent.ID)
	}

	// Nothing inside a narrow window
	got, err = store.AlertHistory().FindRecentByFingerprint(ctx, "fp-recent", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("find recent narrow: %v", err)
	}
	if got != nil {
		t.Error("no alert expected inside narrow window")
	}
}

func TestAlertHistoryRepository_ListFilters(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	a := testHistory("fp-list-a", now.Add(-3*time.Minute))
	b := testHistory("fp-list-b", now.Add(-2*time.Minute))
	b.Type = models.AlertTypeVolumeSpike
	b.Domain = "other.com"
	c := testHistory("fp-list-c", now.Add(-time.Minute))
	for _, alert := range []*models.AlertHistory{a, b, c} {
		store.AlertHistory().Insert(ctx, alert)
	}
	store.AlertHistory().Resolve(ctx, c.ID, "ops", "", now)

	// Unfiltered, newest first
	alerts, total, err := store.AlertHistory().List(ctx, HistoryFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if total != 3 || len(alerts) != 3 {
		t.Fatalf("total = %d, len = %d, want 3/3", total, len(alerts))
	}
	if alerts[0].ID != c.ID {
		t.Errorf("first id = %v, want newest %v", alerts[0].ID, c.ID)
	}

	// Pagination keeps the full count
	alerts, total, err = store.AlertHistory().List(ctx, HistoryFilter{}, 1, 1)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if total != 3 || len(alerts) != 1 {
		t.Errorf("total = %d, len = %d, want 3/1", total, len(alerts))
	}
	if alerts[0].ID != b.ID {
		t.Errorf("page id = %v, want %v", alerts[0].ID, b.ID)
	}

	// Status filter
	alerts, total, _ = store.AlertHistory().List(ctx, HistoryFilter{Status: models.StatusResolved}, 10, 0)
	if total != 1 || len(alerts) != 1 || alerts[0].ID != c.ID {
		t.Errorf("status filter returned %d/%d", total, len(alerts))
	}

	// Type and domain filters
	alerts, total, _ = store.AlertHistory().List(ctx, HistoryFilter{Type: models.AlertTypeVolumeSpike}, 10, 0)
	if total != 1 || alerts[0].ID != b.ID {
		t.Errorf("type filter returned %d", total)
	}
	alerts, total, _ = store.AlertHistory().List(ctx, HistoryFilter{Domain: "other.com"}, 10, 0)
	if total != 1 || alerts[0].ID != b.ID {
		t.Errorf("domain filter returned %d", total)
	}
}

func TestAlertHistoryRepository_AcknowledgeResolve(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	alert := testHistory("fp-lifecycle", now)
	store.AlertHistory().Insert(ctx, alert)

	// Acknowledge a created alert
	ok, err := store.AlertHistory().Acknowledge(ctx, alert.ID, "alice", "looking into it", now)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !ok {
		t.Fatal("acknowledge should transition a created alert")
	}

	got, _ := store.AlertHistory().GetByID(ctx, alert.ID)
	if got.Status != models.StatusAcknowledged {
		t.Errorf("status = %v, want acknowledged", got.Status)
	}
	if got.AcknowledgedBy != "alice" || got.AcknowledgedAt == nil {
		t.Errorf("audit fields not set: by=%v at=%v", got.AcknowledgedBy, got.AcknowledgedAt)
	}

	// Acknowledging twice fails the status guard
	ok, err = store.AlertHistory().Acknowledge(ctx, alert.ID, "bob", "", now)
	if err != nil {
		t.Fatalf("second acknowledge: %v", err)
	}
	if ok {
		t.Error("second acknowledge should not match any row")
	}
	got, _ = store.AlertHistory().GetByID(ctx, alert.ID)
	if got.AcknowledgedBy != "alice" {
		t.Errorf("acknowledged_by = %v, want alice untouched", got.AcknowledgedBy)
	}

	// Resolve an acknowledged alert
	ok, err = store.AlertHistory().Resolve(ctx, alert.ID, "alice", "fixed SPF record", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ok {
		t.Fatal("resolve should transition an acknowledged alert")
	}
	got, _ = store.AlertHistory().GetByID(ctx, alert.ID)
	if got.Status != models.StatusResolved {
		t.Errorf("status = %v, want resolved", got.Status)
	}
	if got.ResolvedNote != "fixed SPF record" {
		t.Errorf("resolved_note = %v", got.ResolvedNote)
	}

	// Resolved is terminal
	ok, _ = store.AlertHistory().Resolve(ctx, alert.ID, "bob", "", now)
	if ok {
		t.Error("resolving a resolved alert should not match any row")
	}
	ok, _ = store.AlertHistory().Acknowledge(ctx, alert.ID, "bob", "", now)
	if ok {
		t.Error("acknowledging a resolved alert should not match any row")
	}
}

func TestAlertHistoryRepository_ResolveSkipsAcknowledge(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	alert := testHistory("fp-skip-ack", now)
	store.AlertHistory().Insert(ctx, alert)

	// created -> resolved directly is a legal transition
	ok, err := store.AlertHistory().Resolve(ctx, alert.ID, "ops", "", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ok {
		t.Fatal("resolve should transition a created alert")
	}

	got, _ := store.AlertHistory().GetByID(ctx, alert.ID)
	if got.AcknowledgedAt != nil {
		t.Error("acknowledged_at should stay nil when acknowledge was skipped")
	}
}

func TestAlertHistoryRepository_UpdateNotification(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	alert := testHistory("fp-notify", now)
	store.AlertHistory().Insert(ctx, alert)

	err := store.AlertHistory().UpdateNotification(ctx, alert.ID, true, []string{"teams", "email"}, now)
	if err != nil {
		t.Fatalf("update notification: %v", err)
	}

	got, _ := store.AlertHistory().GetByID(ctx, alert.ID)
	if !got.NotificationSent {
		t.Error("notification_sent should be true")
	}
	if len(got.NotificationChannels) != 2 || got.NotificationChannels[0] != "teams" {
		t.Errorf("channels = %v, want [teams email]", got.NotificationChannels)
	}
	if got.NotificationSentAt == nil {
		t.Error("notification_sent_at should be set")
	}
}
