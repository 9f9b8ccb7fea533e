package alerting

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmarcwatch/dmarcwatch/internal/metrics"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/storage"
)

// NotificationSender delivers a fired alert to the named channels and
// returns the channels that succeeded. Implemented by notifier.Dispatcher.
type NotificationSender interface {
	Dispatch(ctx context.Context, alert *models.AlertHistory, channels []string) ([]string, error)
}

// CreateRequest carries everything needed to fire one alert.
type CreateRequest struct {
	Type           models.AlertType  `json:"type"`
	Severity       models.Severity   `json:"severity"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Domain         string            `json:"domain"`
	CurrentValue   float64           `json:"current_value"`
	ThresholdValue float64           `json:"threshold_value"`
	Metadata       map[string]string `json:"metadata"`

	// Channels overrides notification routing. Nil means: use the notify
	// flags of the first enabled rule of this type, falling back to the
	// default channels when no rule matches.
	Channels []string `json:"channels"`

	// Force bypasses both suppression windows and cooldown deduplication.
	// The forced alert still opens a fresh window, so later unforced
	// alerts dedup against it.
	Force bool `json:"force"`

	// rule is the evaluated rule when the request came from the evaluator;
	// it carries the cooldown override and notify flags.
	rule *models.AlertRule
}

// defaultChannels is the routing used when no rule supplies notify flags.
var defaultChannels = []string{"teams", "email"}

// Manager owns the alert lifecycle: creation with suppression and
// cooldown checks, notification fanout, and status transitions.
type Manager struct {
	store  storage.Storage
	sups   *SuppressionMatcher
	sender NotificationSender

	// locks serializes create flows per fingerprint so the cooldown
	// check-then-insert cannot race against itself.
	mu    sync.Mutex
	locks map[string]*fpLock

	// now is replaceable in tests.
	now func() time.Time
}

type fpLock struct {
	sync.Mutex
	refs int
}

// NewManager creates an alert lifecycle manager. sender may be nil, in
// which case alerts are created without notification fanout.
func NewManager(store storage.Storage, sender NotificationSender) *Manager {
	return &Manager{
		store:  store,
		sups:   NewSuppressionMatcher(store.Suppressions()),
		sender: sender,
		locks:  make(map[string]*fpLock),
		now:    time.Now,
	}
}

// lockFingerprint acquires the per-fingerprint mutex, creating it on
// first use. The returned func releases it and drops the map entry when
// no other goroutine is waiting.
func (m *Manager) lockFingerprint(fp string) func() {
	m.mu.Lock()
	l, ok := m.locks[fp]
	if !ok {
		l = &fpLock{}
		m.locks[fp] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, fp)
		}
		m.mu.Unlock()
	}
}

// Create fires an alert unless a suppression window or an unexpired
// cooldown stops it. A nil alert with nil error means the alert was
// intentionally not created.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*models.AlertHistory, error) {
	if _, ok := models.ParseAlertType(string(req.Type)); !ok {
		return nil, fmt.Errorf("unknown alert type %q", req.Type)
	}
	now := m.now().UTC()

	fp := Fingerprint(req.Type, req.Domain, req.ThresholdValue)
	unlock := m.lockFingerprint(fp)
	defer unlock()

	if !req.Force {
		suppressed, err := m.sups.IsSuppressed(ctx, req.Type, req.Severity, req.Domain, now)
		if err != nil {
			return nil, err
		}
		if suppressed {
			metrics.EngineAlertsSuppressedTotal.Inc()
			return nil, nil
		}
	}

	// Manual creates carry no rule; the cooldown override and notify
	// flags of the matching enabled rule still apply to them.
	rule := req.rule
	if rule == nil {
		rule = m.matchingRule(ctx, req.Type, req.Domain)
	}

	cooldown := CooldownFor(req.Type, rule)
	if !req.Force {
		// Any row inside the window dedups; the recency query is the
		// single dedup condition.
		recent, err := m.store.AlertHistory().FindRecentByFingerprint(ctx, fp, now.Add(-cooldown))
		if err != nil {
			return nil, fmt.Errorf("check cooldown: %w", err)
		}
		if recent != nil {
			metrics.EngineAlertsDedupedTotal.Inc()
			return nil, nil
		}
	}

	title, message := req.Title, req.Message
	if title == "" && message == "" {
		title, message = AlertText(req.Type, req.Domain, req.CurrentValue, req.ThresholdValue)
	}

	alert := &models.AlertHistory{
		ID:             uuid.New().String(),
		Type:           req.Type,
		Severity:       req.Severity,
		Fingerprint:    fp,
		Title:          title,
		Message:        message,
		Domain:         req.Domain,
		CurrentValue:   req.CurrentValue,
		ThresholdValue: req.ThresholdValue,
		Metadata:       req.Metadata,
		Status:         models.StatusCreated,
		// Dedup keys on created_at; the stamp records when the window
		// closes for anyone reading the row.
		CooldownUntil: now.Add(cooldown),
		CreatedAt:     now,
	}

	if err := m.store.AlertHistory().Insert(ctx, alert); err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}

	metrics.EngineAlertsCreatedTotal.WithLabelValues(string(req.Type), string(req.Severity)).Inc()
	if req.Force {
		metrics.EngineAlertsForcedTotal.Inc()
	}

	m.notify(ctx, alert, resolveChannels(req, rule))
	return alert, nil
}

// matchingRule finds the first enabled rule of the given type whose
// domain pattern covers the domain. Lookup failures are logged and
// treated as no match.
func (m *Manager) matchingRule(ctx context.Context, t models.AlertType, domain string) *models.AlertRule {
	rules, err := m.store.Rules().ListEnabledByType(ctx, t)
	if err != nil {
		log.Printf("warning: look up rules for %s: %v", t, err)
		return nil
	}
	for _, rule := range rules {
		if rule.MatchesDomain(domain) {
			return rule
		}
	}
	return nil
}

// resolveChannels picks the notification channels for a create request:
// the explicit override, then the matched rule's notify flags, then the
// defaults when no rule covers the alert.
func resolveChannels(req CreateRequest, rule *models.AlertRule) []string {
	if req.Channels != nil {
		return req.Channels
	}
	if rule != nil {
		return rule.Notify.EnabledChannels()
	}
	return defaultChannels
}

// notify runs the best-effort notification fanout and records the
// outcome. Delivery failures never fail alert creation.
func (m *Manager) notify(ctx context.Context, alert *models.AlertHistory, channels []string) {
	if m.sender == nil || len(channels) == 0 {
		return
	}

	delivered, err := m.sender.Dispatch(ctx, alert, channels)
	if err != nil {
		log.Printf("warning: notification fanout for alert %s: %v", alert.ID, err)
	}

	sentAt := m.now().UTC()
	alert.NotificationSent = len(delivered) > 0
	alert.NotificationChannels = delivered
	if alert.NotificationSent {
		alert.NotificationSentAt = &sentAt
	}

	if err := m.store.AlertHistory().UpdateNotification(ctx, alert.ID, alert.NotificationSent, delivered, sentAt); err != nil {
		log.Printf("warning: record notification outcome for alert %s: %v", alert.ID, err)
	}
}

// Get returns an alert by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.AlertHistory, error) {
	alert, err := m.store.AlertHistory().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, &NotFoundError{ID: id}
	}
	return alert, nil
}

// List returns alerts matching the filter, newest first, plus the total
// match count for pagination.
func (m *Manager) List(ctx context.Context, filter storage.HistoryFilter, limit, offset int) ([]*models.AlertHistory, int64, error) {
	return m.store.AlertHistory().List(ctx, filter, limit, offset)
}

// Acknowledge transitions an alert from created to acknowledged and
// records who did it.
func (m *Manager) Acknowledge(ctx context.Context, id, userID, note string) (*models.AlertHistory, error) {
	return m.transition(ctx, id, "acknowledge", func(at time.Time) (bool, error) {
		return m.store.AlertHistory().Acknowledge(ctx, id, userID, note, at)
	})
}

// Resolve transitions an alert from created or acknowledged to resolved.
func (m *Manager) Resolve(ctx context.Context, id, userID, note string) (*models.AlertHistory, error) {
	return m.transition(ctx, id, "resolve", func(at time.Time) (bool, error) {
		return m.store.AlertHistory().Resolve(ctx, id, userID, note, at)
	})
}

// transition runs a guarded status update and maps the failure modes:
// missing row to NotFoundError, guard miss to InvalidStateError.
func (m *Manager) transition(ctx context.Context, id, op string, update func(at time.Time) (bool, error)) (*models.AlertHistory, error) {
	at := m.now().UTC()
	ok, err := update(at)
	if err != nil {
		return nil, err
	}
	if ok {
		return m.Get(ctx, id)
	}

	// The guarded update matched nothing: distinguish absent from a
	// disallowed status.
	alert, err := m.store.AlertHistory().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, &NotFoundError{ID: id}
	}
	return nil, &InvalidStateError{ID: id, Status: alert.Status, Op: op}
}

// BulkAcknowledge acknowledges each id independently. One bad id never
// aborts the batch; its error is collected instead.
func (m *Manager) BulkAcknowledge(ctx context.Context, ids []string, userID, note string) *models.BulkResult {
	return m.bulk(ids, func(id string) error {
		_, err := m.Acknowledge(ctx, id, userID, note)
		return err
	})
}

// BulkResolve resolves each id independently, same isolation as
// BulkAcknowledge.
func (m *Manager) BulkResolve(ctx context.Context, ids []string, userID, note string) *models.BulkResult {
	return m.bulk(ids, func(id string) error {
		_, err := m.Resolve(ctx, id, userID, note)
		return err
	})
}

func (m *Manager) bulk(ids []string, op func(id string) error) *models.BulkResult {
	result := &models.BulkResult{}
	for _, id := range ids {
		if err := op(id); err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.SuccessCount++
	}
	return result
}
