// Package notifier provides notification dispatching for alerts.
package notifier

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmarcwatch/dmarcwatch/internal/metrics"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// Notification is the channel-independent view of a fired alert. Keeping
// it here means channel implementations never reach into engine types.
type Notification struct {
	ID             string
	Type           models.AlertType
	Severity       models.Severity
	Title          string
	Message        string
	Domain         string
	CurrentValue   float64
	ThresholdValue float64
	Metadata       map[string]string
	Timestamp      time.Time
}

// FromAlert builds a Notification from a stored alert.
func FromAlert(alert *models.AlertHistory) *Notification {
	return &Notification{
		ID:             alert.ID,
		Type:           alert.Type,
		Severity:       alert.Severity,
		Title:          alert.Title,
		Message:        alert.Message,
		Domain:         alert.Domain,
		CurrentValue:   alert.CurrentValue,
		ThresholdValue: alert.ThresholdValue,
		Metadata:       alert.Metadata,
		Timestamp:      alert.CreatedAt,
	}
}

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the notifier name (e.g., "email", "slack").
	Name() string
	// Send sends an alert notification.
	Send(ctx context.Context, n *Notification) error
	// Close releases any resources.
	Close() error
}

// ErrRateLimited is returned when a notification is dropped due to rate limiting.
var ErrRateLimited = fmt.Errorf("notification rate limited")

// DefaultChannelTimeout bounds each channel's delivery attempt so one
// slow endpoint cannot stall the fanout.
const DefaultChannelTimeout = 5 * time.Second

// Dispatcher fans fired alerts out to the configured channels. Channels
// are independent: each gets its own timeout and its failure never stops
// the others.
type Dispatcher struct {
	mu             sync.RWMutex
	notifiers      map[string]Notifier
	rateLimiter    *RateLimiter
	channelTimeout time.Duration
}

// NewDispatcher creates a dispatcher with default rate limiting and
// per-channel timeout.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		notifiers:      make(map[string]Notifier),
		rateLimiter:    NewRateLimiter(DefaultRateLimitConfig()),
		channelTimeout: DefaultChannelTimeout,
	}
}

// NewDispatcherWithOptions creates a dispatcher with custom rate limit
// configuration and per-channel timeout.
func NewDispatcherWithOptions(rl RateLimitConfig, channelTimeout time.Duration) *Dispatcher {
	if channelTimeout <= 0 {
		channelTimeout = DefaultChannelTimeout
	}
	return &Dispatcher{
		notifiers:      make(map[string]Notifier),
		rateLimiter:    NewRateLimiter(rl),
		channelTimeout: channelTimeout,
	}
}

// Register adds a notifier to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Unregister removes a notifier from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// Channels returns the registered channel names.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.notifiers))
	for name := range d.notifiers {
		names = append(names, name)
	}
	return names
}

// Dispatch sends an alert to the named channels concurrently and returns
// the channels that succeeded. Channels with no registered notifier are
// skipped. The error aggregates per-channel failures; callers treat
// delivery as best-effort, so a partial or even empty success set comes
// back alongside it. Returns ErrRateLimited when the whole notification
// is dropped by the rate limiter; a fanout where nothing delivered
// refunds its rate limit slot.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.AlertHistory, channels []string) ([]string, error) {
	if len(channels) == 0 {
		return nil, nil
	}

	if d.rateLimiter != nil && !d.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	n := FromAlert(alert)

	d.mu.RLock()
	targets := make([]Notifier, 0, len(channels))
	names := make([]string, 0, len(channels))
	for _, name := range channels {
		notifier, ok := d.notifiers[name]
		if !ok {
			log.Printf("warning: no notifier registered for channel %q", name)
			continue
		}
		targets = append(targets, notifier)
		names = append(names, name)
	}
	d.mu.RUnlock()

	// Results indexed by position so delivered keeps the request order.
	errs := make([]error, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			start := time.Now()
			sendCtx, cancel := context.WithTimeout(gctx, d.channelTimeout)
			defer cancel()

			metrics.NotifyAttemptsTotal.WithLabelValues(target.Name()).Inc()
			err := target.Send(sendCtx, n)
			metrics.NotifyDuration.WithLabelValues(target.Name()).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.NotifyFailuresTotal.WithLabelValues(target.Name()).Inc()
				errs[i] = err
			}
			// Never cancel sibling channels.
			return nil
		})
	}
	g.Wait()

	var delivered []string
	var failures []error
	for i, err := range errs {
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", names[i], err))
			continue
		}
		delivered = append(delivered, names[i])
	}

	if len(delivered) == 0 && d.rateLimiter != nil {
		// Nothing went out; give the slot back.
		d.rateLimiter.Release()
	}

	if len(failures) > 0 {
		return delivered, fmt.Errorf("notification errors: %v", failures)
	}
	return delivered, nil
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	if d.rateLimiter == nil {
		return RateLimitStats{}
	}
	return d.rateLimiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
