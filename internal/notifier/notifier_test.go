package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// fakeNotifier is a test double that records sends.
type fakeNotifier struct {
	name   string
	mu     sync.Mutex
	sent   []*Notification
	err    error
	delay  time.Duration
	closed bool
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(ctx context.Context, n *Notification) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testAlert() *models.AlertHistory {
	return &models.AlertHistory{
		ID:             "alert-1",
		Type:           models.AlertTypeFailureRate,
		Severity:       models.SeverityCritical,
		Fingerprint:    "fp",
		Title:          "Critical DMARC failure rate for example.com",
		Message:        "Failure rate 30.0% exceeds threshold 25.0%",
		Domain:         "example.com",
		CurrentValue:   30.0,
		ThresholdValue: 25.0,
		Metadata:       map[string]string{"rule": "high-failure-rate"},
		Status:         models.StatusCreated,
		CreatedAt:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestFromAlert(t *testing.T) {
	alert := testAlert()
	n := FromAlert(alert)

	if n.ID != alert.ID || n.Type != alert.Type || n.Severity != alert.Severity {
		t.Errorf("identity fields not carried over: %+v", n)
	}
	if n.CurrentValue != 30.0 || n.ThresholdValue != 25.0 {
		t.Errorf("values = %v/%v", n.CurrentValue, n.ThresholdValue)
	}
	if !n.Timestamp.Equal(alert.CreatedAt) {
		t.Errorf("timestamp = %v, want created_at", n.Timestamp)
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	d := NewDispatcherWithOptions(RateLimitConfig{Enabled: false}, time.Second)
	defer d.Close()

	teams := &fakeNotifier{name: "teams"}
	email := &fakeNotifier{name: "email"}
	d.Register(teams)
	d.Register(email)

	delivered, err := d.Dispatch(context.Background(), testAlert(), []string{"teams", "email"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(delivered) != 2 || delivered[0] != "teams" || delivered[1] != "email" {
		t.Errorf("delivered = %v, want [teams email] in request order", delivered)
	}
	if teams.sentCount() != 1 || email.sentCount() != 1 {
		t.Errorf("send counts = %d/%d, want 1/1", teams.sentCount(), email.sentCount())
	}
}

func TestDispatcher_PartialFailure(t *testing.T) {
	d := NewDispatcherWithOptions(RateLimitConfig{Enabled: false}, time.Second)
	defer d.Close()

	teams := &fakeNotifier{name: "teams", err: errors.New("webhook 500")}
	email := &fakeNotifier{name: "email"}
	d.Register(teams)
	d.Register(email)

	delivered, err := d.Dispatch(context.Background(), testAlert(), []string{"teams", "email"})
	if err == nil {
		t.Fatal("expected aggregated error for the failing channel")
	}
	if !strings.Contains(err.Error(), "teams") {
		t.Errorf("error %v should name the failing channel", err)
	}
	// The healthy channel still delivered
	if len(delivered) != 1 || delivered[0] != "email" {
		t.Errorf("delivered = %v, want [email]", delivered)
	}
}

func TestDispatcher_UnknownChannelSkipped(t *testing.T) {
	d := NewDispatcherWithOptions(RateLimitConfig{Enabled: false}, time.Second)
	defer d.Close()

	email := &fakeNotifier{name: "email"}
	d.Register(email)

	delivered, err := d.Dispatch(context.Background(), testAlert(), []string{"pager", "email"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "email" {
		t.Errorf("delivered = %v, want [email]", delivered)
	}
}

func TestDispatcher_NoChannels(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	delivered, err := d.Dispatch(context.Background(), testAlert(), nil)
	if err != nil || delivered != nil {
		t.Errorf("empty dispatch = %v, %v, want nil, nil", delivered, err)
	}
}

func TestDispatcher_ChannelTimeout(t *testing.T) {
	d := NewDispatcherWithOptions(RateLimitConfig{Enabled: false}, 50*time.Millisecond)
	defer d.Close()

	slow := &fakeNotifier{name: "teams", delay: 500 * time.Millisecond}
	fast := &fakeNotifier{name: "email"}
	d.Register(slow)
	d.Register(fast)

	start := time.Now()
	delivered, err := d.Dispatch(context.Background(), testAlert(), []string{"teams", "email"})
	if err == nil {
		t.Fatal("expected the slow channel to time out")
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("dispatch took %v, the timeout should have cut the slow channel off", elapsed)
	}
	if len(delivered) != 1 || delivered[0] != "email" {
		t.Errorf("delivered = %v, want the fast channel only", delivered)
	}
}

func TestDispatcher_RateLimited(t *testing.T) {
	d := NewDispatcherWithOptions(RateLimitConfig{MaxPerWindow: 2, Window: time.Minute, Enabled: true}, time.Second)
	defer d.Close()

	email := &fakeNotifier{name: "email"}
	d.Register(email)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(ctx, testAlert(), []string{"email"}); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}

	delivered, err := d.Dispatch(ctx, testAlert(), []string{"email"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if delivered != nil {
		t.Errorf("delivered = %v, want nil when rate limited", delivered)
	}
	if email.sentCount() != 2 {
		t.Errorf("sends = %d, want 2", email.sentCount())
	}
	if d.RateLimitStats().Dropped != 1 {
		t.Errorf("dropped = %d, want 1", d.RateLimitStats().Dropped)
	}
}

func TestDispatcher_RateLimitRefundOnTotalFailure(t *testing.T) {
	d := NewDispatcherWithOptions(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: true}, time.Second)
	defer d.Close()

	email := &fakeNotifier{name: "email", err: errors.New("smtp down")}
	d.Register(email)

	ctx := context.Background()
	if _, err := d.Dispatch(ctx, testAlert(), []string{"email"}); err == nil {
		t.Fatal("expected the failed fanout to error")
	}
	if got := d.RateLimitStats().CurrentCount; got != 0 {
		t.Errorf("current count = %d, want 0 after the refund", got)
	}

	// The refunded slot lets the retry through once the channel recovers
	email.mu.Lock()
	email.err = nil
	email.mu.Unlock()
	delivered, err := d.Dispatch(ctx, testAlert(), []string{"email"})
	if err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "email" {
		t.Errorf("delivered = %v, want [email]", delivered)
	}
}

func TestDispatcher_RateLimitHeldOnPartialDelivery(t *testing.T) {
	d := NewDispatcherWithOptions(RateLimitConfig{MaxPerWindow: 5, Window: time.Minute, Enabled: true}, time.Second)
	defer d.Close()

	teams := &fakeNotifier{name: "teams", err: errors.New("webhook 500")}
	email := &fakeNotifier{name: "email"}
	d.Register(teams)
	d.Register(email)

	if _, err := d.Dispatch(context.Background(), testAlert(), []string{"teams", "email"}); err == nil {
		t.Fatal("expected aggregated error for the failing channel")
	}
	if got := d.RateLimitStats().CurrentCount; got != 1 {
		t.Errorf("current count = %d, want the slot kept for a partial delivery", got)
	}
}

func TestDispatcher_RegisterUnregister(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	email := &fakeNotifier{name: "email"}
	d.Register(email)

	if _, ok := d.Get("email"); !ok {
		t.Error("registered notifier should be retrievable")
	}
	if got := d.Channels(); len(got) != 1 {
		t.Errorf("channels = %v, want 1", got)
	}

	d.Unregister("email")
	if _, ok := d.Get("email"); ok {
		t.Error("unregistered notifier should be gone")
	}
}

func TestDispatcher_Close(t *testing.T) {
	d := NewDispatcher()

	email := &fakeNotifier{name: "email"}
	teams := &fakeNotifier{name: "teams"}
	d.Register(email)
	d.Register(teams)

	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !email.closed || !teams.closed {
		t.Error("close should reach every notifier")
	}
	if len(d.Channels()) != 0 {
		t.Error("close should clear the registry")
	}
}
