package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// WebhookConfig holds generic webhook configuration.
type WebhookConfig struct {
	URL     string            // Target URL for the POST request
	Headers map[string]string // Extra headers, e.g. an Authorization token
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("URL must be http or https")
	}
	return nil
}

// WebhookNotifier POSTs alerts as JSON to an arbitrary endpoint, for
// integrations DMARCWatch does not know about (PagerDuty bridges,
// ticketing systems, automation hooks).
type WebhookNotifier struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(config WebhookConfig) (*WebhookNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}

	return &WebhookNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns "webhook".
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// webhookPayload is the JSON body POSTed to the endpoint.
type webhookPayload struct {
	ID             string            `json:"id"`
	Type           models.AlertType  `json:"alert_type"`
	Severity       models.Severity   `json:"severity"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Domain         string            `json:"domain,omitempty"`
	CurrentValue   float64           `json:"current_value"`
	ThresholdValue float64           `json:"threshold_value"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Send POSTs the alert to the configured endpoint.
func (w *WebhookNotifier) Send(ctx context.Context, n *Notification) error {
	payload := webhookPayload{
		ID:             n.ID,
		Type:           n.Type,
		Severity:       n.Severity,
		Title:          n.Title,
		Message:        n.Message,
		Domain:         n.Domain,
		CurrentValue:   n.CurrentValue,
		ThresholdValue: n.ThresholdValue,
		Metadata:       n.Metadata,
		Timestamp:      n.Timestamp,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close is a no-op for webhook notifier.
func (w *WebhookNotifier) Close() error {
	return nil
}
