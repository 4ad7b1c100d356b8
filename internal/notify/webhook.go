// Package notify provides webhook notification delivery.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webhookPayload is the JSON document POSTed to a server's webhook.
type webhookPayload struct {
	Event   Event  `json:"event"`
	Message string `json:"message"`
}

// WebhookNotifier delivers incident notifications to the per-server
// webhook URL configured on the affected server.
type WebhookNotifier struct {
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier with the given delivery
// timeout.
func NewWebhookNotifier(timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
	}
}

// Type returns the channel type identifier.
func (w *WebhookNotifier) Type() string {
	return "webhook"
}

// Notify POSTs the event to the server's webhook URL. Servers without a
// webhook are skipped silently. Any non-2xx response is an error.
func (w *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if event.WebhookURL == nil || *event.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		Event:   event,
		Message: FormatMessage(event),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *event.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range event.WebhookHeaders {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
