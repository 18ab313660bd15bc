package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gcswan/ding/internal/domain"
)

// WebhookChannel posts a Teams-style text card to the owner's chat webhook.
type WebhookChannel struct {
	defaultURL string
	client     *http.Client
}

func NewWebhookChannel(defaultURL string) *WebhookChannel {
	return &WebhookChannel{
		defaultURL: defaultURL,
		client:     &http.Client{},
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, contact domain.OwnerContact, event domain.DingEvent) error {
	target := contact.WebhookURL
	if target == "" {
		target = w.defaultURL
	}
	if target == "" {
		return ErrNoTarget
	}

	payload, err := json.Marshal(map[string]string{"text": webhookText(event)})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func webhookText(event domain.DingEvent) string {
	device := event.VisitorDeviceID
	if device == "" {
		device = "unknown"
	}

	lines := []string{
		"**New Ding Request**",
		"- Session: " + event.SessionID,
		"- Device: " + device,
	}
	if event.VisitorLocation != "" {
		lines = append(lines, "- Location: "+event.VisitorLocation)
	}
	lines = append(lines, "Respond in the Ding console to accept or decline.")
	return strings.Join(lines, "\n")
}
