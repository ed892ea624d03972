package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier is the fire-and-forget reporting channel for run outcomes.
// Implementations must never let a delivery failure affect sync correctness.
type Notifier interface {
	Notify(ctx context.Context, channel, text string) error
}

// WebhookNotifier posts {channel, text} messages to a webhook URL
type WebhookNotifier struct {
	client     *http.Client
	webhookURL string
	logger     *logrus.Logger
}

// NewWebhookNotifier creates a notifier with a bounded delivery timeout
func NewWebhookNotifier(webhookURL string, timeout time.Duration, logger *logrus.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client:     &http.Client{Timeout: timeout},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

type message struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// Notify delivers one message at most once. A configured empty URL is a
// silent no-op so deployments without a webhook need no special casing.
func (n *WebhookNotifier) Notify(ctx context.Context, channel, text string) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(message{Channel: channel, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}

	n.logger.WithField("channel", channel).Debug("Notification delivered")
	return nil
}
