// Package notify delivers reminder messages to the chat front-end.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Choice is one button of a binary prompt. Data is echoed back by the
// front-end when the user presses it.
type Choice struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Message is a single outbound notification.
type Message struct {
	OwnerID string   `json:"owner_id"`
	Kind    string   `json:"kind"`
	Text    string   `json:"text"`
	Choices []Choice `json:"choices,omitempty"`
}

// Message kinds, used for logging and metrics labels.
const (
	KindHomeworkPrompt   = "homework_prompt"
	KindUpcomingLesson   = "upcoming_lesson"
	KindDailyDigest      = "daily_digest"
	KindDeadlineReminder = "deadline_reminder"
)

// Notifier sends a message to its owner.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log. It is the default driver for
// local runs.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

// Send implements Notifier.
func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Sugar().Infow("notification", "owner_id", msg.OwnerID, "kind", msg.Kind, "text", msg.Text, "choices", len(msg.Choices))
	return nil
}

// WebhookNotifier posts messages as JSON to the chat front-end.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier constructs a WebhookNotifier.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

// Send implements Notifier. Any status outside 2xx is an error.
func (n *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	if n.url == "" {
		return fmt.Errorf("webhook url not configured")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
