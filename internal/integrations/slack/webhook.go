package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"feedbackdesk/internal/domain"
)

// Webhook posts plain-text messages to a Slack incoming webhook. With no URL
// configured every post degrades to a log line.
type Webhook struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

func NewWebhook(url string, client *http.Client, log *slog.Logger) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{url: strings.TrimSpace(url), client: client, log: log}
}

func (w *Webhook) Configured() bool {
	return w.url != ""
}

func (w *Webhook) PostText(ctx context.Context, text string) error {
	if !w.Configured() {
		w.log.Info("slack webhook not configured, skipping post", "chars", len(text))
		return nil
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, w.url, w.client, &slack.WebhookMessage{Text: text}); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

// SendAlert delivers a high-severity alert.
func (w *Webhook) SendAlert(ctx context.Context, alert domain.Alert) error {
	if !w.Configured() {
		w.log.Info("high severity feedback (slack webhook not configured)",
			"item_id", alert.FeedbackID, "source", alert.Source, "severity", alert.Severity)
		return nil
	}
	return w.PostText(ctx, FormatAlert(alert))
}

func FormatAlert(alert domain.Alert) string {
	summary := alert.Summary
	if summary == "" {
		summary = "(no summary)"
	}
	return strings.Join([]string{
		"🚨 High severity feedback detected",
		"• ID: " + alert.FeedbackID,
		"• Source: " + alert.Source,
		fmt.Sprintf("• Severity: %d", alert.Severity),
		"• Summary: " + summary,
	}, "\n")
}
