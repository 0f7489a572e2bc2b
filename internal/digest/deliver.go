package digest

import (
	"context"
	"log/slog"
)

type TextPoster interface {
	Configured() bool
	PostText(ctx context.Context, text string) error
}

type Mailer interface {
	Configured() bool
	SendMarkdown(ctx context.Context, subject, markdown string) error
}

// Delivery records which channels accepted the digest.
type Delivery struct {
	Slack bool `json:"slack"`
	Email bool `json:"email"`
}

// Deliverer sends a report to every configured channel. Failures are logged
// and never returned.
type Deliverer struct {
	slack  TextPoster
	mailer Mailer
	log    *slog.Logger
}

func NewDeliverer(slack TextPoster, mailer Mailer, log *slog.Logger) *Deliverer {
	return &Deliverer{slack: slack, mailer: mailer, log: log}
}

func (d *Deliverer) Deliver(ctx context.Context, r Report) Delivery {
	var out Delivery
	log := d.log.With("window_from", r.Window.From, "window_to", r.Window.To)

	if d.slack != nil && d.slack.Configured() {
		if err := d.slack.PostText(ctx, FormatSlack(r)); err != nil {
			log.Error("slack digest failed", "error", err)
		} else {
			out.Slack = true
		}
	} else {
		log.Info("slack webhook not set, skipping slack digest")
	}

	if d.mailer != nil && d.mailer.Configured() {
		subject := "Daily Feedback Digest " + r.Window.To.Format("2006-01-02")
		if err := d.mailer.SendMarkdown(ctx, subject, FormatMarkdown(r)); err != nil {
			log.Error("email digest failed", "error", err)
		} else {
			out.Email = true
		}
	}

	log.Info("digest delivered",
		"analyzed", r.Totals.Analyzed,
		"high_severity", r.Totals.HighSeverity,
		"slack", out.Slack,
		"email", out.Email,
	)
	return out
}
