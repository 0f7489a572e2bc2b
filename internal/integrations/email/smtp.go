// Package email sends Markdown documents as multipart e-mail over SMTP.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type Mailer struct {
	cfg      Config
	renderer *Renderer
	send     func(m *gomail.Message) error
	log      *slog.Logger
}

func NewMailer(cfg Config, log *slog.Logger) *Mailer {
	m := &Mailer{cfg: cfg, renderer: NewRenderer(), log: log}
	if cfg.Host != "" {
		dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		m.send = func(msg *gomail.Message) error { return dialer.DialAndSend(msg) }
	}
	return m
}

func (m *Mailer) Configured() bool {
	return m.send != nil && m.cfg.From != "" && len(m.cfg.To) > 0
}

// SendMarkdown renders markdown and sends it to every configured recipient
// as text/plain with a text/html alternative.
func (m *Mailer) SendMarkdown(ctx context.Context, subject, markdown string) error {
	if !m.Configured() {
		m.log.Info("smtp not configured, skipping email", "subject", subject)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	htmlBody, err := m.renderer.HTML(markdown)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", Plain(markdown))
	msg.AddAlternative("text/html", htmlBody)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.log.Info("email sent", "subject", subject, "recipients", len(m.cfg.To))
	return nil
}
