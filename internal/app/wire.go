package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"feedbackdesk/internal/config"
	"feedbackdesk/internal/digest"
	"feedbackdesk/internal/fetch"
	"feedbackdesk/internal/httpx"
	"feedbackdesk/internal/ingest"
	"feedbackdesk/internal/integrations/email"
	"feedbackdesk/internal/integrations/feed"
	"feedbackdesk/internal/integrations/github"
	"feedbackdesk/internal/integrations/gitlab"
	"feedbackdesk/internal/integrations/llm"
	"feedbackdesk/internal/integrations/slack"
	"feedbackdesk/internal/logger"
	"feedbackdesk/internal/notify"
	"feedbackdesk/internal/storage/sqlite"
	"feedbackdesk/internal/triage"
)

const notifySendTimeout = 10 * time.Second

// components is everything the commands share, built once from config.
type components struct {
	cfg        config.Config
	log        *slog.Logger
	httpClient *http.Client

	store      *sqlite.Store
	analyzer   *llm.Analyzer
	webhook    *slack.Webhook
	dispatcher *notify.Dispatcher
	triage     *triage.Service
	pipeline   *ingest.Pipeline
	digest     *digest.Builder
	deliverer  *digest.Deliverer
	fetcher    *fetch.Runner
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(log)
	return cfg, log, nil
}

// openStore opens the database and applies pending migrations.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*sqlite.Store, error) {
	store, err := sqlite.Open(cfg.DBPath, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	log.Info("database ready", "path", cfg.DBPath)
	return store, nil
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*components, error) {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	c := &components{
		cfg:        cfg,
		log:        log,
		httpClient: httpx.NewExternalClient(cfg.ExternalHTTPTimeoutSeconds),
		store:      store,
	}

	var glossary *llm.TopicGlossary
	if cfg.LLMTopicGlossaryPath != "" {
		glossary, err = llm.LoadTopicGlossary(cfg.LLMTopicGlossaryPath)
		if err != nil {
			store.Close()
			return nil, err
		}
		log.Info("topic glossary loaded", "path", cfg.LLMTopicGlossaryPath)
	}
	baseURL := cfg.OpenAIBaseURL
	if cfg.LLMProvider == config.ProviderAnthropic {
		baseURL = cfg.AnthropicBaseURL
	}
	c.analyzer, err = llm.New(llm.Options{
		Provider:   cfg.LLMProvider,
		Model:      cfg.LLMModel,
		APIKey:     cfg.LLMAPIKey(),
		BaseURL:    baseURL,
		Timeout:    cfg.LLMTimeout(),
		HTTPClient: c.httpClient,
		Glossary:   glossary,
		Logger:     log.With("component", "llm"),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	if cfg.LLMAPIKey() == "" {
		log.Warn("llm api key not set, analysis will fail", "provider", cfg.LLMProvider)
	}

	c.webhook = slack.NewWebhook(cfg.SlackWebhookURL, c.httpClient, log.With("component", "slack"))
	c.dispatcher = notify.NewDispatcher(c.webhook, cfg.NotifyQueueSize, notifySendTimeout, log.With("component", "notify"))
	c.triage = triage.NewService(store, c.analyzer, c.dispatcher, cfg.LLMConcurrency, log.With("component", "triage"))
	c.pipeline = ingest.NewPipeline(store, c.triage, log.With("component", "ingest"))

	c.digest = digest.NewBuilder(store, cfg.Location)
	mailer := email.NewMailer(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		To:       cfg.DigestEmailTo,
	}, log.With("component", "email"))
	c.deliverer = digest.NewDeliverer(c.webhook, mailer, log.With("component", "digest"))

	c.fetcher = fetch.NewRunner(c.sources(), c.pipeline,
		time.Duration(cfg.FetchLookbackHours)*time.Hour, log.With("component", "fetch"))
	return c, nil
}

func (c *components) sources() []fetch.Source {
	var sources []fetch.Source
	if c.cfg.GitHubConfigured() {
		client := github.NewClient(c.cfg.GitHubToken, "", c.httpClient, c.log.With("component", "github"))
		for _, repo := range c.cfg.GitHubRepos {
			sources = append(sources, github.NewRepoSource(client, repo))
		}
	}
	if c.cfg.GitLabConfigured() {
		sources = append(sources, gitlab.NewGroupSource(c.cfg.GitLabURL, c.cfg.GitLabToken, c.cfg.GitLabGroupID,
			c.cfg.GitLabLabel, c.httpClient, c.log.With("component", "gitlab")))
	}
	for _, f := range c.cfg.Feeds {
		sources = append(sources, feed.NewSource(f.Name, f.URL, c.httpClient, c.log.With("component", "feed")))
	}
	return sources
}

// close drains pending notifications before closing the store.
func (c *components) close(ctx context.Context) {
	if err := c.dispatcher.Close(ctx); err != nil {
		c.log.Warn("notification queue not drained", "error", err)
	}
	stats := c.dispatcher.Stats()
	c.log.Info("notifications", "sent", stats.Sent, "failed", stats.Failed, "dropped", stats.Dropped)
	if err := c.store.Close(); err != nil {
		c.log.Error("close store", "error", err)
	}
}
