package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"feedbackdesk/internal/auth"
	"feedbackdesk/internal/authz"
	"feedbackdesk/internal/digest"
	"feedbackdesk/internal/fetch"
	"feedbackdesk/internal/httpapi"
	"feedbackdesk/internal/ratelimit"
	"feedbackdesk/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background schedulers",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.close(closeCtx)
	}()

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return err
	}
	tokens := auth.NewJWTService(cfg.AuthSecret, cfg.TokenTTL())
	accounts := auth.NewAccounts(c.store, auth.NewBcryptPasswordHasher(cfg.BcryptCost), tokens, log.With("component", "auth"))

	var limiter httpapi.RateLimiter
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, rate limiting disabled", "error", err)
		} else {
			defer client.Close()
			limiter = ratelimit.New(client, cfg.RateLimitPerMinute, time.Minute)
			log.Info("rate limiting enabled", "per_minute", cfg.RateLimitPerMinute)
		}
	}
	if cfg.CronSecret == "" {
		log.Warn("cron_secret not set, cron endpoints are disabled")
	}

	if err := startSchedules(ctx, c); err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	gin.DefaultWriter = io.Discard
	server := httpapi.New(httpapi.Deps{
		Store:           c.store,
		Triage:          c.triage,
		Ingest:          c.pipeline,
		Digest:          c.digest,
		Deliverer:       c.deliverer,
		Accounts:        accounts,
		Tokens:          tokens,
		Enforcer:        enforcer,
		Limiter:         limiter,
		LLM:             c.analyzer,
		CronSecret:      cfg.CronSecret,
		DigestHours:     cfg.DigestHours,
		SlackConfigured: c.webhook.Configured(),
		Logger:          log.With("component", "http"),
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.ListenAddr, "llm_provider", cfg.LLMProvider, "llm_model", cfg.LLMModel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

func startSchedules(ctx context.Context, c *components) error {
	fetchJob := func(ctx context.Context) error {
		res, err := c.fetcher.Run(ctx)
		if err != nil {
			return err
		}
		c.log.Info("scheduled fetch done", "summary", fetch.FormatFetchSummary(res))
		return nil
	}
	if !c.fetcher.Configured() && c.cfg.FetchSchedule != "" {
		c.log.Warn("fetch_schedule set but no sources configured")
	} else if err := scheduler.Start(ctx, "fetch", c.cfg.FetchSchedule, c.cfg.Location, fetchJob, c.log); err != nil {
		return fmt.Errorf("fetch schedule: %w", err)
	}

	digestJob := func(ctx context.Context) error {
		_, err := buildAndDeliver(ctx, c, float64(c.cfg.DigestHours))
		return err
	}
	if err := scheduler.Start(ctx, "digest", c.cfg.DigestSchedule, c.cfg.Location, digestJob, c.log); err != nil {
		return fmt.Errorf("digest schedule: %w", err)
	}
	return nil
}

func buildAndDeliver(ctx context.Context, c *components, hours float64) (digest.Delivery, error) {
	window := c.digest.Trailing(digest.ClampHours(hours, c.cfg.DigestHours))
	report, err := c.digest.Build(ctx, window.From, window.To)
	if err != nil {
		return digest.Delivery{}, err
	}
	return c.deliverer.Deliver(ctx, report), nil
}
