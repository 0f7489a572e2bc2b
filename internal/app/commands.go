package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"feedbackdesk/internal/digest"
	"feedbackdesk/internal/domain"
	"feedbackdesk/internal/fetch"
	"feedbackdesk/internal/storage/sqlite"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withStore(func(ctx context.Context, store *sqlite.Store, cmd *cobra.Command) error {
				return store.Migrate(ctx)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: withStore(func(ctx context.Context, store *sqlite.Store, cmd *cobra.Command) error {
				return store.MigrateDown(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: withStore(func(ctx context.Context, store *sqlite.Store, cmd *cobra.Command) error {
				version, err := store.MigrationStatus(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\n", version)
				return nil
			}),
		},
	)
	return cmd
}

// withStore opens the database without migrating it, for schema commands.
func withStore(fn func(ctx context.Context, store *sqlite.Store, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := sqlite.Open(cfg.DBPath, log)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd.Context(), store, cmd)
	}
}

func newIngestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch configured sources once and ingest new feedback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeWithTimeout(c)

			res, err := c.fetcher.Run(cmd.Context())
			if errors.Is(err, fetch.ErrNoSources) {
				return errors.New("no sources configured: set github_repos, gitlab_group_id or feeds")
			}
			fmt.Fprintln(cmd.OutOrStdout(), fetch.FormatFetchSummary(res))
			return err
		},
	}
}

func newDigestCommand() *cobra.Command {
	var (
		hours  float64
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build the digest for the trailing window and deliver it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("hours") {
				hours = float64(cfg.DigestHours)
			}
			c, err := build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeWithTimeout(c)

			if dryRun {
				window := c.digest.Trailing(digest.ClampHours(hours, cfg.DigestHours))
				report, err := c.digest.Build(cmd.Context(), window.From, window.To)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), digest.FormatMarkdown(report))
				return nil
			}
			delivery, err := buildAndDeliver(cmd.Context(), c, hours)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "digest delivered: slack=%t email=%t\n", delivery.Slack, delivery.Email)
			return nil
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", digest.DefaultHours, "Trailing window in hours, fractions allowed (up to 168)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the digest instead of delivering it")
	return cmd
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	var (
		email string
		role  string
	)
	promote := &cobra.Command{
		Use:   "promote",
		Short: "Change a user's role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, ok := domain.ParseRole(strings.ToUpper(role))
			if !ok {
				return fmt.Errorf("invalid role %q: want ADMIN or MEMBER", role)
			}
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SetUserRole(cmd.Context(), email, r); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("no user with email %s", email)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", email, r)
			return nil
		},
	}
	promote.Flags().StringVar(&email, "email", "", "User email")
	promote.Flags().StringVar(&role, "role", string(domain.RoleAdmin), "ADMIN or MEMBER")
	_ = promote.MarkFlagRequired("email")
	cmd.AddCommand(promote)
	return cmd
}

func closeWithTimeout(c *components) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	c.close(ctx)
}
