package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var gooseOnce sync.Once
var gooseErr error

type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info(fmt.Sprintf(format, v...), "component", "migrate")
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...), "component", "migrate")
}

func setupGoose(log *slog.Logger) error {
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrations)
		gooseErr = goose.SetDialect("sqlite3")
	})
	goose.SetLogger(gooseLogger{log: log})
	return gooseErr
}

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := setupGoose(s.log); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown(ctx context.Context) error {
	if err := setupGoose(s.log); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	if err := goose.DownContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// MigrationStatus logs the state of every migration and returns the current version.
func (s *Store) MigrationStatus(ctx context.Context) (int64, error) {
	if err := setupGoose(s.log); err != nil {
		return 0, fmt.Errorf("configure goose: %w", err)
	}
	if err := goose.StatusContext(ctx, s.db, "migrations"); err != nil {
		return 0, fmt.Errorf("migration status: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, s.db)
	if err != nil {
		return 0, fmt.Errorf("migration version: %w", err)
	}
	return version, nil
}
