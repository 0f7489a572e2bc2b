// Package scheduler runs jobs on 5-field cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse validates a standard 5-field expression (minute hour day-of-month
// month day-of-week), e.g. "0 9 * * 1-5" for weekdays at 9am.
func Parse(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

type Job func(ctx context.Context) error

// Start runs job at every fire time of expr in loc until ctx is cancelled.
// An empty expression disables the job. Runs never overlap.
func Start(ctx context.Context, name, expr string, loc *time.Location, job Job, log *slog.Logger) error {
	if strings.TrimSpace(expr) == "" {
		log.Info("schedule disabled", "job", name)
		return nil
	}
	sched, err := Parse(expr)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	log.Info("job scheduled", "job", name, "cron", expr)

	go func() {
		for {
			now := time.Now().In(loc)
			next := sched.Next(now)
			log.Debug("next run", "job", name, "at", next.Format("Mon Jan 2 15:04"), "in", next.Sub(now).Round(time.Minute))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Info("scheduler stopped", "job", name)
				return
			case <-timer.C:
			}

			started := time.Now()
			if err := job(ctx); err != nil {
				log.Error("scheduled job failed", "job", name, "error", err)
				continue
			}
			log.Info("scheduled job done", "job", name, "elapsed", time.Since(started).Round(time.Millisecond))
		}
	}()
	return nil
}
