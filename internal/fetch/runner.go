// Package fetch pulls candidates from every configured source and feeds them
// through the ingestion pipeline.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feedbackdesk/internal/ingest"
)

// Source produces feedback candidates created at or after since.
type Source interface {
	Name() string
	Fetch(ctx context.Context, since time.Time) ([]ingest.Candidate, error)
}

type Ingester interface {
	Run(ctx context.Context, origin string, candidates []ingest.Candidate) (ingest.Result, error)
}

// FetchResult tracks what one fetch pass saw and what ingestion made of it.
type FetchResult struct {
	TotalFetched int            `json:"totalFetched"`
	PerSource    map[string]int `json:"perSource"`
	Ingest       ingest.Result  `json:"ingest"`
	Errors       []string       `json:"errors,omitempty"`
}

var ErrNoSources = errors.New("no feedback sources are configured")

type Runner struct {
	sources  []Source
	ingester Ingester
	lookback time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewRunner(sources []Source, ingester Ingester, lookback time.Duration, log *slog.Logger) *Runner {
	return &Runner{sources: sources, ingester: ingester, lookback: lookback, log: log, now: time.Now}
}

func (r *Runner) Configured() bool {
	return len(r.sources) > 0
}

// Run fetches every source in turn. A failing source is recorded and the
// others still run; the pass only fails when every source failed or
// ingestion itself failed.
func (r *Runner) Run(ctx context.Context) (FetchResult, error) {
	if !r.Configured() {
		return FetchResult{}, ErrNoSources
	}
	since := r.now().Add(-r.lookback)
	r.log.Info("fetch started", "since", since.UTC().Format(time.RFC3339), "sources", len(r.sources))

	result := FetchResult{PerSource: map[string]int{}}
	var candidates []ingest.Candidate
	for _, src := range r.sources {
		got, err := src.Fetch(ctx, since)
		if err != nil {
			r.log.Warn("fetch source failed", "source", src.Name(), "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}
		result.PerSource[src.Name()] = len(got)
		result.TotalFetched += len(got)
		candidates = append(candidates, got...)
	}

	if len(result.Errors) == len(r.sources) {
		return result, fmt.Errorf("all fetches failed: %s", strings.Join(result.Errors, "; "))
	}

	res, err := r.ingester.Run(ctx, "fetch", candidates)
	if err != nil {
		return result, fmt.Errorf("ingest fetched feedback: %w", err)
	}
	result.Ingest = res
	return result, nil
}

// FormatFetchSummary returns a human-readable summary of a FetchResult.
func FormatFetchSummary(result FetchResult) string {
	if len(result.Errors) > 0 && result.TotalFetched == 0 && result.Ingest.Received == 0 {
		return fmt.Sprintf("Error fetching feedback:\n%s", strings.Join(result.Errors, "\n"))
	}

	var msg string
	if result.Ingest.Ingested == 0 {
		msg = fmt.Sprintf("Found %d feedback items, none new", result.TotalFetched)
		if result.Ingest.Skipped > 0 {
			msg += fmt.Sprintf(" (%d already tracked)", result.Ingest.Skipped)
		}
		msg += "."
	} else {
		parts := []string{fmt.Sprintf("%d new", result.Ingest.Ingested)}
		if result.Ingest.Skipped > 0 {
			parts = append(parts, fmt.Sprintf("%d already tracked", result.Ingest.Skipped))
		}
		msg = fmt.Sprintf("Fetched %d feedback items: %s.", result.TotalFetched, strings.Join(parts, ", "))
	}
	if result.Ingest.Analyzed > 0 || result.Ingest.AnalysisFailed > 0 {
		msg += fmt.Sprintf(" Analyzed %d, %d failed.", result.Ingest.Analyzed, result.Ingest.AnalysisFailed)
	}
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
	}
	return msg
}
