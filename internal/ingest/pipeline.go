// Package ingest turns batches of candidate feedback into stored, analysed
// items.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feedbackdesk/internal/apperr"
	"feedbackdesk/internal/domain"
	"feedbackdesk/internal/triage"
)

type Store interface {
	InsertItems(ctx context.Context, items []domain.FeedbackItem) (int, error)
	FindUnscoredByKeys(ctx context.Context, keys []domain.ItemKey) ([]domain.FeedbackItem, error)
	InsertIngestionLog(ctx context.Context, l domain.IngestionLog) error
}

type Analyzer interface {
	AnalyzeItems(ctx context.Context, items []domain.FeedbackItem) []triage.Outcome
}

// Result summarises one pipeline run.
type Result struct {
	Received       int       `json:"received"`
	Valid          int       `json:"valid"`
	Ingested       int       `json:"ingested"`
	Skipped        int       `json:"skipped"`
	Analyzed       int       `json:"analyzed"`
	AnalysisFailed int       `json:"analysisFailed"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	Message        string    `json:"message,omitempty"`
}

func (r Result) Summary() string {
	return fmt.Sprintf("received=%d, valid=%d, ingested=%d, analyzed=%d, failed=%d",
		r.Received, r.Valid, r.Ingested, r.Analyzed, r.AnalysisFailed)
}

type Pipeline struct {
	store    Store
	analyzer Analyzer
	log      *slog.Logger
	now      func() time.Time
}

func NewPipeline(store Store, analyzer Analyzer, log *slog.Logger) *Pipeline {
	return &Pipeline{store: store, analyzer: analyzer, log: log, now: time.Now}
}

// Run ingests candidates and analyses every submitted item that is still
// unscored. origin labels the run in the ingestion log. Only store failures on
// the insert or lookup steps are returned as errors; analysis failures are
// counted.
func (p *Pipeline) Run(ctx context.Context, origin string, candidates []Candidate) (Result, error) {
	res := Result{Received: len(candidates), StartedAt: p.now().UTC()}
	log := p.log.With("origin", origin, "run_id", runID(res.StartedAt))

	items := p.normalize(candidates, res.StartedAt)
	res.Valid = len(items)

	switch {
	case res.Received == 0:
		res.Message = "No items provided."
	case res.Valid == 0:
		res.Message = "No valid items after validation."
	default:
		if err := p.ingest(ctx, log, items, &res); err != nil {
			return Result{}, err
		}
	}

	res.FinishedAt = p.now().UTC()
	p.writeLog(ctx, log, origin, res)
	log.Info("ingestion finished",
		"received", res.Received,
		"valid", res.Valid,
		"ingested", res.Ingested,
		"analyzed", res.Analyzed,
		"failed", res.AnalysisFailed,
	)
	return res, nil
}

func (p *Pipeline) ingest(ctx context.Context, log *slog.Logger, items []domain.FeedbackItem, res *Result) error {
	inserted, err := p.store.InsertItems(ctx, items)
	if err != nil {
		log.Error("bulk insert failed", "error", err)
		return apperr.Internal("could not store feedback", err)
	}
	res.Ingested = inserted
	res.Skipped = res.Valid - inserted

	keys := make([]domain.ItemKey, len(items))
	for i, item := range items {
		keys[i] = item.Key()
	}
	pending, err := p.store.FindUnscoredByKeys(ctx, keys)
	if err != nil {
		log.Error("unscored lookup failed", "error", err)
		return apperr.Internal("could not load feedback for analysis", err)
	}
	if len(pending) == 0 {
		return nil
	}

	outcomes := p.analyzer.AnalyzeItems(ctx, pending)
	res.Analyzed = triage.Succeeded(outcomes)
	res.AnalysisFailed = len(outcomes) - res.Analyzed
	return nil
}

// normalize trims every field, lowercases the source, drops candidates
// missing a source, external id or content, and defaults the timestamp.
func (p *Pipeline) normalize(candidates []Candidate, now time.Time) []domain.FeedbackItem {
	items := make([]domain.FeedbackItem, 0, len(candidates))
	for _, c := range candidates {
		item := domain.FeedbackItem{
			Source:            strings.ToLower(strings.TrimSpace(c.Source)),
			ExternalID:        strings.TrimSpace(c.ExternalID),
			RawContent:        strings.TrimSpace(c.RawContent),
			OriginalTimestamp: c.OriginalTimestamp.Time,
			Status:            domain.StatusNew,
		}
		if item.Source == "" || item.ExternalID == "" || item.RawContent == "" {
			continue
		}
		if item.OriginalTimestamp.IsZero() {
			item.OriginalTimestamp = now
		}
		items = append(items, item)
	}
	return items
}

func (p *Pipeline) writeLog(ctx context.Context, log *slog.Logger, origin string, res Result) {
	level := domain.LogInfo
	switch {
	case res.AnalysisFailed > 0 && res.Analyzed == 0:
		level = domain.LogError
	case res.AnalysisFailed > 0:
		level = domain.LogWarn
	}
	entry := domain.IngestionLog{
		Source:  origin,
		RunID:   runID(res.StartedAt),
		Level:   level,
		Message: res.Summary(),
		Meta: map[string]any{
			"received":       res.Received,
			"valid":          res.Valid,
			"ingested":       res.Ingested,
			"skipped":        res.Skipped,
			"analyzed":       res.Analyzed,
			"analysisFailed": res.AnalysisFailed,
			"startedAt":      res.StartedAt,
			"finishedAt":     res.FinishedAt,
		},
	}
	if err := p.store.InsertIngestionLog(ctx, entry); err != nil {
		log.Error("failed to write ingestion log", "error", err)
	}
}

func runID(startedAt time.Time) string {
	return startedAt.Format(time.RFC3339Nano)
}
