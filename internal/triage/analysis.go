package triage

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"feedbackdesk/internal/apperr"
	"feedbackdesk/internal/domain"
	"feedbackdesk/internal/integrations/llm"
)

// Outcome is the result of analysing one item in a batch.
type Outcome struct {
	ID       string                   `json:"id"`
	OK       bool                     `json:"ok"`
	Error    string                   `json:"error,omitempty"`
	Analysis *domain.FeedbackAnalysis `json:"-"`
}

// Failed returns the failed outcomes, in order.
func Failed(outcomes []Outcome) []Outcome {
	failed := []Outcome{}
	for _, o := range outcomes {
		if !o.OK {
			failed = append(failed, o)
		}
	}
	return failed
}

// Succeeded counts successful outcomes.
func Succeeded(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

// ApplyAnalysis persists result for item, auto-acknowledging high-severity
// NEW items in the same transaction, and queues an alert after commit when
// the severity is high. The status is judged against the stored row, not the
// item snapshot, which may be stale after a slow analyzer call. userID
// attributes the analysis; empty means system.
func (s *Service) ApplyAnalysis(ctx context.Context, item domain.FeedbackItem, userID string, result llm.Result) (domain.FeedbackAnalysis, error) {
	analysis, acknowledged, err := s.store.SaveAnalysis(ctx, domain.FeedbackAnalysis{
		FeedbackItemID: item.ID,
		UserID:         userID,
		Sentiment:      result.Sentiment,
		SeverityScore:  result.Severity,
		Summary:        result.Summary,
		Topics:         result.Topics,
	})
	if err != nil {
		return domain.FeedbackAnalysis{}, err
	}
	if acknowledged {
		s.log.Info("feedback auto-acknowledged", "item_id", item.ID, "severity", result.Severity)
	}
	if domain.IsHighSeverity(result.Severity) {
		s.notifier.NotifyHighSeverity(ctx, domain.Alert{
			FeedbackID: item.ID,
			Source:     item.Source,
			Severity:   result.Severity,
			Summary:    result.Summary,
		})
	}
	return analysis, nil
}

// Analyze runs the analyzer on one item synchronously. Any failure is returned
// to the caller and nothing is persisted.
func (s *Service) Analyze(ctx context.Context, actor domain.Actor, itemID string) (domain.FeedbackAnalysis, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.FeedbackAnalysis{}, apperr.Validation("feedbackId is required")
	}
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return domain.FeedbackAnalysis{}, err
	}
	result, err := s.analyzer.Analyze(ctx, item.RawContent)
	if err != nil {
		s.log.Warn("analysis failed", "item_id", item.ID, "error", err)
		return domain.FeedbackAnalysis{}, analyzerError(err)
	}
	analysis, err := s.ApplyAnalysis(ctx, item, actor.UserID, result)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.FeedbackAnalysis{}, apperr.NotFound("feedback", itemID)
		}
		return domain.FeedbackAnalysis{}, apperr.Internal("could not save analysis", err)
	}
	return analysis, nil
}

func analyzerError(err error) error {
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		return apperr.External("LLM provider is not configured", err)
	case errors.Is(err, llm.ErrInvalidResponse):
		return apperr.External("LLM returned an invalid analysis", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.External("LLM request timed out", err)
	}
	return apperr.External("LLM request failed", err)
}

// AnalyzeItems analyses items with at most the configured number of
// concurrent analyzer calls. A failing item never cancels its siblings.
// Outcomes are returned in input order.
func (s *Service) AnalyzeItems(ctx context.Context, items []domain.FeedbackItem) []Outcome {
	outcomes := make([]Outcome, len(items))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = s.analyzeOne(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Service) analyzeOne(ctx context.Context, item domain.FeedbackItem) Outcome {
	out := Outcome{ID: item.ID}
	if err := ctx.Err(); err != nil {
		out.Error = err.Error()
		return out
	}
	result, err := s.analyzer.Analyze(ctx, item.RawContent)
	if err != nil {
		s.log.Warn("analysis failed", "item_id", item.ID, "source", item.Source, "error", err)
		out.Error = err.Error()
		return out
	}
	analysis, err := s.ApplyAnalysis(ctx, item, "", result)
	if err != nil {
		s.log.Error("save analysis failed", "item_id", item.ID, "error", err)
		out.Error = err.Error()
		return out
	}
	out.OK = true
	out.Analysis = &analysis
	return out
}

// ClampBatchLimit maps a requested batch size onto 1..MaxBatchLimit; values
// below 1 select the default.
func ClampBatchLimit(limit int) int {
	if limit < 1 {
		return DefaultBatchLimit
	}
	if limit > MaxBatchLimit {
		return MaxBatchLimit
	}
	return limit
}

// AnalyzeUnscored analyses up to limit of the oldest unscored items.
func (s *Service) AnalyzeUnscored(ctx context.Context, limit int) ([]Outcome, error) {
	items, err := s.store.ListUnscored(ctx, ClampBatchLimit(limit))
	if err != nil {
		return nil, apperr.Internal("could not load unscored feedback", err)
	}
	if len(items) == 0 {
		return []Outcome{}, nil
	}
	outcomes := s.AnalyzeItems(ctx, items)
	s.log.Info("batch analysis finished", "total", len(items), "succeeded", Succeeded(outcomes))
	return outcomes, nil
}
