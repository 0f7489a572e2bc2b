// Package digest aggregates feedback activity over a time window and formats
// it for Slack and e-mail.
package digest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"feedbackdesk/internal/domain"
	"feedbackdesk/internal/storage/sqlite"
)

const (
	maxHighlights    = 5
	maxStatusChanges = 10
	previewTopics    = 8
	DefaultHours     = 24
	MaxHours         = 168
)

type Store interface {
	AnalysesBetween(ctx context.Context, from, to time.Time) ([]domain.AnalysisRecord, error)
	CountNewItemsBetween(ctx context.Context, from, to time.Time) (int, error)
	RecentStatusChanges(ctx context.Context, from, to time.Time, limit int) ([]domain.StatusChange, error)
	ItemsCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.FeedbackItem, error)

	StatusCounts(ctx context.Context) (map[domain.Status]int, error)
	SentimentCounts(ctx context.Context) (map[domain.Sentiment]int, error)
	SeverityCounts(ctx context.Context) (map[int]int, error)
	SourceCounts(ctx context.Context) ([]domain.SourceCount, error)
	HighSeverityItems(ctx context.Context, since time.Time, limit int) ([]domain.FeedbackItem, error)
	ListItems(ctx context.Context, f sqlite.ItemFilter) ([]domain.FeedbackItem, int, error)
	LatestIngestionLogs(ctx context.Context, limit int) ([]domain.IngestionLog, error)
}

type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type Totals struct {
	Analyzed     int            `json:"analyzed"`
	HighSeverity int            `json:"highSeverity"`
	ByStatus     map[string]int `json:"byStatus"`
	BySeverity   map[string]int `json:"bySeverity"`
}

type HighlightItem struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	Status    domain.Status `json:"status"`
	Severity  int           `json:"severity"`
	Summary   string        `json:"summary"`
	CreatedAt time.Time     `json:"createdAt"`
}

type StatusChangeSummary struct {
	FeedbackItemID string        `json:"feedbackItemId"`
	FeedbackSource string        `json:"feedbackSource"`
	FromStatus     domain.Status `json:"fromStatus"`
	ToStatus       domain.Status `json:"toStatus"`
	UserEmail      string        `json:"userEmail"`
	CreatedAt      time.Time     `json:"createdAt"`
}

type Highlights struct {
	HighSeverityItems []HighlightItem       `json:"highSeverityItems"`
	RecentNewCount    int                   `json:"recentNewCount"`
	StatusChanges     []StatusChangeSummary `json:"statusChanges"`
}

// Report is the digest of one window. It is derived only from stored data.
type Report struct {
	Window     Window     `json:"window"`
	Totals     Totals     `json:"totals"`
	Highlights Highlights `json:"highlights"`
}

const unknownStatus = "UNKNOWN"

type Builder struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

func NewBuilder(store Store, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{store: store, loc: loc, now: time.Now}
}

// Trailing returns the window of the given length ending now.
func (b *Builder) Trailing(hours float64) Window {
	to := b.now().UTC()
	return Window{From: to.Add(-time.Duration(hours * float64(time.Hour))), To: to}
}

// ClampHours returns hours when it is within (0, MaxHours] and fallback
// otherwise. Fractional hours are kept.
func ClampHours(hours float64, fallback int) float64 {
	if math.IsNaN(hours) || hours <= 0 || hours > MaxHours {
		return float64(fallback)
	}
	return hours
}

// Build aggregates analyses, new items and status changes created in
// [from, to).
func (b *Builder) Build(ctx context.Context, from, to time.Time) (Report, error) {
	if !from.Before(to) {
		return Report{}, fmt.Errorf("empty digest window %s - %s", from, to)
	}
	analyses, err := b.store.AnalysesBetween(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("load analyses: %w", err)
	}
	newCount, err := b.store.CountNewItemsBetween(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("count new items: %w", err)
	}
	changes, err := b.store.RecentStatusChanges(ctx, from, to, maxStatusChanges)
	if err != nil {
		return Report{}, fmt.Errorf("load status changes: %w", err)
	}

	report := Report{
		Window: Window{From: from.UTC(), To: to.UTC()},
		Totals: Totals{
			Analyzed:   len(analyses),
			ByStatus:   map[string]int{},
			BySeverity: map[string]int{},
		},
		Highlights: Highlights{
			HighSeverityItems: []HighlightItem{},
			RecentNewCount:    newCount,
			StatusChanges:     make([]StatusChangeSummary, 0, len(changes)),
		},
	}
	for _, st := range domain.AllStatuses() {
		report.Totals.ByStatus[string(st)] = 0
	}
	for sev := domain.MinSeverity; sev <= domain.MaxSeverity; sev++ {
		report.Totals.BySeverity[severityKey(sev)] = 0
	}

	var high []domain.AnalysisRecord
	for _, a := range analyses {
		status := string(a.ItemStatus)
		if status == "" {
			status = unknownStatus
		}
		report.Totals.ByStatus[status]++
		if a.SeverityScore >= domain.MinSeverity && a.SeverityScore <= domain.MaxSeverity {
			report.Totals.BySeverity[severityKey(a.SeverityScore)]++
		}
		if domain.IsHighSeverity(a.SeverityScore) {
			high = append(high, a)
		}
	}
	report.Totals.HighSeverity = len(high)

	// analyses arrive newest first; a stable sort keeps that within each group
	sort.SliceStable(high, func(i, j int) bool {
		ri, rj := high[i].ItemStatus.Resolved(), high[j].ItemStatus.Resolved()
		if ri != rj {
			return !ri
		}
		return high[i].CreatedAt.After(high[j].CreatedAt)
	})
	if len(high) > maxHighlights {
		high = high[:maxHighlights]
	}
	for _, a := range high {
		status := a.ItemStatus
		if status == "" {
			status = unknownStatus
		}
		report.Highlights.HighSeverityItems = append(report.Highlights.HighSeverityItems, HighlightItem{
			ID:        a.FeedbackItemID,
			Source:    orUnknown(a.ItemSource),
			Status:    status,
			Severity:  a.SeverityScore,
			Summary:   a.Summary,
			CreatedAt: a.CreatedAt,
		})
	}

	for _, c := range changes {
		report.Highlights.StatusChanges = append(report.Highlights.StatusChanges, StatusChangeSummary{
			FeedbackItemID: c.FeedbackItemID,
			FeedbackSource: orUnknown(c.ItemSource),
			FromStatus:     c.FromStatus,
			ToStatus:       c.ToStatus,
			UserEmail:      orUnknown(c.ActorEmail),
			CreatedAt:      c.CreatedAt,
		})
	}
	return report, nil
}

func severityKey(sev int) string {
	return fmt.Sprintf("S%d", sev)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
