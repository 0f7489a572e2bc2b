package digest

import (
	"context"
	"fmt"
	"time"

	"feedbackdesk/internal/domain"
	"feedbackdesk/internal/storage/sqlite"
)

const (
	trendDays       = 7
	overviewTopics  = 10
	overviewQueue   = 5
	overviewRecents = 10
)

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type DaySentiment struct {
	Date     string `json:"date"`
	Positive int    `json:"positive"`
	Neutral  int    `json:"neutral"`
	Negative int    `json:"negative"`
}

type KPIs struct {
	Total        int `json:"totalFeedback"`
	New          int `json:"totalNew"`
	Acknowledged int `json:"totalAcknowledged"`
	Actioned     int `json:"totalActioned"`
	HighSeverity int `json:"highSeverity"`
	Analyzed     int `json:"analyzed"`
}

// Overview backs the dashboard.
type Overview struct {
	KPIs               KPIs                  `json:"kpis"`
	FeedbackBySource   []domain.SourceCount  `json:"feedbackBySource"`
	SentimentCounts    SentimentTally        `json:"sentimentCounts"`
	SeverityCounts     map[int]int           `json:"severityCounts"`
	TrendLast7Days     []DayCount            `json:"trendLast7Days"`
	SentimentTrend     []DaySentiment        `json:"sentimentTrend"`
	TopicDistribution  []domain.TopicCount   `json:"topicDistribution"`
	HighSeverityQueue  []domain.FeedbackItem `json:"highSeverityRecent"`
	RecentFeedback     []domain.FeedbackItem `json:"recentFeedback"`
	NotificationsReady bool                  `json:"slackConnected"`
	LastIngestion      *domain.IngestionLog  `json:"lastIngestion"`
}

// Overview computes dashboard statistics. Daily buckets cover today and the
// previous six days in the builder's location.
func (b *Builder) Overview(ctx context.Context, slackConfigured bool) (Overview, error) {
	var (
		ov  Overview
		err error
	)
	statuses, err := b.store.StatusCounts(ctx)
	if err != nil {
		return ov, fmt.Errorf("status counts: %w", err)
	}
	sentiments, err := b.store.SentimentCounts(ctx)
	if err != nil {
		return ov, fmt.Errorf("sentiment counts: %w", err)
	}
	if ov.SeverityCounts, err = b.store.SeverityCounts(ctx); err != nil {
		return ov, fmt.Errorf("severity counts: %w", err)
	}
	if ov.FeedbackBySource, err = b.store.SourceCounts(ctx); err != nil {
		return ov, fmt.Errorf("source counts: %w", err)
	}

	for _, n := range statuses {
		ov.KPIs.Total += n
	}
	ov.KPIs.New = statuses[domain.StatusNew]
	ov.KPIs.Acknowledged = statuses[domain.StatusAcknowledged]
	ov.KPIs.Actioned = statuses[domain.StatusActioned]
	for sev, n := range ov.SeverityCounts {
		if domain.IsHighSeverity(sev) {
			ov.KPIs.HighSeverity += n
		}
	}
	ov.SentimentCounts = SentimentTally{
		Positive: sentiments[domain.SentimentPositive],
		Neutral:  sentiments[domain.SentimentNeutral],
		Negative: sentiments[domain.SentimentNegative],
	}
	ov.KPIs.Analyzed = ov.SentimentCounts.Positive + ov.SentimentCounts.Neutral + ov.SentimentCounts.Negative

	now := b.now().In(b.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, b.loc).AddDate(0, 0, -(trendDays - 1))
	recent, err := b.store.ItemsCreatedBetween(ctx, start, now.Add(time.Second))
	if err != nil {
		return ov, fmt.Errorf("load recent items: %w", err)
	}
	ov.TrendLast7Days, ov.SentimentTrend = dailyBuckets(recent, start, b.loc)

	topics := make([][]string, 0, len(recent))
	for _, item := range recent {
		topics = append(topics, item.Topics)
	}
	ov.TopicDistribution = domain.RankTopics(topics, overviewTopics)

	if ov.HighSeverityQueue, err = b.store.HighSeverityItems(ctx, start, overviewQueue); err != nil {
		return ov, fmt.Errorf("high severity queue: %w", err)
	}
	if ov.RecentFeedback, _, err = b.store.ListItems(ctx, sqlite.ItemFilter{Page: 1, Limit: overviewRecents}); err != nil {
		return ov, fmt.Errorf("recent feedback: %w", err)
	}
	if ov.HighSeverityQueue == nil {
		ov.HighSeverityQueue = []domain.FeedbackItem{}
	}
	if ov.RecentFeedback == nil {
		ov.RecentFeedback = []domain.FeedbackItem{}
	}
	logs, err := b.store.LatestIngestionLogs(ctx, 1)
	if err != nil {
		return ov, fmt.Errorf("last ingestion: %w", err)
	}
	if len(logs) > 0 {
		ov.LastIngestion = &logs[0]
	}
	ov.NotificationsReady = slackConfigured
	return ov, nil
}

func dailyBuckets(items []domain.FeedbackItem, start time.Time, loc *time.Location) ([]DayCount, []DaySentiment) {
	counts := make([]DayCount, trendDays)
	sentiment := make([]DaySentiment, trendDays)
	index := make(map[string]int, trendDays)
	for i := 0; i < trendDays; i++ {
		day := start.AddDate(0, 0, i).Format(time.DateOnly)
		counts[i].Date = day
		sentiment[i].Date = day
		index[day] = i
	}
	for _, item := range items {
		i, ok := index[item.CreatedAt.In(loc).Format(time.DateOnly)]
		if !ok {
			continue
		}
		counts[i].Count++
		switch item.Sentiment {
		case domain.SentimentPositive:
			sentiment[i].Positive++
		case domain.SentimentNeutral:
			sentiment[i].Neutral++
		case domain.SentimentNegative:
			sentiment[i].Negative++
		}
	}
	return counts, sentiment
}
