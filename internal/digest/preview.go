package digest

import (
	"context"
	"fmt"
	"time"

	"feedbackdesk/internal/domain"
)

type SentimentTally struct {
	Positive int `json:"POSITIVE"`
	Neutral  int `json:"NEUTRAL"`
	Negative int `json:"NEGATIVE"`
}

func (t *SentimentTally) add(s domain.Sentiment) {
	switch s {
	case domain.SentimentPositive:
		t.Positive++
	case domain.SentimentNeutral:
		t.Neutral++
	case domain.SentimentNegative:
		t.Negative++
	}
}

// Preview is a live summary of items created in the last 24 hours.
type Preview struct {
	From         time.Time           `json:"from"`
	To           time.Time           `json:"to"`
	TotalNew     int                 `json:"totalNew"`
	HighSeverity int                 `json:"highSeverity"`
	Sentiment    SentimentTally      `json:"sentiment"`
	TopTopics    []domain.TopicCount `json:"topTopics"`
}

func (b *Builder) Preview(ctx context.Context) (Preview, error) {
	w := b.Trailing(DefaultHours)
	items, err := b.store.ItemsCreatedBetween(ctx, w.From, w.To)
	if err != nil {
		return Preview{}, fmt.Errorf("load items: %w", err)
	}

	p := Preview{From: w.From, To: w.To}
	topics := make([][]string, 0, len(items))
	for _, item := range items {
		if item.Status == domain.StatusNew {
			p.TotalNew++
		}
		if domain.IsHighSeverity(item.Severity) {
			p.HighSeverity++
		}
		p.Sentiment.add(item.Sentiment)
		topics = append(topics, item.Topics)
	}
	p.TopTopics = domain.RankTopics(topics, previewTopics)
	return p, nil
}
