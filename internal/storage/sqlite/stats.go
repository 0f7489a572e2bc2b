package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedbackdesk/internal/domain"
)

func (s *Store) StatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	out := map[domain.Status]int{}
	err := s.groupCount(ctx, `SELECT status, COUNT(*) FROM feedback_items GROUP BY status`, func(key string, n int) {
		out[domain.Status(key)] = n
	})
	return out, err
}

func (s *Store) SentimentCounts(ctx context.Context) (map[domain.Sentiment]int, error) {
	out := map[domain.Sentiment]int{}
	err := s.groupCount(ctx,
		`SELECT sentiment, COUNT(*) FROM feedback_items WHERE sentiment IS NOT NULL GROUP BY sentiment`,
		func(key string, n int) { out[domain.Sentiment(key)] = n })
	return out, err
}

func (s *Store) SeverityCounts(ctx context.Context) (map[int]int, error) {
	out := map[int]int{}
	for sev := domain.MinSeverity; sev <= domain.MaxSeverity; sev++ {
		out[sev] = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, COUNT(*) FROM feedback_items WHERE severity IS NOT NULL GROUP BY severity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sev, n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		out[sev] = n
	}
	return out, rows.Err()
}

// SourceCounts returns item counts per non-empty source, largest first.
func (s *Store) SourceCounts(ctx context.Context) ([]domain.SourceCount, error) {
	var out []domain.SourceCount
	err := s.groupCount(ctx,
		`SELECT source, COUNT(*) AS n FROM feedback_items
		 WHERE TRIM(source) <> '' GROUP BY source ORDER BY n DESC, source ASC`,
		func(key string, n int) { out = append(out, domain.SourceCount{Source: key, Count: n}) })
	if out == nil {
		out = []domain.SourceCount{}
	}
	return out, err
}

// AllTopics returns the topic list of every item, oldest item first.
func (s *Store) AllTopics(ctx context.Context) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT topics FROM feedback_items ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, decodeTopics(raw))
	}
	return out, rows.Err()
}

// HighSeverityItems returns up to limit unresolved items with severity >= 4
// created at or after since, newest first.
func (s *Store) HighSeverityItems(ctx context.Context, since time.Time, limit int) ([]domain.FeedbackItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM feedback_items
		 WHERE severity >= ? AND created_at >= ? AND status != ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		domain.HighSeverity, since.UTC(), string(domain.StatusActioned), limit)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (s *Store) groupCount(ctx context.Context, query string, fn func(key string, n int)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("group count: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key sql.NullString
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key.String, n)
	}
	return rows.Err()
}
