package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"feedbackdesk/internal/domain"
)

// SaveAnalysis records an analysis and, in the same transaction, refreshes the
// item's sentiment/severity/topics snapshot. The status is decided against the
// row as it is at write time: a high severity moves a NEW item to ACKNOWLEDGED
// and every other status is left alone. acknowledged reports whether that move
// happened.
func (s *Store) SaveAnalysis(ctx context.Context, a domain.FeedbackAnalysis) (saved domain.FeedbackAnalysis, acknowledged bool, err error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	if a.Topics == nil {
		a.Topics = []string{}
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM feedback_items WHERE id = ?`, a.FeedbackItemID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read status of %s: %w", a.FeedbackItemID, err)
		}
		next := domain.AutoAcknowledge(domain.Status(current), a.SeverityScore)

		_, err = tx.ExecContext(ctx,
			`INSERT INTO feedback_analyses (id, feedback_item_id, user_id, sentiment, severity_score, summary, topics, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.FeedbackItemID, nullString(a.UserID), string(a.Sentiment),
			a.SeverityScore, a.Summary, encodeTopics(a.Topics), a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert analysis for %s: %w", a.FeedbackItemID, err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE feedback_items SET sentiment = ?, severity = ?, topics = ?, status = ? WHERE id = ?`,
			string(a.Sentiment), a.SeverityScore, encodeTopics(a.Topics), string(next), a.FeedbackItemID,
		)
		if err != nil {
			return fmt.Errorf("update feedback %s: %w", a.FeedbackItemID, err)
		}
		acknowledged = next != domain.Status(current)
		return nil
	})
	if err != nil {
		return domain.FeedbackAnalysis{}, false, err
	}
	return a, acknowledged, nil
}

const analysisColumns = `a.id, a.feedback_item_id, a.user_id, a.sentiment, a.severity_score, a.summary, a.topics, a.created_at`

func scanAnalysis(row rowScanner, extra ...any) (domain.FeedbackAnalysis, error) {
	var (
		a         domain.FeedbackAnalysis
		userID    sql.NullString
		sentiment string
		topics    string
	)
	dest := append([]any{&a.ID, &a.FeedbackItemID, &userID, &sentiment, &a.SeverityScore, &a.Summary, &topics, &a.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.FeedbackAnalysis{}, err
	}
	a.UserID = userID.String
	a.Sentiment = domain.Sentiment(sentiment)
	a.Topics = decodeTopics(topics)
	return a, nil
}

// LatestAnalysis returns the most recently created analysis of an item.
func (s *Store) LatestAnalysis(ctx context.Context, itemID string) (domain.FeedbackAnalysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM feedback_analyses a
		 WHERE a.feedback_item_id = ? ORDER BY a.created_at DESC, a.rowid DESC LIMIT 1`, itemID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FeedbackAnalysis{}, domain.ErrNotFound
	}
	return a, err
}

// AnalysesBetween returns analyses created in [from, to) joined with the
// current status and source of their item, newest first.
func (s *Store) AnalysesBetween(ctx context.Context, from, to time.Time) ([]domain.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+`, COALESCE(i.status, ''), COALESCE(i.source, '')
		 FROM feedback_analyses a
		 LEFT JOIN feedback_items i ON i.id = a.feedback_item_id
		 WHERE a.created_at >= ? AND a.created_at < ?
		 ORDER BY a.created_at DESC, a.rowid DESC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var out []domain.AnalysisRecord
	for rows.Next() {
		var status, source string
		a, err := scanAnalysis(rows, &status, &source)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.AnalysisRecord{
			FeedbackAnalysis: a,
			ItemStatus:       domain.Status(status),
			ItemSource:       source,
		})
	}
	return out, rows.Err()
}
