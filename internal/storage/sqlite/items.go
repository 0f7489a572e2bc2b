package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedbackdesk/internal/domain"
)

const itemColumns = `id, source, external_id, raw_content, original_timestamp, created_at,
	status, sentiment, severity, topics, user_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.FeedbackItem, error) {
	var (
		item      domain.FeedbackItem
		status    string
		sentiment sql.NullString
		severity  sql.NullInt64
		topics    string
		userID    sql.NullString
	)
	err := row.Scan(
		&item.ID, &item.Source, &item.ExternalID, &item.RawContent,
		&item.OriginalTimestamp, &item.CreatedAt,
		&status, &sentiment, &severity, &topics, &userID,
	)
	if err != nil {
		return domain.FeedbackItem{}, err
	}
	item.Status = domain.Status(status)
	item.Sentiment = domain.Sentiment(sentiment.String)
	item.Severity = int(severity.Int64)
	item.Topics = decodeTopics(topics)
	item.UserID = userID.String
	return item, nil
}

func scanItems(rows *sql.Rows) ([]domain.FeedbackItem, error) {
	defer rows.Close()
	var items []domain.FeedbackItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) prepareItem(item *domain.FeedbackItem) {
	if item.ID == "" {
		item.ID = newID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	if item.Status == "" {
		item.Status = domain.StatusNew
	}
	if item.OriginalTimestamp.IsZero() {
		item.OriginalTimestamp = item.CreatedAt
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.OriginalTimestamp = item.OriginalTimestamp.UTC()
	if item.Topics == nil {
		item.Topics = []string{}
	}
}

const insertItemSQL = `INSERT INTO feedback_items (` + itemColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func itemArgs(item domain.FeedbackItem) []any {
	return []any{
		item.ID, item.Source, item.ExternalID, item.RawContent,
		item.OriginalTimestamp, item.CreatedAt, string(item.Status),
		nullString(string(item.Sentiment)), nullInt(item.Severity),
		encodeTopics(item.Topics), nullString(item.UserID),
	}
}

// InsertItems inserts items in one transaction, silently skipping any whose
// (source, external_id) already exists. It returns how many rows were created.
func (s *Store) InsertItems(ctx context.Context, items []domain.FeedbackItem) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertItemSQL+` ON CONFLICT(source, external_id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, item := range items {
			s.prepareItem(&item)
			res, err := stmt.ExecContext(ctx, itemArgs(item)...)
			if err != nil {
				return fmt.Errorf("insert feedback %s/%s: %w", item.Source, item.ExternalID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// CreateItem inserts a single item and reports domain.ErrDuplicate when its
// natural key is taken.
func (s *Store) CreateItem(ctx context.Context, item domain.FeedbackItem) (domain.FeedbackItem, error) {
	s.prepareItem(&item)
	if _, err := s.db.ExecContext(ctx, insertItemSQL, itemArgs(item)...); err != nil {
		if isUniqueViolation(err) {
			return domain.FeedbackItem{}, domain.ErrDuplicate
		}
		return domain.FeedbackItem{}, fmt.Errorf("insert feedback: %w", err)
	}
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (domain.FeedbackItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM feedback_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FeedbackItem{}, domain.ErrNotFound
	}
	return item, err
}

// FindUnscoredByKeys returns the items behind keys that still lack a sentiment
// or a severity, in the order the keys were given. Repeated keys are collapsed.
func (s *Store) FindUnscoredByKeys(ctx context.Context, keys []domain.ItemKey) ([]domain.FeedbackItem, error) {
	seen := make(map[domain.ItemKey]bool, len(keys))
	var items []domain.FeedbackItem
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		row := s.db.QueryRowContext(ctx,
			`SELECT `+itemColumns+` FROM feedback_items
			 WHERE source = ? AND external_id = ? AND (sentiment IS NULL OR severity IS NULL)`,
			key.Source, key.ExternalID,
		)
		item, err := scanItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find unscored %s/%s: %w", key.Source, key.ExternalID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// ListUnscored returns up to limit unscored items, oldest first.
func (s *Store) ListUnscored(ctx context.Context, limit int) ([]domain.FeedbackItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM feedback_items
		 WHERE sentiment IS NULL OR severity IS NULL
		 ORDER BY created_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

type ItemFilter struct {
	Search string
	Status domain.Status
	Source string
	Page   int
	Limit  int
}

// ListItems returns one page of items matching f, newest first, and the total
// number of matches.
func (s *Store) ListItems(ctx context.Context, f ItemFilter) ([]domain.FeedbackItem, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Search != "" {
		where = append(where, `raw_content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}
	if f.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(f.Status))
	}
	if f.Source != "" {
		where = append(where, `source = ?`)
		args = append(args, f.Source)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback_items`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count feedback: %w", err)
	}

	offset := (f.Page - 1) * f.Limit
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM feedback_items`+clause+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, f.Limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list feedback: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ItemsCreatedBetween returns items created in [from, to), oldest first.
func (s *Store) ItemsCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.FeedbackItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM feedback_items
		 WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC, id ASC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

// CountNewItemsBetween counts items created in [from, to) that are still NEW.
func (s *Store) CountNewItemsBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback_items WHERE created_at >= ? AND created_at < ? AND status = ?`,
		from.UTC(), to.UTC(), string(domain.StatusNew)).Scan(&n)
	return n, err
}

// SetSeverity overrides an item's severity; zero clears it.
func (s *Store) SetSeverity(ctx context.Context, id string, severity int) error {
	return s.updateItem(ctx, id, `UPDATE feedback_items SET severity = ? WHERE id = ?`, nullInt(severity), id)
}

// SetSentiment overrides an item's sentiment; empty clears it.
func (s *Store) SetSentiment(ctx context.Context, id string, sentiment domain.Sentiment) error {
	return s.updateItem(ctx, id, `UPDATE feedback_items SET sentiment = ? WHERE id = ?`, nullString(string(sentiment)), id)
}

func (s *Store) updateItem(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update feedback %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
