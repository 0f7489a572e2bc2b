package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"feedbackdesk/internal/domain"
)

// ChangeStatus moves an item to action.ToStatus and appends the audit row in
// one transaction. Status writes are last-writer-wins: the row's status at
// write time becomes the action's FromStatus, whatever the caller last saw.
// changed is false, and no row is written, when the item already has
// ToStatus. A non-nil allow is called with that live status and aborts the
// write when it returns an error.
func (s *Store) ChangeStatus(ctx context.Context, action domain.TriageAction, allow func(from domain.Status) error) (saved domain.TriageAction, changed bool, err error) {
	if action.ID == "" {
		action.ID = newID()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = s.now()
	}
	action.CreatedAt = action.CreatedAt.UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM feedback_items WHERE id = ?`, action.FeedbackItemID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read status of %s: %w", action.FeedbackItemID, err)
		}
		action.FromStatus = domain.Status(current)
		if action.FromStatus == action.ToStatus {
			return nil
		}
		if allow != nil {
			if err := allow(action.FromStatus); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE feedback_items SET status = ? WHERE id = ?`,
			string(action.ToStatus), action.FeedbackItemID); err != nil {
			return fmt.Errorf("update status of %s: %w", action.FeedbackItemID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO triage_actions (id, feedback_item_id, user_id, from_status, to_status, note, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			action.ID, action.FeedbackItemID, action.UserID,
			string(action.FromStatus), string(action.ToStatus), action.Note, action.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert triage action for %s: %w", action.FeedbackItemID, err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return domain.TriageAction{}, false, err
	}
	return action, changed, nil
}

// CountTriageActions returns the number of audit rows recorded for an item.
func (s *Store) CountTriageActions(ctx context.Context, itemID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM triage_actions WHERE feedback_item_id = ?`, itemID).Scan(&n)
	return n, err
}

// RecentStatusChanges returns up to limit triage actions created in [from, to),
// newest first, with the actor's email and the item's source resolved.
func (s *Store) RecentStatusChanges(ctx context.Context, from, to time.Time, limit int) ([]domain.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.feedback_item_id, t.user_id, t.from_status, t.to_status, t.note, t.created_at,
		        COALESCE(u.email, ''), COALESCE(i.source, '')
		 FROM triage_actions t
		 LEFT JOIN users u ON u.id = t.user_id
		 LEFT JOIN feedback_items i ON i.id = t.feedback_item_id
		 WHERE t.created_at >= ? AND t.created_at < ?
		 ORDER BY t.created_at DESC, t.rowid DESC
		 LIMIT ?`,
		from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query triage actions: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusChange
	for rows.Next() {
		var (
			c        domain.StatusChange
			fromStat string
			toStat   string
		)
		if err := rows.Scan(&c.ID, &c.FeedbackItemID, &c.UserID, &fromStat, &toStat, &c.Note, &c.CreatedAt,
			&c.ActorEmail, &c.ItemSource); err != nil {
			return nil, err
		}
		c.FromStatus = domain.Status(fromStat)
		c.ToStatus = domain.Status(toStat)
		out = append(out, c)
	}
	return out, rows.Err()
}
