package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"feedbackdesk/internal/domain"
)

func (s *Store) InsertIngestionLog(ctx context.Context, l domain.IngestionLog) error {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	meta := "{}"
	if len(l.Meta) > 0 {
		b, err := json.Marshal(l.Meta)
		if err != nil {
			return fmt.Errorf("encode ingestion log meta: %w", err)
		}
		meta = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestion_logs (id, source, run_id, level, message, meta, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Source, l.RunID, string(l.Level), l.Message, meta, l.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert ingestion log: %w", err)
	}
	return nil
}

// LatestIngestionLogs returns the most recent run logs, newest first.
func (s *Store) LatestIngestionLogs(ctx context.Context, limit int) ([]domain.IngestionLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, run_id, level, message, meta, created_at
		 FROM ingestion_logs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.IngestionLog
	for rows.Next() {
		var (
			l     domain.IngestionLog
			level string
			meta  string
		)
		if err := rows.Scan(&l.ID, &l.Source, &l.RunID, &level, &l.Message, &meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Level = domain.LogLevel(level)
		if err := json.Unmarshal([]byte(meta), &l.Meta); err != nil {
			l.Meta = map[string]any{}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
