package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/novelmesh/core"
)

// AppendTurns implements core.HistoryStore.
func (s *Store) AppendTurns(ctx context.Context, agent, projectID string, turns ...core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for _, t := range turns {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO history (agent, project_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
			agent, projectID, t.Role, t.Content, formatTime(ts)); err != nil {
			tx.Rollback()
			return fmt.Errorf("append history: %w", err)
		}
	}
	return tx.Commit()
}

// History implements core.HistoryStore.
func (s *Store) History(ctx context.Context, agent, projectID string, limit int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT role, content, created_at FROM (
			SELECT seq, role, content, created_at FROM history
			WHERE agent = ? AND project_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, agent, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	out := []core.Message{}
	for rows.Next() {
		var (
			m  core.Message
			ts string
		)
		if err := rows.Scan(&m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse history time: %w", err)
		}
		m.Agent = agent
		out = append(out, m)
	}
	return out, rows.Err()
}

// Clear implements core.HistoryStore.
func (s *Store) Clear(ctx context.Context, agent, projectID string) error {
	return s.exec(ctx, "DELETE FROM history WHERE agent = ? AND project_id = ?", agent, projectID)
}
