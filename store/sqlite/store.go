package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/novelmesh/core"
)

// SaveProjectState upserts the project document.
func (s *Store) SaveProjectState(ctx context.Context, p *core.ProjectState) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	err = s.exec(ctx, `
		INSERT INTO projects (id, current_phase, status, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET current_phase = excluded.current_phase, status = excluded.status,
			data = excluded.data, updated_at = excluded.updated_at`,
		p.ProjectID, string(p.CurrentPhase), string(p.Status), string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ProjectID, err)
	}
	return nil
}

// LoadProjectState returns the project or core.ErrNotFound.
func (s *Store) LoadProjectState(ctx context.Context, projectID string) (*core.ProjectState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.conn.QueryRowContext(ctx, "SELECT data FROM projects WHERE id = ?", projectID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}

	var p core.ProjectState
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", projectID, err)
	}
	p.Normalize()
	return &p, nil
}

// ListProjects returns the stored project ids, sorted.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, "SELECT id FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveCheckpoint appends cp to the checkpoint log.
func (s *Store) SaveCheckpoint(ctx context.Context, cp core.Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("encode checkpoint state: %w", err)
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	err = s.exec(ctx, `
		INSERT INTO checkpoints (id, project_id, phase, node, status, step, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.ProjectID, string(cp.Phase), cp.Node, string(cp.Status), cp.Step, string(state), formatTime(cp.CreatedAt))
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadLatestCheckpoint returns the newest checkpoint of (project, phase) or
// core.ErrNotFound.
func (s *Store) LoadLatestCheckpoint(ctx context.Context, projectID string, phase core.Phase) (*core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		cp        core.Checkpoint
		phaseStr  string
		status    string
		state     string
		createdAt string
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, project_id, phase, node, status, step, state, created_at
		FROM checkpoints WHERE project_id = ? AND phase = ?
		ORDER BY seq DESC LIMIT 1`, projectID, string(phase)).
		Scan(&cp.ID, &cp.ProjectID, &phaseStr, &cp.Node, &status, &cp.Step, &state, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp.Phase = core.Phase(phaseStr)
	cp.Status = core.CheckpointStatus(status)
	if cp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse checkpoint time: %w", err)
	}
	if err := json.Unmarshal([]byte(state), &cp.State); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}
	if cp.State != nil && cp.State.Project != nil {
		cp.State.Project.Normalize()
	}
	return &cp, nil
}

// AppendFeedback appends fb to the project's feedback log.
func (s *Store) AppendFeedback(ctx context.Context, projectID string, fb core.Feedback) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	ts := fb.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := s.exec(ctx, "INSERT INTO feedback (id, project_id, data, created_at) VALUES (?, ?, ?, ?)",
		fb.ID, projectID, string(data), formatTime(ts)); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the project's feedback in arrival order.
func (s *Store) ListFeedback(ctx context.Context, projectID string) ([]core.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, "SELECT data FROM feedback WHERE project_id = ? ORDER BY seq", projectID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	out := []core.Feedback{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		var fb core.Feedback
		if err := json.Unmarshal([]byte(data), &fb); err != nil {
			return nil, fmt.Errorf("decode feedback: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}
