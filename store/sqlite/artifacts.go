package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/novelmesh/artifact"
)

// ArtifactStore is a core.ArtifactStore view over the artifacts table.
type ArtifactStore struct {
	s *Store
}

// Artifacts returns the artifact view of s.
func (s *Store) Artifacts() *ArtifactStore { return &ArtifactStore{s: s} }

// Save stores (or overwrites) an artifact.
func (a *ArtifactStore) Save(projectID, artifactID string, data []byte) error {
	err := a.s.exec(context.Background(), `
		INSERT INTO artifacts (project_id, artifact_id, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, artifact_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		projectID, artifactID, data, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// Get returns the artifact bytes or artifact.ErrNotFound.
func (a *ArtifactStore) Get(projectID, artifactID string) ([]byte, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var data []byte
	err := a.s.conn.QueryRow("SELECT data FROM artifacts WHERE project_id = ? AND artifact_id = ?", projectID, artifactID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, artifact.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return data, nil
}

// List returns the sorted artifact ids of a project.
func (a *ArtifactStore) List(projectID string) ([]string, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	rows, err := a.s.conn.Query("SELECT artifact_id FROM artifacts WHERE project_id = ? ORDER BY artifact_id", projectID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan artifact id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes an artifact or returns artifact.ErrNotFound.
func (a *ArtifactStore) Delete(projectID, artifactID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	res, err := a.s.conn.Exec("DELETE FROM artifacts WHERE project_id = ? AND artifact_id = ?", projectID, artifactID)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return artifact.ErrNotFound
	}
	return nil
}
