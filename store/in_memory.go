package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/novelmesh/core"
)

type checkpointKey struct {
	project string
	phase   core.Phase
}

// InMemoryStore is a volatile core.Store storing projects, checkpoints and
// feedback in process local maps. It is safe for concurrent access. Values
// are cloned on the way in and out to prevent external mutation of internal
// state.
type InMemoryStore struct {
	mu          sync.RWMutex
	projects    map[string]*core.ProjectState
	checkpoints map[checkpointKey][]core.Checkpoint
	feedback    map[string][]core.Feedback
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		projects:    make(map[string]*core.ProjectState),
		checkpoints: make(map[checkpointKey][]core.Checkpoint),
		feedback:    make(map[string][]core.Feedback),
	}
}

// SaveProjectState stores a clone of p, replacing any previous version.
func (s *InMemoryStore) SaveProjectState(_ context.Context, p *core.ProjectState) error {
	c, err := p.Copy()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ProjectID] = c
	return nil
}

// LoadProjectState returns a clone of the stored project or core.ErrNotFound.
func (s *InMemoryStore) LoadProjectState(_ context.Context, projectID string) (*core.ProjectState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return p.Copy()
}

// ListProjects returns the stored project ids, sorted.
func (s *InMemoryStore) ListProjects(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveCheckpoint appends cp to the (project, phase) log.
func (s *InMemoryStore) SaveCheckpoint(_ context.Context, cp core.Checkpoint) error {
	state, err := cp.State.Copy()
	if err != nil {
		return err
	}
	cp.State = state
	s.mu.Lock()
	defer s.mu.Unlock()
	k := checkpointKey{cp.ProjectID, cp.Phase}
	s.checkpoints[k] = append(s.checkpoints[k], cp)
	return nil
}

// LoadLatestCheckpoint returns the most recently appended checkpoint.
func (s *InMemoryStore) LoadLatestCheckpoint(_ context.Context, projectID string, phase core.Phase) (*core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.checkpoints[checkpointKey{projectID, phase}]
	if len(log) == 0 {
		return nil, core.ErrNotFound
	}
	cp := log[len(log)-1]
	state, err := cp.State.Copy()
	if err != nil {
		return nil, err
	}
	cp.State = state
	return &cp, nil
}

// Checkpoints returns a copy of the full log for (project, phase).
func (s *InMemoryStore) Checkpoints(projectID string, phase core.Phase) []core.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.checkpoints[checkpointKey{projectID, phase}]
	out := make([]core.Checkpoint, len(log))
	copy(out, log)
	return out
}

// AppendFeedback appends fb to the project's feedback log.
func (s *InMemoryStore) AppendFeedback(_ context.Context, projectID string, fb core.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback[projectID] = append(s.feedback[projectID], cloneFeedback(fb))
	return nil
}

// ListFeedback returns the project's feedback in arrival order.
func (s *InMemoryStore) ListFeedback(_ context.Context, projectID string) ([]core.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.feedback[projectID]
	out := make([]core.Feedback, len(log))
	for i, fb := range log {
		out[i] = cloneFeedback(fb)
	}
	return out, nil
}

func cloneFeedback(fb core.Feedback) core.Feedback {
	if fb.Scores != nil {
		scores := make(map[string]float64, len(fb.Scores))
		for k, v := range fb.Scores {
			scores[k] = v
		}
		fb.Scores = scores
	}
	return fb
}
