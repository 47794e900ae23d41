package memory

import (
	"context"
	"sync"

	"github.com/hupe1980/novelmesh/core"
)

type historyKey struct{ agent, project string }

// InMemoryStore is a process-local HistoryStore. Turns are kept per
// (agent, project) pair and optionally capped to the most recent MaxTurns.
//
// Concurrency: protected by RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	turns    map[historyKey][]core.Message
	maxTurns int
}

// Options configures an InMemoryStore.
type Options struct {
	// MaxTurns caps stored turns per pair. Zero keeps everything.
	MaxTurns int
}

// NewInMemoryStore creates a new in-memory history store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{MaxTurns: 200}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{turns: make(map[historyKey][]core.Message), maxTurns: opts.MaxTurns}
}

// AppendTurns appends turns for the pair, trimming the oldest beyond MaxTurns.
func (m *InMemoryStore) AppendTurns(_ context.Context, agent, projectID string, turns ...core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := historyKey{agent, projectID}
	h := append(m.turns[k], turns...)
	if m.maxTurns > 0 && len(h) > m.maxTurns {
		h = append([]core.Message(nil), h[len(h)-m.maxTurns:]...)
	}
	m.turns[k] = h
	return nil
}

// History returns a copy of the most recent limit turns (all when limit <= 0).
func (m *InMemoryStore) History(_ context.Context, agent, projectID string, limit int) ([]core.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.turns[historyKey{agent, projectID}]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]core.Message, len(h))
	copy(out, h)
	return out, nil
}

// Clear drops all turns for the pair.
func (m *InMemoryStore) Clear(_ context.Context, agent, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.turns, historyKey{agent, projectID})
	return nil
}
