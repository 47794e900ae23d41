package core

import "context"

// ProjectStore persists ProjectState records. Load returns ErrNotFound for
// unknown ids. Implementations return copies so callers cannot mutate stored
// state.
type ProjectStore interface {
	SaveProjectState(ctx context.Context, p *ProjectState) error
	LoadProjectState(ctx context.Context, projectID string) (*ProjectState, error)
	ListProjects(ctx context.Context) ([]string, error)
}

// CheckpointStore persists the append-only checkpoint log.
// LoadLatestCheckpoint returns ErrNotFound when no checkpoint exists for the
// (project, phase) pair.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	LoadLatestCheckpoint(ctx context.Context, projectID string, phase Phase) (*Checkpoint, error)
}

// FeedbackStore persists human feedback in arrival order.
type FeedbackStore interface {
	AppendFeedback(ctx context.Context, projectID string, fb Feedback) error
	ListFeedback(ctx context.Context, projectID string) ([]Feedback, error)
}

// Store is the full persistence surface used by the workflow manager and
// engine.
type Store interface {
	ProjectStore
	CheckpointStore
	FeedbackStore
}

// HistoryStore keeps per-(agent, project) conversation turns. History is
// advisory context for agents; losing it never affects workflow correctness.
type HistoryStore interface {
	AppendTurns(ctx context.Context, agent, projectID string, turns ...Message) error
	// History returns the most recent limit turns in chronological order
	// (all turns when limit <= 0).
	History(ctx context.Context, agent, projectID string, limit int) ([]Message, error)
	Clear(ctx context.Context, agent, projectID string) error
}
