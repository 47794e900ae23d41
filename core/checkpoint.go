package core

import "time"

// CheckpointStatus describes the node state captured by a checkpoint.
type CheckpointStatus string

const (
	// CheckpointCompleted is written after a node's update was merged.
	CheckpointCompleted CheckpointStatus = "completed"
	// CheckpointFailed is written after a node's agent failed.
	CheckpointFailed CheckpointStatus = "failed"
	// CheckpointDone is written when the phase run reached termination.
	CheckpointDone CheckpointStatus = "done"
)

// Checkpoint is one entry of the append-only checkpoint log of a
// (project, phase) pair.
type Checkpoint struct {
	ID        string           `json:"id"`
	ProjectID string           `json:"project_id"`
	Phase     Phase            `json:"phase"`
	Node      string           `json:"node"`
	Status    CheckpointStatus `json:"status"`
	Step      int              `json:"step"`
	State     *SystemState     `json:"state"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewCheckpoint snapshots state at node. It fails when state cannot be
// copied.
func NewCheckpoint(phase Phase, node string, status CheckpointStatus, state *SystemState) (Checkpoint, error) {
	snapshot, err := state.Copy()
	if err != nil {
		return Checkpoint{}, err
	}
	cp := Checkpoint{
		ID:        NewID(),
		Phase:     phase,
		Node:      node,
		Status:    status,
		State:     snapshot,
		CreatedAt: time.Now().UTC(),
	}
	if state != nil {
		cp.Step = state.Steps
		if state.Project != nil {
			cp.ProjectID = state.Project.ProjectID
		}
	}
	return cp, nil
}
