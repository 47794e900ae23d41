package core

import "context"

// Agent defines the contract every NovelMesh agent implements.
//
// Agents are opaque collaborators: they receive the current SystemState and
// return an Update. The engine never inspects how the update was produced.
//
// Implementations must:
//   - Respect context cancellation and deadlines
//   - Treat the given state as read-only (the engine passes a copy)
//   - Report failures as an error (preferably *AgentExecutionError) or via Update.Error
type Agent interface {
	Name() string
	// RequiredFields lists the input fields that must be present before the
	// agent is invoked. Missing fields yield an invalid_input failure.
	RequiredFields() []string
	Invoke(ctx context.Context, state *SystemState) (Update, error)
}

// AgentFactory creates agents by name for a given project. Unknown names
// return a *ConfigurationError.
type AgentFactory interface {
	CreateAgent(name, projectID string) (Agent, error)
}

// AgentInfo carries identifying details about an agent used in logs and
// checkpoints. Role is "director" or "specialist".
type AgentInfo struct{ Name, Role string }
