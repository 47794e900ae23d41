// Package core provides the foundational domain types and interfaces used by
// NovelMesh. It defines the core abstractions for:
//
//   - Phases (the ordered lifecycle of a novel project)
//   - ProjectState (durable per-project record) and SystemState (per-run state)
//   - Agents (opaque collaborators that turn state into an Update)
//   - Checkpoints and feedback records
//   - Pluggable stores for project state, checkpoints, feedback, history and artifacts
//   - The error taxonomy shared by all packages
//
// Implementation concerns (routing, execution, persistence backends, concrete
// agents) live in their own packages and depend only on these small
// interfaces.
package core
