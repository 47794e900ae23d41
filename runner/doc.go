// Package runner implements the workflow manager of NovelMesh.
//
// The Runner owns the ordered phase list and each phase's required-field
// preconditions. CreateStory walks all phases synchronously as a simple
// saga: completed phases are skipped, a failure stops the walk and leaves
// earlier progress persisted, and a later call for the same project resumes
// the failed phase from its last checkpoint. RunPhase starts a single phase
// in the background and returns a run id; its outcome is persisted on the
// project.
//
// # Responsibilities
//   - Phase ordering and preconditions
//   - Project persistence and manuscript snapshots after each phase
//   - Background run lifecycle (Wait, Cancel) with one run per project
//   - Human feedback intake
package runner
