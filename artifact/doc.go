// Package artifact contains concrete implementations of core.ArtifactStore
// plus helpers for manuscript snapshots.
//
// The canonical ArtifactStore interface lives in the core package to avoid
// dependency cycles and keep domain contracts central. Implementation packages
// like this one provide storage backends that can be swapped without touching
// calling code.
package artifact
