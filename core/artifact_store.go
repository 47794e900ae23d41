package core

// ArtifactStore defines the interface for artifact persistence such as
// manuscript snapshots. Implementations should be thread-safe and scope
// artifacts by project identifier. Short method names (Save/Get/List/Delete)
// mirror other store interfaces for consistency.
type ArtifactStore interface {
	Save(projectID, artifactID string, data []byte) error
	Get(projectID, artifactID string) ([]byte, error)
	List(projectID string) ([]string, error)
	Delete(projectID, artifactID string) error
}
