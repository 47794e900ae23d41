package artifact

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/novelmesh/core"
)

const manuscriptPrefix = "manuscript/"

// ManuscriptID returns the artifact id of the manuscript snapshot taken after
// phase completed.
func ManuscriptID(phase core.Phase) string {
	return manuscriptPrefix + string(phase)
}

// SaveManuscript stores a JSON snapshot of the project's manuscript under
// ManuscriptID(phase).
func SaveManuscript(store core.ArtifactStore, p *core.ProjectState, phase core.Phase) error {
	data, err := json.Marshal(p.Manuscript)
	if err != nil {
		return fmt.Errorf("encode manuscript: %w", err)
	}
	return store.Save(p.ProjectID, ManuscriptID(phase), data)
}

// LoadManuscript returns the snapshot taken after phase.
func LoadManuscript(store core.ArtifactStore, projectID string, phase core.Phase) (core.Document, error) {
	data, err := store.Get(projectID, ManuscriptID(phase))
	if err != nil {
		return nil, err
	}
	doc := core.Document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode manuscript: %w", err)
	}
	return doc, nil
}

// LatestManuscript returns the snapshot of the most advanced completed phase
// and that phase. ErrNotFound is returned when no snapshot exists.
func LatestManuscript(store core.ArtifactStore, projectID string) (core.Document, core.Phase, error) {
	ids, err := store.List(projectID)
	if err != nil {
		return nil, "", err
	}
	have := map[string]bool{}
	for _, id := range ids {
		if strings.HasPrefix(id, manuscriptPrefix) {
			have[id] = true
		}
	}
	phases := core.WorkflowPhases()
	for i := len(phases) - 1; i >= 0; i-- {
		if have[ManuscriptID(phases[i])] {
			doc, err := LoadManuscript(store, projectID, phases[i])
			return doc, phases[i], err
		}
	}
	return nil, "", ErrNotFound
}
