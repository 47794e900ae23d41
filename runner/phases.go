package runner

import "github.com/hupe1980/novelmesh/core"

// PhaseSpec holds the preconditions and default task of one phase.
type PhaseSpec struct {
	Phase core.Phase
	// RequiredFields must be present on the project before the phase runs.
	RequiredFields []string
	// Task is the input task used by CreateStory.
	Task string
}

// DefaultPhaseSpecs returns the workflow phases in order.
func DefaultPhaseSpecs() []PhaseSpec {
	return []PhaseSpec{
		{
			Phase:          core.PhaseInitialization,
			RequiredFields: []string{"title", "genre"},
			Task:           "Establish the creative vision, timeline and quality targets for the project",
		},
		{
			Phase:          core.PhaseDevelopment,
			RequiredFields: []string{"creative_direction"},
			Task:           "Develop the story structure, the world and the characters",
		},
		{
			Phase:          core.PhaseCreation,
			RequiredFields: []string{"world_building", "characters", "plot_structure"},
			Task:           "Draft the chapters and scenes of the manuscript",
		},
		{
			Phase:          core.PhaseRefinement,
			RequiredFields: []string{"scenes"},
			Task:           "Edit the manuscript for structure, prose, style and continuity",
		},
		{
			Phase:          core.PhaseFinalization,
			RequiredFields: []string{"style_metrics", "continuity_analysis"},
			Task:           "Prepare the manuscript for market positioning",
		},
	}
}

func specFor(specs []PhaseSpec, phase core.Phase) (PhaseSpec, bool) {
	for _, s := range specs {
		if s.Phase == phase {
			return s, true
		}
	}
	return PhaseSpec{}, false
}
