package core

import "strings"

// Phase identifies a stage of the novel lifecycle.
type Phase string

const (
	PhaseInitialization Phase = "initialization"
	PhaseDevelopment    Phase = "development"
	PhaseCreation       Phase = "creation"
	PhaseRefinement     Phase = "refinement"
	PhaseFinalization   Phase = "finalization"
	PhaseComplete       Phase = "complete"
)

var workflowPhases = []Phase{
	PhaseInitialization,
	PhaseDevelopment,
	PhaseCreation,
	PhaseRefinement,
	PhaseFinalization,
}

// WorkflowPhases returns the runnable phases in execution order. The terminal
// PhaseComplete is not included.
func WorkflowPhases() []Phase {
	out := make([]Phase, len(workflowPhases))
	copy(out, workflowPhases)
	return out
}

// Valid reports whether p is a known phase (including PhaseComplete).
func (p Phase) Valid() bool {
	if p == PhaseComplete {
		return true
	}
	for _, wp := range workflowPhases {
		if wp == p {
			return true
		}
	}
	return false
}

// Next returns the phase that follows p. PhaseComplete and unknown phases
// map to PhaseComplete.
func (p Phase) Next() Phase {
	for i, wp := range workflowPhases {
		if wp == p && i+1 < len(workflowPhases) {
			return workflowPhases[i+1]
		}
	}
	return PhaseComplete
}

// CompletionFlag is the required-field name recording that p has completed,
// e.g. "creation_complete".
func (p Phase) CompletionFlag() string { return string(p) + "_complete" }

func (p Phase) String() string { return string(p) }

// ParsePhase converts s into a Phase. Matching is case-insensitive.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", NewConfigurationError("unknown phase %q", s)
	}
	return p, nil
}

// TransitionName returns the quality gate key guarding the exit from p,
// e.g. "creation_to_refinement".
func TransitionName(p Phase) string {
	return string(p) + "_to_" + string(p.Next())
}
