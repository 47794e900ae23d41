package evaluation

import (
	"fmt"
	"sort"

	"github.com/hupe1980/novelmesh/core"
)

// DefaultGates returns the built-in thresholds for every phase transition.
func DefaultGates() []Gate {
	return []Gate{
		{
			Transition: "initialization_to_development",
			Criteria: []Criterion{
				{Metric: "project_setup_completion", Threshold: 100},
				{Metric: "initial_research_depth", Threshold: 70},
			},
			HumanApproval: true,
		},
		{
			Transition: "development_to_creation",
			Criteria: []Criterion{
				{Metric: "character_development_completion", Threshold: 90},
				{Metric: "structure_planning_completion", Threshold: 85},
				{Metric: "world_building_completion", Threshold: 80},
			},
			HumanApproval: true,
		},
		{
			Transition: "creation_to_refinement",
			Criteria: []Criterion{
				{Metric: "draft_completion", Threshold: 100},
				{Metric: "narrative_coherence_score", Threshold: 75},
				{Metric: "character_consistency_score", Threshold: 80},
			},
			HumanApproval: true,
		},
		{
			Transition: "refinement_to_finalization",
			Criteria: []Criterion{
				{Metric: "developmental_editing_completion", Threshold: 100},
				{Metric: "line_editing_completion", Threshold: 100},
				{Metric: "technical_editing_completion", Threshold: 100},
				{Metric: "overall_quality_score", Threshold: 85},
			},
			HumanApproval: true,
		},
		{
			Transition: "finalization_to_complete",
			Criteria: []Criterion{
				{Metric: "marketing_package_completion", Threshold: 100},
				{Metric: "final_quality_score", Threshold: 90},
			},
			HumanApproval: true,
		},
	}
}

// ParseGates builds gates from the flat form
// {transition: {metric: threshold, human_approval_required: true}}.
// Flat maps carry no order, so numeric criteria are sorted by metric name.
// Both "human_approval_required" and "human_final_approval" request human
// approval.
func ParseGates(raw map[string]map[string]any) ([]Gate, error) {
	gates := make([]Gate, 0, len(raw))
	for transition, criteria := range raw {
		g := Gate{Transition: transition}
		for metric, v := range criteria {
			if isHumanKey(metric) {
				b, err := asBool(v)
				if err != nil {
					return nil, core.NewConfigurationError("gate %q: %s: %v", transition, metric, err)
				}
				g.HumanApproval = g.HumanApproval || b
				continue
			}
			f, err := asFloat(v)
			if err != nil {
				return nil, core.NewConfigurationError("gate %q: %s: %v", transition, metric, err)
			}
			g.Criteria = append(g.Criteria, Criterion{Metric: metric, Threshold: f})
		}
		sort.Slice(g.Criteria, func(i, j int) bool { return g.Criteria[i].Metric < g.Criteria[j].Metric })
		gates = append(gates, g)
	}
	sort.Slice(gates, func(i, j int) bool { return gates[i].Transition < gates[j].Transition })
	return gates, nil
}

func isHumanKey(k string) bool {
	return k == "human_approval_required" || k == "human_final_approval" || k == HumanApprovalCriterion
}

func asFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	}
	return 0, fmt.Errorf("threshold must be numeric, got %T", v)
}

func asBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return t == "true" || t == "yes", nil
	}
	if f, err := asFloat(v); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("approval flag must be boolean, got %T", v)
}
