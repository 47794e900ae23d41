package evaluation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/novelmesh/core"
)

var _ Evaluator = (*GateEvaluator)(nil)

func TestGateEvaluator_CreationToRefinementFailsOnCoherence(t *testing.T) {
	e := NewDefaultEvaluator()
	qa := core.QualityAssessment{
		Scores: map[string]float64{
			"draft_completion":            100,
			"narrative_coherence_score":   70,
			"character_consistency_score": 85,
		},
		HumanApproved: true,
	}

	res, err := e.Evaluate("creation_to_refinement", qa)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, []FailedCriterion{{Criterion: "narrative_coherence_score", Threshold: 75, Actual: 70}}, res.FailedCriteria)
}

func TestGateEvaluator_ThresholdIsInclusive(t *testing.T) {
	e := NewDefaultEvaluator()
	qa := core.QualityAssessment{
		Scores: map[string]float64{
			"draft_completion":            100,
			"narrative_coherence_score":   75,
			"character_consistency_score": 80,
		},
		HumanApproved: true,
	}

	res, err := e.Evaluate("creation_to_refinement", qa)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.FailedCriteria)
}

func TestGateEvaluator_MissingMetricsAndApproval(t *testing.T) {
	e := NewDefaultEvaluator()

	res, err := e.Evaluate("finalization_to_complete", core.QualityAssessment{})
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.FailedCriteria, 3)
	assert.Equal(t, "marketing_package_completion", res.FailedCriteria[0].Criterion)
	assert.Equal(t, 0.0, res.FailedCriteria[0].Actual)
	assert.Equal(t, "final_quality_score", res.FailedCriteria[1].Criterion)
	assert.Equal(t, HumanApprovalCriterion, res.FailedCriteria[2].Criterion)
	assert.Contains(t, res.Reason, "human_approval")
}

func TestGateEvaluator_OnlyHumanApprovalMissing(t *testing.T) {
	e := NewDefaultEvaluator()
	qa := core.QualityAssessment{Scores: map[string]float64{"project_setup_completion": 100, "initial_research_depth": 90}}

	res, err := e.Evaluate("initialization_to_development", qa)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, []FailedCriterion{{Criterion: HumanApprovalCriterion, Threshold: 1, Actual: 0}}, res.FailedCriteria)
}

func TestGateEvaluator_UnknownTransition(t *testing.T) {
	e := NewDefaultEvaluator()

	res, err := e.Evaluate("drafting_to_publishing", core.QualityAssessment{HumanApproved: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.False(t, res.Passed)
	assert.NotEmpty(t, res.Reason)
}

func TestGateEvaluator_CoversEveryPhaseTransition(t *testing.T) {
	e := NewDefaultEvaluator()
	for _, p := range core.WorkflowPhases() {
		_, ok := e.Gate(core.TransitionName(p))
		assert.True(t, ok, p)
	}
	assert.Len(t, e.Transitions(), 5)
}

func TestGateEvaluator_ConcurrentUse(t *testing.T) {
	e := NewDefaultEvaluator()
	qa := core.QualityAssessment{Scores: map[string]float64{"draft_completion": 100}}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Evaluate("creation_to_refinement", qa)
			assert.NoError(t, err)
			assert.Len(t, res.FailedCriteria, 3)
		}()
	}
	wg.Wait()
}

func TestNewGateEvaluator_CopiesGates(t *testing.T) {
	gates := []Gate{{Transition: "a_to_b", Criteria: []Criterion{{Metric: "m", Threshold: 50}}}}
	e := NewGateEvaluator(gates...)
	gates[0].Criteria[0].Threshold = 0

	res, err := e.Evaluate("a_to_b", core.QualityAssessment{Scores: map[string]float64{"m": 10}})
	require.NoError(t, err)
	assert.False(t, res.Passed)
}

func TestParseGates(t *testing.T) {
	gates, err := ParseGates(map[string]map[string]any{
		"finalization_to_complete": {
			"marketing_package_completion": 100,
			"final_quality_score":          90.0,
			"human_final_approval":         true,
		},
	})
	require.NoError(t, err)
	require.Len(t, gates, 1)
	assert.True(t, gates[0].HumanApproval)
	assert.Equal(t, []Criterion{{Metric: "final_quality_score", Threshold: 90}, {Metric: "marketing_package_completion", Threshold: 100}}, gates[0].Criteria)

	_, err = ParseGates(map[string]map[string]any{"x_to_y": {"score": "high"}})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

