package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemState_ApplyStripsReservedKeys(t *testing.T) {
	s := NewSystemState(NewProjectState("p1", "T", "g"), Input{Task: "draft chapter one"})
	require.Len(t, s.Messages, 1)

	s.Apply("chapter_drafters", Update{
		Content:       "Chapter one",
		Artifacts:     Document{"human_approved": true, "scenes": []any{"s1"}},
		Manuscript:    Document{"chapter_1": "It was a dark night."},
		QualityScores: map[string]float64{"draft_completion": 40},
	})

	assert.Equal(t, "chapter_drafters", s.Output.Agent)
	assert.Len(t, s.Messages, 2)
	assert.Equal(t, "assistant", s.Messages[1].Role)
	assert.False(t, s.Project.QualityAssessment.HumanApproved)
	assert.NotContains(t, s.Project.Artifacts, "human_approved")
	assert.True(t, s.Project.Has("scenes"))
	assert.Equal(t, 40.0, s.Project.QualityAssessment.Scores["draft_completion"])
}

func TestSystemState_CloneIndependence(t *testing.T) {
	s := NewSystemState(NewProjectState("p1", "T", "g"), Input{Task: "t"})
	s.MarkVisited("dialogue_crafters")

	c := s.Clone()
	c.RecordError("x", errors.New("boom"))
	c.MarkVisited("continuity_manager")
	c.Project.Artifacts["k"] = "v"

	assert.Empty(t, s.Errors)
	assert.Equal(t, []string{"dialogue_crafters"}, s.Visited)
	assert.NotContains(t, s.Project.Artifacts, "k")
	assert.True(t, c.HasVisited("dialogue_crafters"))
}

func TestSystemState_Field(t *testing.T) {
	s := NewSystemState(NewProjectState("p1", "T", "g"), Input{Task: "t", EditingType: "line"})

	_, ok := s.Field("task")
	assert.True(t, ok)
	_, ok = s.Field("content")
	assert.False(t, ok)
	v, ok := s.Field("editing_type")
	assert.True(t, ok)
	assert.Equal(t, "line", v)
	_, ok = s.Field("title")
	assert.True(t, ok)
}

func TestErrors_MatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{NewConfigurationError("bad"), ErrConfiguration},
		{NewAgentError("a", ErrorKindTimeout, errors.New("slow")), ErrAgentExecution},
		{&WorkflowExhaustedError{Phase: PhaseCreation, Limit: 25}, ErrWorkflowExhausted},
		{&MissingPreconditionError{Phase: PhaseCreation, Missing: []string{"characters"}}, ErrMissingPrecondition},
		{&PersistenceError{Op: "save", Err: errors.New("disk")}, ErrPersistence},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		assert.ErrorIs(t, wrapped, tc.sentinel, tc.err.Error())
	}

	var ae *AgentExecutionError
	require.ErrorAs(t, fmt.Errorf("x: %w", NewAgentError("a", ErrorKindProvider, errors.New("503"))), &ae)
	assert.Equal(t, ErrorKindProvider, ae.Kind)
}

func TestNewCheckpoint_SnapshotsState(t *testing.T) {
	s := NewSystemState(NewProjectState("p1", "T", "g"), Input{Task: "t"})
	s.Steps = 3

	cp, err := NewCheckpoint(PhaseCreation, "creative_director", CheckpointCompleted, s)
	require.NoError(t, err)
	s.Project.Artifacts["later"] = "x"

	assert.Equal(t, "p1", cp.ProjectID)
	assert.Equal(t, 3, cp.Step)
	assert.NotEmpty(t, cp.ID)
	assert.NotContains(t, cp.State.Project.Artifacts, "later")
}

func TestNewCheckpoint_RejectsUncopyableState(t *testing.T) {
	s := NewSystemState(NewProjectState("p1", "T", "g"), Input{Task: "t"})
	s.Project.Artifacts["outline"] = map[string]any{"notify": make(chan int)}

	_, err := NewCheckpoint(PhaseCreation, "structure_architect", CheckpointCompleted, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy project p1")

	_, err = s.Copy()
	require.Error(t, err)
	assert.Panics(t, func() { s.Clone() })
}
