package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/memory"
	"github.com/hupe1980/novelmesh/model"
)

func newState(task string) *core.SystemState {
	p := core.NewProjectState("p1", "The Long Night", "mystery")
	return core.NewSystemState(p, core.Input{Task: task})
}

func TestModelAgent_PlainTextGoesToOutputKey(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.SetFallback("A brooding gothic tone.")

	a := NewModelAgent("creative_director", llm, func(o *ModelAgentOptions) {
		o.OutputKey = "creative_direction"
	})

	upd, err := a.Invoke(context.Background(), newState("set the tone"))
	require.NoError(t, err)
	assert.Equal(t, "A brooding gothic tone.", upd.Content)
	assert.Equal(t, "A brooding gothic tone.", upd.Artifacts["creative_direction"])

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "creative director")
	assert.Contains(t, reqs[0].Instructions, "The Long Night")
	assert.True(t, strings.HasPrefix(reqs[0].Messages[0].Content, "Task: set the tone"))
}

func TestModelAgent_StructuredOutput(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.SetFallback("```json\n{\"content\": \"done\", \"manuscript\": {\"chapter_1\": \"text\"}, \"quality_scores\": {\"draft_completion\": 55}}\n```")

	a := NewModelAgent("chapter_drafters", llm, func(o *ModelAgentOptions) { o.OutputKey = "chapters" })

	upd, err := a.Invoke(context.Background(), newState("draft"))
	require.NoError(t, err)
	assert.Equal(t, "done", upd.Content)
	assert.Equal(t, "text", upd.Manuscript["chapter_1"])
	assert.Equal(t, 55.0, upd.QualityScores["draft_completion"])
	assert.Equal(t, "done", upd.Artifacts["chapters"])
}

func TestModelAgent_MissingRequiredFields(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	a := NewModelAgent("chapter_drafters", llm, func(o *ModelAgentOptions) {
		o.RequiredFields = []string{"task", "characters"}
	})

	_, err := a.Invoke(context.Background(), newState("draft"))
	require.Error(t, err)

	var ae *core.AgentExecutionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, core.ErrorKindInvalidInput, ae.Kind)
	assert.Contains(t, err.Error(), "characters")
	assert.Empty(t, llm.Requests(), "model must not be called")
}

func TestModelAgent_ProviderErrorAndTimeout(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.SetError(errors.New("503 overloaded"))
	a := NewModelAgent("structural_editor", llm)

	_, err := a.Invoke(context.Background(), newState("edit"))
	var ae *core.AgentExecutionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, core.ErrorKindProvider, ae.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	llm.SetError(ctx.Err())
	_, err = a.Invoke(ctx, newState("edit"))
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, core.ErrorKindTimeout, ae.Kind)
}

func TestModelAgent_HistoryIsRecordedAndReplayed(t *testing.T) {
	hist := memory.NewInMemoryStore()
	llm := model.NewMockModel("m", "mock")
	llm.SetFallback("noted")

	a := NewModelAgent("continuity_manager", llm, func(o *ModelAgentOptions) {
		o.History = hist
		o.ProjectID = "p1"
	})

	_, err := a.Invoke(context.Background(), newState("first"))
	require.NoError(t, err)
	_, err = a.Invoke(context.Background(), newState("second"))
	require.NoError(t, err)

	turns, err := hist.History(context.Background(), "continuity_manager", "p1", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 4)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 3, "two history turns plus the new prompt")
}

func TestModelAgent_EmptyOutputIsMalformed(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	llm.AddResponse("Task: x", "   ")
	a := NewModelAgent("grammar_consistency_checker", llm)

	_, err := a.Invoke(context.Background(), newState("x"))
	var ae *core.AgentExecutionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, core.ErrorKindMalformedOutput, ae.Kind)
}

func TestModelAgent_DynamicInstruction(t *testing.T) {
	llm := model.NewMockModel("m", "mock")
	a := NewModelAgent("zeitgeist_analyst", llm, func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromFunc(func(s *core.SystemState) (string, error) {
			return "Analyse {{.genre}} for {{.title}}", nil
		})
	})

	_, err := a.Invoke(context.Background(), newState("analyse"))
	require.NoError(t, err)
	assert.Equal(t, "Analyse mystery for The Long Night", llm.Requests()[0].Instructions)
}
