package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/flow"
	"github.com/hupe1980/novelmesh/internal/testutil"
	"github.com/hupe1980/novelmesh/logging"
	"github.com/hupe1980/novelmesh/store"
)

func scriptHappyPath(f *testutil.ScriptedFactory) {
	f.On("creative_director", testutil.Artifacts(map[string]any{"creative_direction": "gothic"}))
	f.On("quality_assessment_director", testutil.PassGates())
	f.On("structure_architect", testutil.Artifacts(map[string]any{"plot_structure": "three acts"}))
	f.On("world_building_expert", testutil.Artifacts(map[string]any{"world_building": "fog city"}))
	f.On("character_psychology_specialist", testutil.Artifacts(map[string]any{"characters": []any{"Ada"}}))
	f.On("scene_construction_specialists", testutil.Succeed(core.Update{
		Content:    "scenes",
		Artifacts:  core.Document{"scenes": []any{"arrival"}},
		Manuscript: core.Document{"chapter_1": "The fog came in."},
	}))
	f.On("rhythm_cadence_optimizer", testutil.Artifacts(map[string]any{"style_metrics": map[string]any{"avg_sentence": 14.0}}))
	f.On("continuity_manager", testutil.Artifacts(map[string]any{"continuity_analysis": "clean"}))
}

type fixture struct {
	factory *testutil.ScriptedFactory
	store   *store.InMemoryStore
	runner  *Runner
}

func newFixture(optFns ...func(o *Options)) *fixture {
	f := &fixture{factory: testutil.NewScriptedFactory(), store: store.NewInMemoryStore()}
	f.runner = New(flow.NewBuilder(f.factory), append([]func(o *Options){func(o *Options) { o.Store = f.store }}, optFns...)...)
	return f
}

func approvedProject(id string) *core.ProjectState {
	return testutil.NewProjectBuilder(id).Title("The Long Night").Genre("mystery").Approved(true).Build()
}

func TestCreateStory_AllPhases(t *testing.T) {
	f := newFixture()
	scriptHappyPath(f.factory)

	rep := f.runner.CreateStory(context.Background(), approvedProject("p1"))
	require.Equal(t, StatusSuccess, rep.Status, rep.Error)

	story := rep.Story
	assert.Equal(t, core.PhaseComplete, story.CurrentPhase)
	assert.Equal(t, core.StatusDone, story.Status)
	require.Len(t, story.PhaseHistory, 5)
	for i, ph := range core.WorkflowPhases() {
		assert.Equal(t, ph, story.PhaseHistory[i].Phase)
		assert.True(t, story.Has(ph.CompletionFlag()))
	}

	doc, phase, err := f.runner.Manuscript(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseFinalization, phase)
	assert.Equal(t, "The fog came in.", doc["chapter_1"])

	stored, err := f.store.LoadProjectState(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseComplete, stored.CurrentPhase)
}

func TestCreateStory_MissingTitleAndGenre(t *testing.T) {
	f := newFixture()

	rep := f.runner.CreateStory(context.Background(), &core.ProjectState{})
	assert.Equal(t, StatusError, rep.Status)
	assert.Equal(t, core.PhaseInitialization, rep.Phase)
	assert.Contains(t, rep.Error, "title")
	assert.Contains(t, rep.Error, "genre")
	assert.ErrorIs(t, rep.Err, core.ErrMissingPrecondition)
	assert.Empty(t, f.factory.Calls(), "no agent may be invoked")
}

func TestCreateStory_NilInitial(t *testing.T) {
	f := newFixture()
	rep := f.runner.CreateStory(context.Background(), nil)
	assert.Equal(t, StatusError, rep.Status)
	assert.Equal(t, core.PhaseInitialization, rep.Phase)
	require.NotNil(t, rep.Story)
	assert.NotEmpty(t, rep.Story.ProjectID)
}

func TestCreateStory_FailureThenResume(t *testing.T) {
	f := newFixture()
	scriptHappyPath(f.factory)
	ok := testutil.Artifacts(map[string]any{"creative_direction": "gothic"})
	// Calls: initialization specialist, development node 1, development node 3.
	f.factory.On("creative_director", testutil.Sequence(ok, ok, testutil.Fail(errors.New("provider 503")), ok))

	rep := f.runner.CreateStory(context.Background(), approvedProject("p1"))
	require.Equal(t, StatusError, rep.Status)
	assert.Equal(t, core.PhaseDevelopment, rep.Phase)
	assert.ErrorIs(t, rep.Err, core.ErrAgentExecution)
	require.Len(t, rep.Story.PhaseHistory, 1)
	assert.Equal(t, core.PhaseInitialization, rep.Story.PhaseHistory[0].Phase)

	stored, err := f.store.LoadProjectState(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.LastError)

	cp, err := f.store.LoadLatestCheckpoint(context.Background(), "p1", core.PhaseDevelopment)
	require.NoError(t, err)
	assert.Equal(t, core.CheckpointFailed, cp.Status)
	assert.Equal(t, "creative_director", cp.Node)

	rep = f.runner.CreateStory(context.Background(), &core.ProjectState{ProjectID: "p1"})
	require.Equal(t, StatusSuccess, rep.Status, rep.Error)
	assert.Equal(t, 1, f.factory.CallCount("structure_architect"), "development resumed instead of restarting")
	require.Len(t, rep.Story.PhaseHistory, 5)
	assert.Equal(t, core.PhaseInitialization, rep.Story.PhaseHistory[0].Phase)
	assert.Equal(t, core.PhaseDevelopment, rep.Story.PhaseHistory[1].Phase)
}

func TestCreateStory_GateNeverPassesExhausts(t *testing.T) {
	f := newFixture()
	scriptHappyPath(f.factory)

	unapproved := testutil.NewProjectBuilder("p1").Title("T").Genre("g").Build()
	rep := f.runner.CreateStory(context.Background(), unapproved)
	assert.Equal(t, StatusError, rep.Status)
	assert.Equal(t, core.PhaseInitialization, rep.Phase)
	assert.ErrorIs(t, rep.Err, core.ErrWorkflowExhausted)
	assert.Empty(t, rep.Story.PhaseHistory)
}

func TestCreateStory_FeedbackAfterExhaustionPassesGate(t *testing.T) {
	f := newFixture()
	scriptHappyPath(f.factory)
	f.factory.On("quality_assessment_director", testutil.Succeed(core.Update{Content: "assessed without scores"}))
	ctx := context.Background()

	unapproved := testutil.NewProjectBuilder("p1").Title("T").Genre("g").Build()
	rep := f.runner.CreateStory(ctx, unapproved)
	require.Equal(t, StatusError, rep.Status)
	require.ErrorIs(t, rep.Err, core.ErrWorkflowExhausted)
	assert.Equal(t, core.PhaseInitialization, rep.Phase)

	scores := testutil.PassingAssessment().Scores
	_, err := f.runner.AddFeedback(ctx, "p1", core.Feedback{Content: "looks right", Approved: true, Scores: scores})
	require.NoError(t, err)

	rep = f.runner.CreateStory(ctx, &core.ProjectState{ProjectID: "p1"})
	require.Equal(t, StatusSuccess, rep.Status, rep.Error)
	assert.Equal(t, core.PhaseComplete, rep.Story.CurrentPhase)
	require.Len(t, rep.Story.HumanFeedback, 1)
	assert.True(t, rep.Story.QualityAssessment.HumanApproved)
	assert.Equal(t, scores["initial_research_depth"], rep.Story.QualityAssessment.Scores["initial_research_depth"])

	stored, err := f.store.LoadProjectState(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, scores["project_setup_completion"], stored.QualityAssessment.Scores["project_setup_completion"])
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRunPhase_CompletesCurrentPhase(t *testing.T) {
	f := newFixture()
	scriptHappyPath(f.factory)
	ctx := context.Background()

	p, err := f.runner.CreateProject(ctx, "The Long Night", "mystery", "adult", 90000)
	require.NoError(t, err)
	_, err = f.runner.AddFeedback(ctx, p.ProjectID, core.Feedback{Content: "go", Approved: true, Scores: testutil.PassingAssessment().Scores})
	require.NoError(t, err)

	runID, err := f.runner.RunPhase(ctx, RunRequest{ProjectID: p.ProjectID, Task: "set the creative vision"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	require.NoError(t, f.runner.Wait(waitCtx(t), runID))

	got, err := f.runner.Project(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseDevelopment, got.CurrentPhase)
	assert.Equal(t, core.StatusIdle, got.Status)
	assert.Equal(t, "gothic", got.Artifacts["creative_direction"])
	assert.Equal(t, []string{"executive_director", "creative_director", "executive_director"}, f.factory.Agents())
}

func TestRunPhase_ResumeUsesNewTask(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, err := f.runner.CreateProject(ctx, "The Long Night", "mystery", "adult", 90000)
	require.NoError(t, err)

	runID, err := f.runner.RunPhase(ctx, RunRequest{ProjectID: p.ProjectID, Task: "plan"})
	require.NoError(t, err)
	require.ErrorIs(t, f.runner.Wait(waitCtx(t), runID), core.ErrWorkflowExhausted)
	before := len(f.factory.Calls())

	_, err = f.runner.AddFeedback(ctx, p.ProjectID, core.Feedback{Approved: true, Scores: testutil.PassingAssessment().Scores})
	require.NoError(t, err)

	runID, err = f.runner.RunPhase(ctx, RunRequest{ProjectID: p.ProjectID, Task: "analyse the target market"})
	require.NoError(t, err)
	require.NoError(t, f.runner.Wait(waitCtx(t), runID))

	calls := f.factory.Calls()[before:]
	require.Len(t, calls, 2)
	assert.Equal(t, "market_alignment_director", calls[0].Agent)
	assert.Equal(t, "analyse the target market", calls[0].Task)
	assert.Equal(t, "executive_director", calls[1].Agent)

	got, err := f.runner.Project(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseDevelopment, got.CurrentPhase)
}

func TestRunPhase_FinishedRunsArePruned(t *testing.T) {
	f := newFixture(func(o *Options) { o.RunRetention = 10 * time.Millisecond })
	ctx := context.Background()

	p, err := f.runner.CreateProject(ctx, "T", "g", "", 0)
	require.NoError(t, err)
	_, err = f.runner.AddFeedback(ctx, p.ProjectID, core.Feedback{Approved: true, Scores: testutil.PassingAssessment().Scores})
	require.NoError(t, err)

	runID, err := f.runner.RunPhase(ctx, RunRequest{ProjectID: p.ProjectID})
	require.NoError(t, err)
	require.NoError(t, f.runner.Wait(waitCtx(t), runID))

	assert.Eventually(t, func() bool {
		return errors.Is(f.runner.Wait(ctx, runID), core.ErrNotFound)
	}, time.Second, 5*time.Millisecond)

	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()
	assert.Empty(t, f.runner.runs)
}

func TestRunPhase_LogsCarryRunIdentity(t *testing.T) {
	zc, logs := observer.New(zap.InfoLevel)
	f := newFixture(func(o *Options) { o.Logger = logging.NewZapAdapter(zap.New(zc)) })
	ctx := context.Background()

	p, err := f.runner.CreateProject(ctx, "T", "g", "", 0)
	require.NoError(t, err)
	_, err = f.runner.AddFeedback(ctx, p.ProjectID, core.Feedback{Approved: true, Scores: testutil.PassingAssessment().Scores})
	require.NoError(t, err)

	runID, err := f.runner.RunPhase(ctx, RunRequest{ProjectID: p.ProjectID})
	require.NoError(t, err)
	require.NoError(t, f.runner.Wait(waitCtx(t), runID))

	for _, msg := range []string{"run started", "phase completed", "run finished"} {
		entries := logs.FilterMessage(msg).All()
		require.Len(t, entries, 1, msg)
		fields := entries[0].ContextMap()
		assert.Equal(t, p.ProjectID, fields["project_id"], msg)
		assert.Equal(t, runID, fields["run_id"], msg)
	}
}

func TestRunPhase_Errors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.runner.RunPhase(ctx, RunRequest{ProjectID: "missing"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	p, err := f.runner.CreateProject(ctx, "T", "g", "", 0)
	require.NoError(t, err)

	_, err = f.runner.RunPhase(ctx, RunRequest{ProjectID: p.ProjectID, Phase: "drafting"})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = f.runner.RunPhase(ctx, RunRequest{ProjectID: p.ProjectID, Phase: "complete"})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	assert.ErrorIs(t, f.runner.Wait(ctx, "nope"), core.ErrNotFound)
	assert.ErrorIs(t, f.runner.Cancel("nope"), core.ErrNotFound)
}

func TestRunPhase_OneRunPerProjectAndCancel(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	defer close(release)
	f.factory.On("executive_director", testutil.Hang(release))
	ctx := context.Background()

	p, err := f.runner.CreateProject(ctx, "T", "g", "", 0)
	require.NoError(t, err)

	runID, err := f.runner.RunPhase(ctx, RunRequest{ProjectID: p.ProjectID, Task: "plan"})
	require.NoError(t, err)

	_, err = f.runner.RunPhase(ctx, RunRequest{ProjectID: p.ProjectID, Task: "plan again"})
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, []string{runID}, f.runner.ActiveRuns())

	require.NoError(t, f.runner.Cancel(runID))
	err = f.runner.Wait(waitCtx(t), runID)
	var ae *core.AgentExecutionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, core.ErrorKindCancelled, ae.Kind)

	got, err := f.runner.Project(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Empty(t, f.runner.ActiveRuns())
}

func TestRunPhase_ProjectsAreIsolated(t *testing.T) {
	f := newFixture()
	f.factory.On("executive_director", func(_ context.Context, s *core.SystemState) (core.Update, error) {
		if s.Project.Title == "bad" {
			return core.Update{}, errors.New("boom")
		}
		return core.Update{Content: "ok"}, nil
	})
	ctx := context.Background()

	good, err := f.runner.CreateProject(ctx, "good", "g", "", 0)
	require.NoError(t, err)
	_, err = f.runner.AddFeedback(ctx, good.ProjectID, core.Feedback{Approved: true, Scores: testutil.PassingAssessment().Scores})
	require.NoError(t, err)
	bad, err := f.runner.CreateProject(ctx, "bad", "g", "", 0)
	require.NoError(t, err)

	goodRun, err := f.runner.RunPhase(ctx, RunRequest{ProjectID: good.ProjectID, Task: "begin"})
	require.NoError(t, err)
	badRun, err := f.runner.RunPhase(ctx, RunRequest{ProjectID: bad.ProjectID, Task: "begin"})
	require.NoError(t, err)

	assert.NoError(t, f.runner.Wait(waitCtx(t), goodRun))
	assert.ErrorIs(t, f.runner.Wait(waitCtx(t), badRun), core.ErrAgentExecution)

	g, _ := f.runner.Project(ctx, good.ProjectID)
	b, _ := f.runner.Project(ctx, bad.ProjectID)
	assert.Equal(t, core.PhaseDevelopment, g.CurrentPhase)
	assert.Equal(t, core.StatusFailed, b.Status)
	assert.Equal(t, core.PhaseInitialization, b.CurrentPhase)
}

func TestAddFeedback(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.runner.AddFeedback(ctx, "missing", core.Feedback{Content: "x"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	p, err := f.runner.CreateProject(ctx, "T", "g", "", 0)
	require.NoError(t, err)

	fb, err := f.runner.AddFeedback(ctx, p.ProjectID, core.Feedback{Content: "more tension", Type: "revision", Scores: map[string]float64{"draft_completion": 60}})
	require.NoError(t, err)
	assert.NotEmpty(t, fb.ID)
	assert.False(t, fb.Timestamp.IsZero())

	got, err := f.runner.Project(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.False(t, got.QualityAssessment.HumanApproved)
	assert.Equal(t, 60.0, got.QualityAssessment.Scores["draft_completion"])

	_, err = f.runner.AddFeedback(ctx, p.ProjectID, core.Feedback{Content: "approved", Approved: true})
	require.NoError(t, err)
	got, _ = f.runner.Project(ctx, p.ProjectID)
	assert.True(t, got.QualityAssessment.HumanApproved)

	log, err := f.store.ListFeedback(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Len(t, log, 2)
}

func TestManuscript_FallsBackToLiveState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, err := f.runner.CreateProject(ctx, "T", "g", "", 0)
	require.NoError(t, err)

	doc, phase, err := f.runner.Manuscript(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseInitialization, phase)
	assert.Empty(t, doc)

	_, _, err = f.runner.Manuscript(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
