package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/flow"
	"github.com/hupe1980/novelmesh/internal/testutil"
	"github.com/hupe1980/novelmesh/store"
)

const (
	director = "content_development_director"
	drafter  = "chapter_drafters"
)

type fixture struct {
	factory *testutil.ScriptedFactory
	store   *store.InMemoryStore
	graph   *flow.Graph
	engine  *Engine
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	f := &fixture{factory: testutil.NewScriptedFactory(), store: store.NewInMemoryStore()}
	g, err := flow.NewBuilder(f.factory).Build(core.PhaseCreation, "p1")
	require.NoError(t, err)
	f.graph = g
	f.engine = New(append([]func(o *Options){func(o *Options) { o.Checkpoints = f.store }}, optFns...)...)
	return f
}

func approvedState(task string) *core.SystemState {
	p := testutil.NewProjectBuilder("p1").Title("T").Genre("g").PassingGates().Build()
	return core.NewSystemState(p, core.Input{Task: task})
}

func TestExecute_ReachesTerminal(t *testing.T) {
	f := newFixture(t)
	f.factory.On(drafter, testutil.Succeed(core.Update{Content: "chapter", Manuscript: core.Document{"chapter_1": "text"}}))

	res, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{director, drafter, director}, f.factory.Agents())
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, director, res.LastNode)
	assert.Equal(t, "text", res.State.Project.Manuscript["chapter_1"])
	assert.Len(t, res.State.Messages, 4, "task plus three agent messages")

	team := res.State.Project.Directors[director].Teams["drafting"]
	require.NotNil(t, team)
	require.Len(t, team.TasksCompleted, 1)
	assert.Equal(t, drafter, team.TasksCompleted[0].Assignee)

	cps := f.store.Checkpoints("p1", core.PhaseCreation)
	require.Len(t, cps, 4)
	assert.Equal(t, core.CheckpointDone, cps[3].Status)
	for _, cp := range cps[:3] {
		assert.Equal(t, core.CheckpointCompleted, cp.Status)
	}
}

func TestExecute_StepLimitExhausted(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Config.StepLimit = 5 })
	s := core.NewSystemState(testutil.NewProjectBuilder("p1").Title("T").Genre("g").Build(), core.Input{Task: "keep going"})

	_, err := f.engine.Execute(context.Background(), f.graph, s, ExecuteOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrWorkflowExhausted)

	var we *core.WorkflowExhaustedError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 5, we.Limit)
	assert.Len(t, we.Messages, 6)
	assert.Equal(t, 5, f.factory.CallCount(director))
}

func TestExecute_AgentFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.factory.On(drafter, testutil.Fail(errors.New("provider 503")))

	res, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{})
	require.Error(t, err)

	var ae *core.AgentExecutionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, drafter, ae.Agent)
	assert.Equal(t, core.ErrorKindProvider, ae.Kind)

	require.Len(t, res.State.Errors, 1)
	assert.Equal(t, drafter, res.State.Errors[0].Agent)

	cp, err := f.store.LoadLatestCheckpoint(context.Background(), "p1", core.PhaseCreation)
	require.NoError(t, err)
	assert.Equal(t, core.CheckpointFailed, cp.Status)
	assert.Equal(t, drafter, cp.Node)
}

func TestExecute_ResumeFailedNode(t *testing.T) {
	f := newFixture(t)
	f.factory.On(drafter, testutil.FailTimes(1, errors.New("flaky"), testutil.Artifacts(map[string]any{"chapters": "c1"})))

	_, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{})
	require.Error(t, err)

	res, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{Resume: true})
	require.NoError(t, err)

	assert.Equal(t, drafter, res.ResumedFrom)
	assert.Equal(t, []string{director, drafter, drafter, director}, f.factory.Agents())
	assert.Len(t, res.State.Errors, 1, "earlier failure stays in the trail")
	assert.Equal(t, "c1", res.State.Project.Artifacts["chapters"])
}

func TestExecute_CancelBetweenNodesThenResume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cbs := NewCallbackManager()
	cbs.RegisterCallback(NewFunctionCallback(CallbackAfterNode, func(_ context.Context, cc *CallbackContext) error {
		if cc.Node == director {
			cancel()
		}
		return nil
	}))
	f := newFixture(t, func(o *Options) { o.Callbacks = cbs })

	_, err := f.engine.Execute(ctx, f.graph, approvedState("draft chapter one"), ExecuteOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{director}, f.factory.Agents())

	cp, err := f.store.LoadLatestCheckpoint(context.Background(), "p1", core.PhaseCreation)
	require.NoError(t, err)
	assert.Equal(t, core.CheckpointCompleted, cp.Status)

	f2 := &Engine{config: f.engine.config, checkpoints: f.store, logger: f.engine.logger}
	res, err := f2.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, director, res.ResumedFrom)
	assert.Equal(t, []string{director, drafter, director}, f.factory.Agents())
}

func TestExecute_ResumeAfterDoneStartsOver(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{})
	require.NoError(t, err)

	res, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter two"), ExecuteOptions{Resume: true})
	require.NoError(t, err)
	assert.Empty(t, res.ResumedFrom)
	assert.Equal(t, 6, len(f.factory.Agents()))
}

func TestExecute_CallTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	f := newFixture(t, func(o *Options) { o.Config.CallTimeout = 20 * time.Millisecond })
	f.factory.On(drafter, testutil.Hang(release))

	start := time.Now()
	_, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var ae *core.AgentExecutionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, core.ErrorKindTimeout, ae.Kind)
}

func TestExecute_PanicAndReportedErrors(t *testing.T) {
	cases := map[string]struct {
		behaviour testutil.Behaviour
		kind      core.ErrorKind
	}{
		"panic":    {testutil.Panic("boom"), core.ErrorKindPanic},
		"reported": {testutil.Succeed(core.Update{Error: "cannot draft without outline"}), core.ErrorKindReported},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.factory.On(drafter, tc.behaviour)

			res, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{})
			var ae *core.AgentExecutionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tc.kind, ae.Kind)
			assert.Len(t, res.State.Errors, 1)
		})
	}
}

type failingCheckpoints struct{}

func (failingCheckpoints) SaveCheckpoint(context.Context, core.Checkpoint) error {
	return &core.PersistenceError{Op: "save checkpoint", Err: errors.New("disk full")}
}

func (failingCheckpoints) LoadLatestCheckpoint(context.Context, string, core.Phase) (*core.Checkpoint, error) {
	return nil, core.ErrNotFound
}

func TestExecute_CheckpointFailure(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Checkpoints = failingCheckpoints{} })

	res, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistence)
	require.NotNil(t, res)
	assert.Equal(t, director, res.State.Output.Agent, "in-memory result is still returned")
}

func TestExecute_UncopyableUpdateFailsCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.factory.On(drafter, testutil.Artifacts(map[string]any{"chapters": map[string]any{"notify": make(chan int)}}))

	_, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistence)

	cp, err := f.store.LoadLatestCheckpoint(context.Background(), "p1", core.PhaseCreation)
	require.NoError(t, err)
	assert.Equal(t, director, cp.Node, "no checkpoint shares the agent's value")
}

func TestExecute_ResumeRestoresCheckpointedProject(t *testing.T) {
	f := newFixture(t)
	f.factory.On(drafter, testutil.FailTimes(1, errors.New("flaky"), testutil.Succeed(core.Update{Content: "c"})))

	_, err := f.engine.Execute(context.Background(), f.graph, approvedState("draft chapter one"), ExecuteOptions{})
	require.Error(t, err)

	given := approvedState("draft chapter one")
	given.Project.Artifacts["stale"] = "x"
	res, err := f.engine.Execute(context.Background(), f.graph, given, ExecuteOptions{Resume: true})
	require.NoError(t, err)
	assert.NotContains(t, res.State.Project.Artifacts, "stale")
	assert.NotSame(t, given.Project, res.State.Project)
}

func TestExecute_ResumeReproducesUninterruptedRun(t *testing.T) {
	script := func(f *testutil.ScriptedFactory) {
		f.On(director, testutil.Succeed(core.Update{Content: "plan", Artifacts: core.Document{"content_plan": "p"}}))
		f.On("scene_construction_specialists", testutil.Artifacts(map[string]any{"scenes": []any{"s1", "s2"}}))
	}

	clean := newFixture(t)
	script(clean.factory)
	want, err := clean.engine.Execute(context.Background(), clean.graph, approvedState("build the scene"), ExecuteOptions{})
	require.NoError(t, err)

	broken := newFixture(t)
	script(broken.factory)
	broken.factory.On("scene_construction_specialists", testutil.FailTimes(1, errors.New("timeout"), testutil.Artifacts(map[string]any{"scenes": []any{"s1", "s2"}})))
	_, err = broken.engine.Execute(context.Background(), broken.graph, approvedState("build the scene"), ExecuteOptions{})
	require.Error(t, err)
	got, err := broken.engine.Execute(context.Background(), broken.graph, approvedState("build the scene"), ExecuteOptions{Resume: true})
	require.NoError(t, err)

	assert.Equal(t, want.State.Project.Artifacts, got.State.Project.Artifacts)
	assert.Equal(t, want.State.Project.Manuscript, got.State.Project.Manuscript)
	assert.Equal(t, want.State.Project.QualityAssessment, got.State.Project.QualityAssessment)
	assert.Equal(t, want.State.Visited, got.State.Visited)
}

func TestExecute_NilInputs(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Execute(context.Background(), nil, approvedState("x"), ExecuteOptions{})
	assert.ErrorIs(t, err, core.ErrConfiguration)
	_, err = f.engine.Execute(context.Background(), f.graph, &core.SystemState{}, ExecuteOptions{})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestCallbackManager_StopsAtFirstError(t *testing.T) {
	cm := NewCallbackManager()
	var ran []string
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeNode, func(context.Context, *CallbackContext) error {
		ran = append(ran, "a")
		return errors.New("stop")
	}))
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeNode, func(context.Context, *CallbackContext) error {
		ran = append(ran, "b")
		return nil
	}))

	err := cm.ExecuteCallbacks(context.Background(), &CallbackContext{Type: CallbackBeforeNode})
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []string{"a"}, ran)

	var nilManager *CallbackManager
	assert.NoError(t, nilManager.ExecuteCallbacks(context.Background(), &CallbackContext{Type: CallbackAfterNode}))
}
