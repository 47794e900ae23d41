package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/novelmesh/artifact"
	"github.com/hupe1980/novelmesh/core"
)

var (
	_ core.Store         = (*Store)(nil)
	_ core.HistoryStore  = (*Store)(nil)
	_ core.ArtifactStore = (*ArtifactStore)(nil)
)

// setupTestStore creates a new temporary database for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "novelmesh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCheckpoint(t *testing.T, phase core.Phase, node string, status core.CheckpointStatus, state *core.SystemState) core.Checkpoint {
	t.Helper()
	cp, err := core.NewCheckpoint(phase, node, status, state)
	require.NoError(t, err)
	return cp
}

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Migrate())

	var version int
	require.NoError(t, s.conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 5, version)
}

func TestStore_ProjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, err := s.LoadProjectState(ctx, "p1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	p := core.NewProjectState("p1", "Nightfall", "mystery")
	p.Artifacts["creative_direction"] = map[string]any{"tone": "noir"}
	p.AdvancePhase(core.PhaseInitialization)
	require.NoError(t, s.SaveProjectState(ctx, p))

	p.Title = "Nightfall II"
	require.NoError(t, s.SaveProjectState(ctx, p))

	loaded, err := s.LoadProjectState(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Nightfall II", loaded.Title)
	assert.Equal(t, core.PhaseDevelopment, loaded.CurrentPhase)
	assert.True(t, loaded.IsPhaseComplete(core.PhaseInitialization))
	assert.True(t, loaded.Has("creative_direction"))
	require.Len(t, loaded.PhaseHistory, 1)

	ids, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestStore_CheckpointLog(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	state := core.NewSystemState(core.NewProjectState("p1", "T", "g"), core.Input{Task: "draft"})

	_, err := s.LoadLatestCheckpoint(ctx, "p1", core.PhaseCreation)
	assert.ErrorIs(t, err, core.ErrNotFound)

	state.Steps = 1
	require.NoError(t, s.SaveCheckpoint(ctx, mustCheckpoint(t, core.PhaseCreation, "content_development_director", core.CheckpointCompleted, state)))
	state.Steps = 2
	state.RecordError("chapter_drafters", assert.AnError)
	require.NoError(t, s.SaveCheckpoint(ctx, mustCheckpoint(t, core.PhaseCreation, "chapter_drafters", core.CheckpointFailed, state)))

	cp, err := s.LoadLatestCheckpoint(ctx, "p1", core.PhaseCreation)
	require.NoError(t, err)
	assert.Equal(t, "chapter_drafters", cp.Node)
	assert.Equal(t, core.CheckpointFailed, cp.Status)
	assert.Equal(t, 2, cp.Step)
	require.NotNil(t, cp.State)
	assert.Len(t, cp.State.Errors, 1)
	assert.Equal(t, "p1", cp.State.Project.ProjectID)

	_, err = s.LoadLatestCheckpoint(ctx, "p1", core.PhaseRefinement)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_Feedback(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.AppendFeedback(ctx, "p1", core.Feedback{ID: "f1", Content: "slow middle", Scores: map[string]float64{"draft_completion": 90}}))
	require.NoError(t, s.AppendFeedback(ctx, "p1", core.Feedback{ID: "f2", Content: "great", Approved: true}))

	fbs, err := s.ListFeedback(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, fbs, 2)
	assert.Equal(t, "f1", fbs[0].ID)
	assert.Equal(t, 90.0, fbs[0].Scores["draft_completion"])
	assert.True(t, fbs[1].Approved)
}

func TestStore_History(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.AppendTurns(ctx, "dialogue_crafters", "p1",
		core.Message{Role: "user", Content: "one"},
		core.Message{Role: "assistant", Content: "two"},
		core.Message{Role: "user", Content: "three"},
	))

	all, err := s.History(ctx, "dialogue_crafters", "p1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Content)

	last, err := s.History(ctx, "dialogue_crafters", "p1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "two", last[0].Content)
	assert.Equal(t, "three", last[1].Content)

	require.NoError(t, s.Clear(ctx, "dialogue_crafters", "p1"))
	empty, err := s.History(ctx, "dialogue_crafters", "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_Artifacts(t *testing.T) {
	s := setupTestStore(t)
	a := s.Artifacts()

	require.NoError(t, a.Save("p1", "manuscript/creation", []byte(`{"chapter_1":"x"}`)))
	require.NoError(t, a.Save("p1", "manuscript/creation", []byte(`{"chapter_1":"y"}`)))

	data, err := a.Get("p1", "manuscript/creation")
	require.NoError(t, err)
	assert.JSONEq(t, `{"chapter_1":"y"}`, string(data))

	doc, phase, err := artifact.LatestManuscript(a, "p1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseCreation, phase)
	assert.Equal(t, "y", doc["chapter_1"])

	require.NoError(t, a.Delete("p1", "manuscript/creation"))
	assert.ErrorIs(t, a.Delete("p1", "manuscript/creation"), core.ErrNotFound)
	_, err = a.Get("p1", "manuscript/creation")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveProjectState(context.Background(), core.NewProjectState("p", "T", "g")))
	_, err = s.LoadProjectState(context.Background(), "p")
	assert.NoError(t, err)
}
