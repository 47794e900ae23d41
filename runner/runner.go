package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/novelmesh/artifact"
	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/engine"
	"github.com/hupe1980/novelmesh/flow"
	"github.com/hupe1980/novelmesh/logging"
	"github.com/hupe1980/novelmesh/store"
)

// ErrRunInProgress is returned by RunPhase when the project already has a
// run in flight.
var ErrRunInProgress = errors.New("run already in progress for project")

// Status is the outcome of CreateStory.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Report is the structured result of CreateStory. On error Phase names the
// phase that failed and Story holds the state reached so far.
type Report struct {
	Status Status             `json:"status"`
	Story  *core.ProjectState `json:"story,omitempty"`
	Error  string             `json:"error,omitempty"`
	Phase  core.Phase         `json:"phase,omitempty"`
	Err    error              `json:"-"`
}

// RunRequest describes one background phase run. An empty Phase runs the
// project's current phase.
type RunRequest struct {
	ProjectID   string
	Phase       string
	Task        string
	Content     string
	EditingType string
}

// Options configures a Runner.
type Options struct {
	// PhaseSpecs lists the phases in execution order. Defaults to
	// DefaultPhaseSpecs.
	PhaseSpecs []PhaseSpec

	// Store persists projects, checkpoints and feedback. Defaults to an
	// in-memory store.
	Store core.Store

	// Artifacts receives a manuscript snapshot after every completed phase.
	// Defaults to an in-memory store.
	Artifacts core.ArtifactStore

	// Engine executes phase graphs. Defaults to an engine checkpointing into
	// Store.
	Engine *engine.Engine

	// RunRetention is how long a finished background run stays known to
	// Wait and Cancel. Defaults to DefaultRunRetention.
	RunRetention time.Duration

	Logger logging.Logger
}

// DefaultRunRetention is the default Options.RunRetention.
const DefaultRunRetention = time.Hour

type run struct {
	id        string
	projectID string
	phase     core.Phase
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	finished  time.Time
	logger    logging.Logger
}

// Runner is the workflow manager. It is safe for concurrent use; each
// project has at most one run in flight.
type Runner struct {
	builder   *flow.Builder
	specs     []PhaseSpec
	store     core.Store
	artifacts core.ArtifactStore
	engine    *engine.Engine
	logger    logging.Logger
	retention time.Duration

	mu   sync.Mutex
	runs map[string]*run
	busy map[string]string // project id -> in-flight run id
}

// New creates a Runner that builds phase graphs with builder.
func New(builder *flow.Builder, optFns ...func(o *Options)) *Runner {
	opts := Options{
		PhaseSpecs:   DefaultPhaseSpecs(),
		RunRetention: DefaultRunRetention,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore()
	}
	if opts.Artifacts == nil {
		opts.Artifacts = artifact.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.RunRetention <= 0 {
		opts.RunRetention = DefaultRunRetention
	}
	if opts.Engine == nil {
		st, logger := opts.Store, opts.Logger
		opts.Engine = engine.New(func(o *engine.Options) {
			o.Checkpoints = st
			o.Logger = logger
		})
	}
	return &Runner{
		builder:   builder,
		specs:     append([]PhaseSpec(nil), opts.PhaseSpecs...),
		store:     opts.Store,
		artifacts: opts.Artifacts,
		engine:    opts.Engine,
		logger:    opts.Logger,
		retention: opts.RunRetention,
		runs:      make(map[string]*run),
		busy:      make(map[string]string),
	}
}

// PhaseSpecs returns the configured phases in order.
func (r *Runner) PhaseSpecs() []PhaseSpec { return append([]PhaseSpec(nil), r.specs...) }

// CreateProject persists a new project in the initialization phase and
// returns it.
func (r *Runner) CreateProject(ctx context.Context, title, genre, targetAudience string, wordCountTarget int) (*core.ProjectState, error) {
	p := core.NewProjectState(core.NewID(), title, genre)
	p.TargetAudience = targetAudience
	p.WordCountTarget = wordCountTarget
	if err := r.store.SaveProjectState(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	r.logger.Info("project created", "project_id", p.ProjectID, "title", title)
	return p, nil
}

// Project loads a project. Unknown ids return core.ErrNotFound.
func (r *Runner) Project(ctx context.Context, projectID string) (*core.ProjectState, error) {
	return r.store.LoadProjectState(ctx, projectID)
}

// Manuscript returns the manuscript snapshot of the most advanced completed
// phase, or the live manuscript when no phase has completed yet.
func (r *Runner) Manuscript(ctx context.Context, projectID string) (core.Document, core.Phase, error) {
	doc, phase, err := artifact.LatestManuscript(r.artifacts, projectID)
	if err == nil {
		return doc, phase, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, "", err
	}
	p, err := r.store.LoadProjectState(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	return p.Manuscript, p.CurrentPhase, nil
}

// AddFeedback records human feedback on the project. Scores are merged into
// the quality assessment and an approving feedback grants human approval.
func (r *Runner) AddFeedback(ctx context.Context, projectID string, fb core.Feedback) (core.Feedback, error) {
	p, err := r.store.LoadProjectState(ctx, projectID)
	if err != nil {
		return core.Feedback{}, err
	}
	if fb.ID == "" {
		fb.ID = core.NewID()
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now().UTC()
	}
	if err := r.store.AppendFeedback(ctx, projectID, fb); err != nil {
		return core.Feedback{}, fmt.Errorf("append feedback: %w", err)
	}
	p.AddFeedback(fb)
	if err := r.store.SaveProjectState(ctx, p); err != nil {
		return core.Feedback{}, fmt.Errorf("save project: %w", err)
	}
	r.logger.Info("feedback recorded", "project_id", projectID, "feedback_id", fb.ID, "approved", fb.Approved)
	return fb, nil
}

// CreateStory runs every phase in order and returns a structured report.
//
// An empty ProjectID is generated. When a project with the given id is
// persisted, its stored state is used instead of initial, so calling
// CreateStory again after a failure continues where the last call stopped:
// completed phases are skipped and the failed phase resumes from its latest
// checkpoint. A phase whose required fields are missing fails with
// *core.MissingPreconditionError before any agent is invoked.
func (r *Runner) CreateStory(ctx context.Context, initial *core.ProjectState) Report {
	p, err := initial.Copy()
	if err != nil {
		return r.report(initial, core.PhaseInitialization, fmt.Errorf("copy project: %w", err))
	}
	if p == nil {
		p = &core.ProjectState{}
	}
	p.Normalize()
	if p.ProjectID == "" {
		p.ProjectID = core.NewID()
		p.CreatedAt = time.Now().UTC()
	} else {
		stored, err := r.store.LoadProjectState(ctx, p.ProjectID)
		switch {
		case err == nil:
			p = stored
		case !errors.Is(err, core.ErrNotFound):
			return r.report(p, p.CurrentPhase, fmt.Errorf("load project: %w", err))
		}
	}

	storyID := core.NewID()
	if err := r.acquire(p.ProjectID, storyID); err != nil {
		return r.report(p, p.CurrentPhase, err)
	}
	defer r.release(p.ProjectID, storyID)
	logger := logging.ForRun(r.logger, p.ProjectID, storyID)

	for _, spec := range r.specs {
		if p.IsPhaseComplete(spec.Phase) {
			continue
		}

		p, err = r.runPhase(ctx, logger, p, spec, core.Input{Task: spec.Task}, true)
		if err != nil {
			p.Status = core.StatusFailed
			p.LastError = err.Error()
			if serr := r.store.SaveProjectState(context.WithoutCancel(ctx), p); serr != nil {
				logger.Error("persist failed project", "error", serr)
			}
			return r.report(p, spec.Phase, err)
		}
	}

	p.Status = core.StatusDone
	p.LastError = ""
	if err := r.store.SaveProjectState(ctx, p); err != nil {
		return r.report(p, core.PhaseComplete, fmt.Errorf("save project: %w", err))
	}
	return Report{Status: StatusSuccess, Story: p}
}

func (r *Runner) report(p *core.ProjectState, phase core.Phase, err error) Report {
	return Report{Status: StatusError, Story: p, Error: err.Error(), Phase: phase, Err: err}
}

// runPhase checks preconditions, executes one phase and persists the
// outcome. advance controls whether a successful run completes the phase.
// The returned project is never nil.
func (r *Runner) runPhase(ctx context.Context, logger logging.Logger, p *core.ProjectState, spec PhaseSpec, in core.Input, advance bool) (*core.ProjectState, error) {
	if missing := p.MissingFields(spec.RequiredFields); len(missing) > 0 {
		return p, &core.MissingPreconditionError{Phase: spec.Phase, Missing: missing}
	}

	g, err := r.builder.Build(spec.Phase, p.ProjectID)
	if err != nil {
		return p, err
	}

	p.Status = core.StatusRunning
	p.LastError = ""
	start := time.Now()
	res, err := r.engine.Execute(ctx, g, core.NewSystemState(p, in), engine.ExecuteOptions{Resume: true})
	if res != nil && res.State != nil && res.State.Project != nil {
		p = res.State.Project
	}
	if err != nil {
		return p, err
	}

	if advance {
		p.AdvancePhase(spec.Phase)
	}
	p.Status = core.StatusIdle
	if err := r.store.SaveProjectState(ctx, p); err != nil {
		return p, fmt.Errorf("save project after %s: %w", spec.Phase, err)
	}
	if err := artifact.SaveManuscript(r.artifacts, p, spec.Phase); err != nil {
		return p, &core.PersistenceError{Op: "save manuscript", Err: err}
	}
	logger.Info("phase completed", "phase", spec.Phase, "duration", time.Since(start))
	return p, nil
}

// RunPhase starts one phase run in the background and returns its run id.
// The run is detached from ctx's cancellation; use Cancel to stop it.
//
// Unknown projects return core.ErrNotFound, unknown phases a
// *core.ConfigurationError and a project with a run in flight
// ErrRunInProgress. When the run finishes its outcome is persisted on the
// project: Status idle (or done) on success, failed with LastError
// otherwise. A successful run of the project's current phase completes it.
//
// A run resuming from a checkpoint uses the request's task and content, or
// the phase's default task when req.Task is empty, never the input stored
// with the checkpoint.
func (r *Runner) RunPhase(ctx context.Context, req RunRequest) (string, error) {
	p, err := r.store.LoadProjectState(ctx, req.ProjectID)
	if err != nil {
		return "", fmt.Errorf("load project %s: %w", req.ProjectID, err)
	}

	phase := p.CurrentPhase
	if strings.TrimSpace(req.Phase) != "" {
		if phase, err = core.ParsePhase(req.Phase); err != nil {
			return "", err
		}
	}
	spec, ok := specFor(r.specs, phase)
	if !ok {
		return "", core.NewConfigurationError("phase %q cannot be run", phase)
	}
	if _, ok := r.builder.Blueprint(phase); !ok {
		return "", core.NewConfigurationError("no graph for phase %q", phase)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rn := &run{id: core.NewID(), projectID: p.ProjectID, phase: phase, cancel: cancel, done: make(chan struct{})}
	rn.logger = logging.ForRun(r.logger, rn.projectID, rn.id)
	if err := r.acquire(p.ProjectID, rn.id); err != nil {
		cancel()
		return "", err
	}
	r.mu.Lock()
	r.pruneLocked(time.Now())
	r.runs[rn.id] = rn
	r.mu.Unlock()

	p.Status = core.StatusRunning
	if err := r.store.SaveProjectState(ctx, p); err != nil {
		cancel()
		r.finish(rn, err)
		return "", fmt.Errorf("mark project running: %w", err)
	}

	in := core.Input{Task: req.Task, Content: req.Content, EditingType: req.EditingType}
	if in.Task == "" {
		in.Task = spec.Task
	}
	advance := phase == p.CurrentPhase && !p.IsPhaseComplete(phase)

	rn.logger.Info("run started", "phase", phase, "task", in.Task)
	go func() {
		defer cancel()
		final, err := r.runPhase(runCtx, rn.logger, p, spec, in, advance)
		if err != nil {
			final.Status = core.StatusFailed
			final.LastError = err.Error()
			if serr := r.store.SaveProjectState(context.Background(), final); serr != nil {
				rn.logger.Error("persist failed run", "error", serr)
			}
		} else if final.CurrentPhase == core.PhaseComplete {
			final.Status = core.StatusDone
			if serr := r.store.SaveProjectState(context.Background(), final); serr != nil {
				err = serr
			}
		}
		r.finish(rn, err)
	}()

	return rn.id, nil
}

// acquire marks projectID as owned by runID.
func (r *Runner) acquire(projectID, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if active, ok := r.busy[projectID]; ok {
		return fmt.Errorf("%w: %s (run %s)", ErrRunInProgress, projectID, active)
	}
	r.busy[projectID] = runID
	return nil
}

func (r *Runner) release(projectID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(projectID, runID)
}

func (r *Runner) releaseLocked(projectID, runID string) {
	if r.busy[projectID] == runID {
		delete(r.busy, projectID)
	}
}

func (r *Runner) finish(rn *run, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn.err = err
	rn.finished = time.Now()
	r.releaseLocked(rn.projectID, rn.id)
	close(rn.done)
	r.pruneLocked(rn.finished)
	if err != nil {
		rn.logger.Warn("run failed", "phase", rn.phase, "error", err)
	} else {
		rn.logger.Info("run finished", "phase", rn.phase)
	}
}

// pruneLocked forgets runs that finished more than the retention ago.
func (r *Runner) pruneLocked(now time.Time) {
	for id, rn := range r.runs {
		if !rn.finished.IsZero() && now.Sub(rn.finished) > r.retention {
			delete(r.runs, id)
		}
	}
}

// Wait blocks until the run finishes and returns its error. Unknown run ids,
// including runs finished longer than the retention ago, return
// core.ErrNotFound.
func (r *Runner) Wait(ctx context.Context, runID string) error {
	r.mu.Lock()
	r.pruneLocked(time.Now())
	rn, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s: %w", runID, core.ErrNotFound)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rn.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return rn.err
	}
}

// Cancel stops an in-flight run. The latest checkpoint stays resumable.
// Cancelling a finished run is a no-op.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	rn, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s: %w", runID, core.ErrNotFound)
	}
	rn.cancel()
	return nil
}

// ActiveRuns returns the ids of runs in flight.
func (r *Runner) ActiveRuns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.busy))
	for _, id := range r.busy {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
