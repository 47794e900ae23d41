package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/flow"
	"github.com/hupe1980/novelmesh/logging"
	"github.com/hupe1980/novelmesh/store"
)

// Config defines tuning parameters of the step loop.
//
// Example:
//
//	cfg := Config{
//	    StepLimit:   40,
//	    CallTimeout: 2 * time.Minute,
//	}
type Config struct {
	// StepLimit bounds the node executions of one Execute call. Exceeding
	// it fails the run with *core.WorkflowExhaustedError. Zero means
	// unlimited (not recommended).
	StepLimit int

	// CallTimeout bounds every agent invocation. The engine stops waiting
	// when it expires even if the agent ignores its context. Zero disables
	// the timeout.
	CallTimeout time.Duration
}

// DefaultConfig provides the default step limit and call timeout.
//
// Configuration values:
//   - StepLimit: 25
//   - CallTimeout: 5m (typical generation latency is well below)
var DefaultConfig = Config{
	StepLimit:   25,
	CallTimeout: 5 * time.Minute,
}

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Config contains the loop parameters. Defaults to DefaultConfig.
	Config Config

	// Checkpoints receives one checkpoint per executed node. Defaults to an
	// in-memory store.
	Checkpoints core.CheckpointStore

	// Callbacks are invoked at node lifecycle points. Optional.
	Callbacks *CallbackManager

	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
}

// ExecuteOptions controls one Execute call.
type ExecuteOptions struct {
	// Resume continues from the latest checkpoint of the (project, phase)
	// pair instead of starting at the entry node.
	Resume bool
}

// Result is the outcome of one Execute call. It is returned alongside
// errors so callers can persist the state reached so far.
type Result struct {
	Phase core.Phase
	State *core.SystemState
	// Steps is the number of nodes executed by this call.
	Steps int
	// LastNode is the last node that completed successfully.
	LastNode string
	// ResumedFrom names the checkpointed node the run resumed from.
	ResumedFrom string
	Duration    time.Duration
}

// Engine drives one phase graph from its entry node to Terminal.
//
// Each step:
//  1. Checks for cancellation (returns without recording anything)
//  2. Counts the step against the limit
//  3. Invokes the node's agent on a copy of the state under the call timeout
//  4. Merges the update, appends the transcript message and checkpoints
//  5. Routes to the next node
//
// Agent failures are recorded in the state's error list, checkpointed with
// status failed and returned as *core.AgentExecutionError. Agent calls are
// strictly sequential; an Engine may serve many projects concurrently as
// long as each project has a single run in flight.
type Engine struct {
	config      Config
	checkpoints core.CheckpointStore
	callbacks   *CallbackManager
	logger      logging.Logger
}

// New creates a new Engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = store.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Engine{
		config:      opts.Config,
		checkpoints: opts.Checkpoints,
		callbacks:   opts.Callbacks,
		logger:      opts.Logger,
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Execute runs g over state until the director ends the phase.
//
// state is updated in place unless the run resumes from a checkpoint, in
// which case Result.State holds the restored state. On resume, feedback in
// state that the checkpoint has not seen is re-applied and state.Input
// replaces the checkpointed input when its task is set.
//
// The returned Result is non-nil whenever the run started, including on
// error.
func (e *Engine) Execute(ctx context.Context, g *flow.Graph, state *core.SystemState, opts ExecuteOptions) (*Result, error) {
	if g == nil {
		return nil, core.NewConfigurationError("nil phase graph")
	}
	if state == nil || state.Project == nil {
		return nil, core.NewConfigurationError("phase %s: nil project state", g.Phase)
	}

	start := time.Now()
	projectID := state.Project.ProjectID
	res := &Result{Phase: g.Phase, State: state}
	logger := e.logger

	node := g.Entry()
	if opts.Resume {
		var err error
		node, err = e.resume(ctx, g, res)
		if err != nil {
			return res, err
		}
	}
	state = res.State

	finish := func(err error) (*Result, error) {
		res.Duration = time.Since(start)
		logging.LogPhase(logger, string(g.Phase), res.Steps, res.Duration, err)
		return res, err
	}

	limiter := core.NewStepLimiter(e.config.StepLimit)
	for {
		if node == flow.Terminal {
			if _, err := e.checkpoint(ctx, g.Phase, flow.Terminal, core.CheckpointDone, state); err != nil {
				return finish(err)
			}
			return finish(nil)
		}

		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("phase %s cancelled before %s: %w", g.Phase, node, err))
		}

		if err := limiter.Increment(); err != nil {
			return finish(&core.WorkflowExhaustedError{
				Phase:    g.Phase,
				Limit:    e.config.StepLimit,
				Messages: append([]core.Message(nil), state.Messages...),
				Errors:   append([]core.ErrorRecord(nil), state.Errors...),
			})
		}

		n, ok := g.Node(node)
		if !ok {
			return finish(core.NewConfigurationError("phase %s: unknown node %q", g.Phase, node))
		}

		state.Steps++
		res.Steps++
		if err := e.callbacks.ExecuteCallbacks(ctx, &CallbackContext{Type: CallbackBeforeNode, Phase: g.Phase, Node: node, Step: state.Steps, State: state}); err != nil {
			return finish(fmt.Errorf("before %s: %w", node, err))
		}

		upd, err := e.invoke(ctx, n, state)
		if err != nil {
			state.RecordError(node, err)
			_, perr := e.checkpoint(ctx, g.Phase, node, core.CheckpointFailed, state)
			if cbErr := e.callbacks.ExecuteCallbacks(ctx, &CallbackContext{Type: CallbackOnError, Phase: g.Phase, Node: node, Step: state.Steps, State: state, Err: err}); cbErr != nil {
				logger.Warn("error callback failed", "node", node, "error", cbErr)
			}
			logger.Error("agent failed", "project_id", projectID, "phase", g.Phase, "node", node, "error", err)
			if perr != nil {
				return finish(errors.Join(err, perr))
			}
			return finish(err)
		}

		state.Apply(node, upd)
		if !n.IsDirector() {
			state.MarkVisited(node)
			recordTeamTask(g, state, node, upd)
		}
		res.LastNode = node

		if _, err := e.checkpoint(ctx, g.Phase, node, core.CheckpointCompleted, state); err != nil {
			return finish(err)
		}

		dec, err := g.Next(node, state)
		if err != nil {
			return finish(err)
		}
		if err := e.callbacks.ExecuteCallbacks(ctx, &CallbackContext{Type: CallbackAfterNode, Phase: g.Phase, Node: node, Step: state.Steps, State: state, Update: &upd, Decision: &dec}); err != nil {
			return finish(fmt.Errorf("after %s: %w", node, err))
		}
		logger.Debug("node completed", "project_id", projectID, "phase", g.Phase, "node", node, "next", dec.Next, "reason", dec.Reason)
		node = dec.Next
	}
}

// resume positions the run from the latest checkpoint and stores the
// restored state in res. Feedback recorded after the checkpoint is merged
// into the restored project and a caller input with a task replaces the
// checkpointed one.
func (e *Engine) resume(ctx context.Context, g *flow.Graph, res *Result) (string, error) {
	given := res.State
	cp, err := e.checkpoints.LoadLatestCheckpoint(ctx, given.Project.ProjectID, g.Phase)
	if errors.Is(err, core.ErrNotFound) {
		return g.Entry(), nil
	}
	if err != nil {
		return "", fmt.Errorf("load checkpoint for phase %s: %w", g.Phase, err)
	}
	if cp.Status == core.CheckpointDone || cp.State == nil || cp.State.Project == nil {
		return g.Entry(), nil
	}

	restored, err := cp.State.Copy()
	if err != nil {
		return "", &core.PersistenceError{Op: "restore checkpoint", Err: err}
	}
	restored.Project.MergeFeedback(given.Project.HumanFeedback)
	if given.Project.QualityAssessment.HumanApproved {
		restored.Project.QualityAssessment.HumanApproved = true
	}
	if given.Input.Task != "" {
		restored.Input = given.Input
	}
	res.State = restored
	res.ResumedFrom = cp.Node

	e.logger.Info("resuming phase", "project_id", given.Project.ProjectID, "phase", g.Phase, "node", cp.Node, "status", cp.Status)

	if cp.Status == core.CheckpointFailed {
		if _, ok := g.Node(cp.Node); !ok {
			return "", core.NewConfigurationError("phase %s: checkpointed node %q not in graph", g.Phase, cp.Node)
		}
		return cp.Node, nil
	}
	dec, err := g.Next(cp.Node, restored)
	if err != nil {
		return "", err
	}
	return dec.Next, nil
}

// recordTeamTask files the completed task with the specialist's team under
// the phase director.
func recordTeamTask(g *flow.Graph, state *core.SystemState, node string, upd core.Update) {
	team := g.TeamOf(node)
	if team == "" {
		return
	}
	ts := state.Project.TeamState(g.Entry(), team)
	ts.TasksCompleted = append(ts.TasksCompleted, core.Task{
		ID:          core.NewID(),
		Description: state.Input.Task,
		Assignee:    node,
		CreatedAt:   time.Now().UTC(),
	})
	if ts.WorkArtifacts == nil {
		ts.WorkArtifacts = core.Document{}
	}
	ts.WorkArtifacts[node] = upd.Content
}

type invokeResult struct {
	update core.Update
	err    error
}

// invoke calls the node's agent on a copy of state. It returns when the
// agent returns, the call timeout expires or ctx is cancelled, whichever
// comes first. Panics are converted to errors.
func (e *Engine) invoke(ctx context.Context, n *flow.Node, state *core.SystemState) (core.Update, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.config.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.config.CallTimeout)
	}
	defer cancel()

	input, err := state.Copy()
	if err != nil {
		return core.Update{}, core.NewAgentError(n.Name, core.ErrorKindInvalidInput, err)
	}
	ch := make(chan invokeResult, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- invokeResult{err: core.NewAgentError(n.Name, core.ErrorKindPanic, fmt.Errorf("panic: %v", r))}
			}
		}()
		u, err := n.Agent.Invoke(callCtx, input)
		ch <- invokeResult{update: u, err: err}
	}()

	var r invokeResult
	select {
	case r = <-ch:
	case <-callCtx.Done():
		kind := core.ErrorKindTimeout
		if ctx.Err() != nil {
			kind = core.ErrorKindCancelled
		}
		r = invokeResult{err: core.NewAgentError(n.Name, kind, callCtx.Err())}
	}
	logging.LogAgentCall(e.logger, n.Name, time.Since(start), r.err)

	if r.err != nil {
		return core.Update{}, asAgentError(ctx, n.Name, r.err)
	}
	if r.update.Error != "" {
		return core.Update{}, core.NewAgentError(n.Name, core.ErrorKindReported, errors.New(r.update.Error))
	}
	return r.update, nil
}

func asAgentError(ctx context.Context, name string, err error) error {
	var ae *core.AgentExecutionError
	if errors.As(err, &ae) {
		return err
	}
	kind := core.ErrorKindProvider
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = core.ErrorKindTimeout
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		kind = core.ErrorKindCancelled
	}
	return core.NewAgentError(name, kind, err)
}

// checkpoint appends a checkpoint. Writes are not cancelled with ctx so that
// a cancelled run still records its failure.
func (e *Engine) checkpoint(ctx context.Context, phase core.Phase, node string, status core.CheckpointStatus, state *core.SystemState) (*core.Checkpoint, error) {
	cp, err := core.NewCheckpoint(phase, node, status, state)
	if err != nil {
		err = &core.PersistenceError{Op: "snapshot state", Err: err}
		e.logger.Error("checkpoint failed", "project_id", state.Project.ProjectID, "phase", phase, "node", node, "error", err)
		return nil, err
	}
	if err := e.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
		var pe *core.PersistenceError
		if !errors.As(err, &pe) {
			err = &core.PersistenceError{Op: "save checkpoint", Err: err}
		}
		e.logger.Error("checkpoint failed", "project_id", cp.ProjectID, "phase", phase, "node", node, "error", err)
		return nil, err
	}
	if cbErr := e.callbacks.ExecuteCallbacks(ctx, &CallbackContext{Type: CallbackOnCheckpoint, Phase: phase, Node: node, Step: cp.Step, State: state, Checkpoint: &cp}); cbErr != nil {
		e.logger.Warn("checkpoint callback failed", "node", node, "error", cbErr)
	}
	return &cp, nil
}
