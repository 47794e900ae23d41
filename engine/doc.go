// Package engine executes phase graphs.
//
// The Engine walks a flow.Graph from the director (entry node) until the
// director routes to flow.Terminal. It is the state machine of the
// workflow: every node execution merges the agent's update into the shared
// core.SystemState, appends to the transcript and writes a checkpoint.
//
// # Bounds
//
// A step limit (default 25) bounds node executions per run and a per-call
// timeout (default 5 minutes) bounds each agent invocation. The engine
// returns as soon as the timeout expires even if the agent ignores its
// context.
//
// # Failures and resume
//
// A failing agent aborts the run: the error is recorded in the state, a
// checkpoint with status failed is written and a *core.AgentExecutionError
// is returned. There is no retry at this layer. Calling Execute again with
// ExecuteOptions{Resume: true} continues from the latest checkpoint: a
// failed node is re-run, after a completed node routing continues, and a
// finished (done) phase starts over at the entry node.
//
// # Callbacks
//
// CallbackManager hooks into BeforeNode, AfterNode, OnError and
// OnCheckpoint:
//
//	cbs := engine.NewCallbackManager()
//	cbs.RegisterCallback(engine.NewLoggingCallback(engine.CallbackAfterNode, logger))
//	eng := engine.New(func(o *engine.Options) {
//	    o.Checkpoints = st
//	    o.Callbacks = cbs
//	})
//	res, err := eng.Execute(ctx, graph, state, engine.ExecuteOptions{Resume: true})
package engine
