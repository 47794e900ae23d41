package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/flow"
	"github.com/hupe1980/novelmesh/logging"
)

// CallbackType defines the lifecycle points where callbacks run.
//
// Callbacks hook into the step loop without modifying it:
//   - BeforeNode: before an agent is invoked; an error aborts the run
//   - AfterNode: after the update was merged, checkpointed and routed
//   - OnError: after an agent failure was recorded and checkpointed
//   - OnCheckpoint: after every successful checkpoint write
type CallbackType string

const (
	// CallbackBeforeNode is triggered before a node's agent is invoked.
	CallbackBeforeNode CallbackType = "before_node"

	// CallbackAfterNode is triggered after a node completed and the next
	// node was chosen.
	CallbackAfterNode CallbackType = "after_node"

	// CallbackOnError is triggered when an agent invocation failed.
	CallbackOnError CallbackType = "on_error"

	// CallbackOnCheckpoint is triggered after a checkpoint was written.
	CallbackOnCheckpoint CallbackType = "on_checkpoint"
)

// CallbackContext carries the information available to a callback. Fields
// that do not apply to the callback type are zero.
type CallbackContext struct {
	Type       CallbackType
	Phase      core.Phase
	Node       string
	Step       int
	State      *core.SystemState
	Update     *core.Update
	Decision   *flow.Decision
	Checkpoint *core.Checkpoint
	Err        error
}

// Callback is an execution lifecycle hook. Callbacks run synchronously on
// the engine's goroutine and must not mutate State.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cc *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackAfterNode, func(ctx context.Context, cc *CallbackContext) error {
//	    fmt.Printf("%s -> %s\n", cc.Node, cc.Decision.Next)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cc *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, cc *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, cc *CallbackContext) error {
	return c.fn(ctx, cc)
}

// CallbackManager holds callbacks by type and runs them in registration
// order. The first error stops the remaining callbacks of that type.
//
// Registration and execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds cb for its type.
func (cm *CallbackManager) RegisterCallback(cb Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
}

// ExecuteCallbacks runs every callback registered for cc.Type.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, cc *CallbackContext) error {
	if cm == nil {
		return nil
	}
	cm.mu.RLock()
	cbs := append([]Callback(nil), cm.callbacks[cc.Type]...)
	cm.mu.RUnlock()

	for _, cb := range cbs {
		if err := cb.Execute(ctx, cc); err != nil {
			return err
		}
	}
	return nil
}

// LoggingCallback logs lifecycle events at debug level (errors at warn).
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs cc.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	args := []any{"callback", string(cc.Type), "phase", cc.Phase, "node", cc.Node, "step", cc.Step}
	if cc.Decision != nil {
		args = append(args, "next", cc.Decision.Next, "reason", cc.Decision.Reason)
	}
	if cc.Err != nil {
		c.logger.Warn("engine event", append(args, "error", cc.Err)...)
		return nil
	}
	c.logger.Debug("engine event", args...)
	return nil
}
