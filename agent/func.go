package agent

import (
	"context"

	"github.com/hupe1980/novelmesh/core"
)

// FuncAgent adapts a plain function to core.Agent. Required fields are
// checked before fn is called.
type FuncAgent struct {
	BaseAgent
	fn func(ctx context.Context, state *core.SystemState) (core.Update, error)
}

// NewFunc creates a FuncAgent.
func NewFunc(name string, fn func(ctx context.Context, state *core.SystemState) (core.Update, error), requiredFields ...string) *FuncAgent {
	return &FuncAgent{BaseAgent: NewBaseAgent(name, requiredFields...), fn: fn}
}

// Invoke implements core.Agent.
func (f *FuncAgent) Invoke(ctx context.Context, state *core.SystemState) (core.Update, error) {
	if err := f.CheckRequired(state); err != nil {
		return core.Update{}, err
	}
	return f.fn(ctx, state)
}
