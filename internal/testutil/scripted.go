package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/novelmesh/core"
)

// Behaviour is what a scripted agent does when invoked.
type Behaviour func(ctx context.Context, state *core.SystemState) (core.Update, error)

// Call records one scripted agent invocation.
type Call struct {
	Agent     string
	ProjectID string
	Task      string
}

// ScriptedFactory is a core.AgentFactory whose agents run per-name
// behaviours and record every call. Agents without a behaviour succeed with
// a short content string.
type ScriptedFactory struct {
	mu         sync.Mutex
	behaviours map[string]Behaviour
	fallback   Behaviour
	known      map[string]bool
	calls      []Call
}

var _ core.AgentFactory = (*ScriptedFactory)(nil)

// NewScriptedFactory creates an empty factory.
func NewScriptedFactory() *ScriptedFactory {
	return &ScriptedFactory{
		behaviours: map[string]Behaviour{},
		fallback: func(_ context.Context, s *core.SystemState) (core.Update, error) {
			return core.Update{Content: "ok"}, nil
		},
	}
}

// On sets the behaviour of agent (chainable).
func (f *ScriptedFactory) On(agent string, b Behaviour) *ScriptedFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviours[agent] = b
	return f
}

// Fallback sets the behaviour of agents without their own (chainable).
func (f *ScriptedFactory) Fallback(b Behaviour) *ScriptedFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = b
	return f
}

// Only restricts CreateAgent to names (chainable). Other names return a
// configuration error.
func (f *ScriptedFactory) Only(names ...string) *ScriptedFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known = map[string]bool{}
	for _, n := range names {
		f.known[n] = true
	}
	return f
}

// CreateAgent implements core.AgentFactory.
func (f *ScriptedFactory) CreateAgent(name, projectID string) (core.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.known != nil && !f.known[name] {
		return nil, core.NewConfigurationError("unknown agent %q", name)
	}
	return &scriptedAgent{name: name, projectID: projectID, f: f}, nil
}

// Calls returns all recorded calls in order.
func (f *ScriptedFactory) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Agents returns the agent names of all calls in order.
func (f *ScriptedFactory) Agents() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Agent
	}
	return out
}

// CallCount returns how often agent was invoked.
func (f *ScriptedFactory) CallCount(agent string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Agent == agent {
			n++
		}
	}
	return n
}

func (f *ScriptedFactory) behaviour(name string, in core.Input, projectID string) Behaviour {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Agent: name, ProjectID: projectID, Task: in.Task})
	if b, ok := f.behaviours[name]; ok {
		return b
	}
	return f.fallback
}

type scriptedAgent struct {
	name      string
	projectID string
	f         *ScriptedFactory
}

func (a *scriptedAgent) Name() string             { return a.name }
func (a *scriptedAgent) RequiredFields() []string { return nil }

func (a *scriptedAgent) Invoke(ctx context.Context, state *core.SystemState) (core.Update, error) {
	return a.f.behaviour(a.name, state.Input, a.projectID)(ctx, state)
}

// Succeed returns u on every call.
func Succeed(u core.Update) Behaviour {
	return func(context.Context, *core.SystemState) (core.Update, error) { return u, nil }
}

// Fail returns err on every call.
func Fail(err error) Behaviour {
	return func(context.Context, *core.SystemState) (core.Update, error) { return core.Update{}, err }
}

// FailTimes fails the first n calls with err and then runs next.
func FailTimes(n int, err error, next Behaviour) Behaviour {
	var mu sync.Mutex
	count := 0
	return func(ctx context.Context, s *core.SystemState) (core.Update, error) {
		mu.Lock()
		count++
		c := count
		mu.Unlock()
		if c <= n {
			return core.Update{}, err
		}
		return next(ctx, s)
	}
}

// Sequence runs the behaviours in turn; the last one repeats.
func Sequence(bs ...Behaviour) Behaviour {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, s *core.SystemState) (core.Update, error) {
		mu.Lock()
		b := bs[i]
		if i < len(bs)-1 {
			i++
		}
		mu.Unlock()
		return b(ctx, s)
	}
}

// Hang blocks until release is closed, ignoring ctx.
func Hang(release <-chan struct{}) Behaviour {
	return func(context.Context, *core.SystemState) (core.Update, error) {
		<-release
		return core.Update{Content: "late"}, nil
	}
}

// Panic panics with msg.
func Panic(msg string) Behaviour {
	return func(context.Context, *core.SystemState) (core.Update, error) {
		panic(fmt.Sprintf("scripted panic: %s", msg))
	}
}

// Artifacts succeeds with the given artifacts.
func Artifacts(kv map[string]any) Behaviour {
	return Succeed(core.Update{Content: "ok", Artifacts: core.Document(kv)})
}

// PassGates succeeds with scores meeting every default gate. Human approval
// still has to be granted on the project.
func PassGates() Behaviour {
	return Succeed(core.Update{Content: "assessed", QualityScores: PassingAssessment().Scores})
}
