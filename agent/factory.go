package agent

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/logging"
	"github.com/hupe1980/novelmesh/model"
)

// FactoryOptions configures a Factory.
type FactoryOptions struct {
	Catalog  *Catalog
	Resolver *model.Resolver
	History  core.HistoryStore
	// Limiter throttles every model created by the factory. Nil disables
	// throttling.
	Limiter         *rate.Limiter
	EnableStreaming bool
	Logger          logging.Logger
}

// Factory builds ModelAgents from catalog specs.
type Factory struct {
	catalog   *Catalog
	resolver  *model.Resolver
	history   core.HistoryStore
	limiter   *rate.Limiter
	streaming bool
	logger    logging.Logger

	mu        sync.Mutex
	overrides map[string]func(projectID string) (core.Agent, error)
}

var _ core.AgentFactory = (*Factory)(nil)

// NewFactory creates a factory backed by DefaultCatalog and a resolver that
// only knows the mock provider unless overridden.
func NewFactory(optFns ...func(o *FactoryOptions)) *Factory {
	opts := FactoryOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Resolver == nil {
		opts.Resolver = model.NewResolver()
		opts.Resolver.RegisterMock("ok")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Factory{
		catalog:   opts.Catalog,
		resolver:  opts.Resolver,
		history:   opts.History,
		limiter:   opts.Limiter,
		streaming: opts.EnableStreaming,
		logger:    opts.Logger,
		overrides: map[string]func(string) (core.Agent, error){},
	}
}

// Catalog returns the factory's catalog.
func (f *Factory) Catalog() *Catalog { return f.catalog }

// Override replaces the construction of one agent. The name does not need to
// be in the catalog.
func (f *Factory) Override(name string, build func(projectID string) (core.Agent, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[name] = build
}

// CreateAgent implements core.AgentFactory. Unknown names and unresolvable
// models return a *core.ConfigurationError.
func (f *Factory) CreateAgent(name, projectID string) (core.Agent, error) {
	f.mu.Lock()
	build, ok := f.overrides[name]
	f.mu.Unlock()
	if ok {
		return build(projectID)
	}

	spec, ok := f.catalog.Lookup(name)
	if !ok {
		return nil, core.NewConfigurationError("unknown agent %q", name)
	}

	llm, err := f.resolver.Resolve(spec.Model, spec.Temperature, spec.MaxTokens)
	if err != nil {
		return nil, err
	}
	if f.limiter != nil {
		llm = model.NewRateLimited(llm, f.limiter)
	}

	prompt := spec.Prompt
	if prompt == "" {
		prompt = DefaultPromptTemplate
	}

	return NewModelAgent(spec.Name, llm, func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText(prompt)
		o.Description = spec.Description
		o.RequiredFields = spec.RequiredFields
		o.OutputKey = spec.OutputKey
		o.ProjectID = projectID
		o.History = f.history
		o.EnableStreaming = f.streaming
		o.Logger = f.logger
	}), nil
}

// Agents lists every agent the factory can build with its role.
func (f *Factory) Agents() []core.AgentInfo {
	names := f.catalog.Names()
	out := make([]core.AgentInfo, 0, len(names))
	for _, n := range names {
		s, _ := f.catalog.Lookup(n)
		out = append(out, core.AgentInfo{Name: n, Role: s.Role})
	}
	return out
}
