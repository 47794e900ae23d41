package flow

import (
	"fmt"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/evaluation"
	"github.com/hupe1980/novelmesh/logging"
)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Blueprints overrides DefaultBlueprints. Phases missing from the map are
	// unknown to the builder.
	Blueprints map[core.Phase]Blueprint
	Evaluator  evaluation.Evaluator
	Logger     logging.Logger
}

// Builder turns blueprints into executable graphs, creating every agent
// through the factory.
type Builder struct {
	factory    core.AgentFactory
	blueprints map[core.Phase]Blueprint
	evaluator  evaluation.Evaluator
	logger     logging.Logger
}

// NewBuilder creates a builder over factory.
func NewBuilder(factory core.AgentFactory, optFns ...func(o *BuilderOptions)) *Builder {
	opts := BuilderOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Blueprints == nil {
		opts.Blueprints = DefaultBlueprints()
	}
	if opts.Evaluator == nil {
		opts.Evaluator = evaluation.NewDefaultEvaluator()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Builder{
		factory:    factory,
		blueprints: opts.Blueprints,
		evaluator:  opts.Evaluator,
		logger:     opts.Logger,
	}
}

// Blueprint returns the blueprint for phase.
func (b *Builder) Blueprint(phase core.Phase) (Blueprint, bool) {
	bp, ok := b.blueprints[phase]
	return bp, ok
}

// Build creates the graph of phase for projectID. Unknown phases, invalid
// blueprints and unknown agents return a *core.ConfigurationError.
func (b *Builder) Build(phase core.Phase, projectID string) (*Graph, error) {
	bp, ok := b.blueprints[phase]
	if !ok {
		return nil, core.NewConfigurationError("no graph for phase %q", phase)
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		Phase:     phase,
		Blueprint: bp,
		nodes:     make(map[string]*Node, len(bp.Specialists)+1),
		evaluator: b.evaluator,
	}

	add := func(name, role string) error {
		a, err := b.factory.CreateAgent(name, projectID)
		if err != nil {
			return fmt.Errorf("build %s graph: %w", phase, err)
		}
		g.nodes[name] = &Node{Name: name, Role: role, Agent: a}
		return nil
	}
	if err := add(bp.Director, RoleDirector); err != nil {
		return nil, err
	}
	for _, s := range bp.Specialists {
		if err := add(s, RoleSpecialist); err != nil {
			return nil, err
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	b.logger.Debug("phase graph built", "phase", phase, "project_id", projectID, "nodes", len(g.nodes))
	return g, nil
}
