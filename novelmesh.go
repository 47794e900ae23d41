// Package novelmesh provides a high-level façade over the phase workflow:
// agent catalog and factory, phase graphs, the execution engine, persistence
// and the workflow manager. Most applications interact with this package by:
//  1. Creating a NovelMesh via New() from a config.Config
//  2. Creating a project and recording human feedback on it
//  3. Running single phases in the background (RunPhase) or the whole
//     workflow synchronously (CreateStory)
//
// All defaults are safe for local development and testing. Production
// deployments typically select the sqlite store driver and real model
// providers.
package novelmesh

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/novelmesh/agent"
	"github.com/hupe1980/novelmesh/artifact"
	"github.com/hupe1980/novelmesh/config"
	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/engine"
	"github.com/hupe1980/novelmesh/evaluation"
	"github.com/hupe1980/novelmesh/flow"
	"github.com/hupe1980/novelmesh/logging"
	"github.com/hupe1980/novelmesh/memory"
	"github.com/hupe1980/novelmesh/model"
	"github.com/hupe1980/novelmesh/model/anthropic"
	"github.com/hupe1980/novelmesh/model/openai"
	"github.com/hupe1980/novelmesh/runner"
	"github.com/hupe1980/novelmesh/store"
	"github.com/hupe1980/novelmesh/store/sqlite"
)

// MockModel is the model id every agent uses when config.Models.Mock is set.
const MockModel = "mock/novelmesh"

// Options configures the NovelMesh instance.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config

	// Stores (derived from Config.Store when not provided)
	Store     core.Store
	Artifacts core.ArtifactStore
	History   core.HistoryStore

	// Factory overrides the catalog-backed agent factory.
	Factory core.AgentFactory

	// Callbacks observe every node the engine executes.
	Callbacks *engine.CallbackManager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// NovelMesh is the high-level façade aggregating the workflow components.
type NovelMesh struct {
	cfg     *config.Config
	factory core.AgentFactory
	runner  *runner.Runner
	db      *sqlite.Store
	logger  logging.Logger
}

// New wires a NovelMesh. With the sqlite driver the database is opened and
// migrated; call Close to release it.
func New(optFns ...func(o *Options)) (*NovelMesh, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	cfg := opts.Config

	m := &NovelMesh{cfg: cfg, logger: opts.Logger}

	if opts.Store == nil && cfg.Store.Driver == config.DriverSQLite {
		db, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, &core.PersistenceError{Op: "open " + cfg.Store.Path, Err: err}
		}
		m.db = db
		opts.Store = db
		if opts.Artifacts == nil {
			opts.Artifacts = db.Artifacts()
		}
		if opts.History == nil {
			opts.History = db
		}
	}
	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore()
	}
	if opts.Artifacts == nil {
		opts.Artifacts = artifact.NewInMemoryStore()
	}
	if opts.History == nil {
		opts.History = memory.NewInMemoryStore()
	}

	st := store.NewRetrying(opts.Store, func(o *store.RetryOptions) {
		o.MaxTries = cfg.Store.RetryAttempts
		o.InitialInterval = cfg.Store.RetryInitialInterval
		o.MaxInterval = cfg.Store.RetryMaxInterval
		o.Logger = opts.Logger
	})

	gates, err := cfg.QualityGates()
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	if opts.Factory == nil {
		f, err := newFactory(cfg, gates, opts.History, opts.Logger)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		opts.Factory = f
	}
	m.factory = opts.Factory

	builder := flow.NewBuilder(opts.Factory, func(o *flow.BuilderOptions) {
		o.Evaluator = evaluation.NewGateEvaluator(gates...)
		o.Logger = opts.Logger
	})

	eng := engine.New(func(o *engine.Options) {
		o.Config = engine.Config{StepLimit: cfg.Engine.StepLimit, CallTimeout: cfg.Engine.CallTimeout}
		o.Checkpoints = st
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})

	m.runner = runner.New(builder, func(o *runner.Options) {
		o.Store = st
		o.Artifacts = opts.Artifacts
		o.Engine = eng
		o.Logger = opts.Logger
	})

	return m, nil
}

func newFactory(cfg *config.Config, gates []evaluation.Gate, history core.HistoryStore, logger logging.Logger) (*agent.Factory, error) {
	catalog := agent.DefaultCatalog()
	if cfg.Catalog.Path != "" {
		c, err := agent.LoadCatalogFile(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	if cfg.Models.Mock {
		catalog = catalog.WithModel(MockModel)
	}

	resolver := model.NewResolver()
	resolver.Register("anthropic", anthropic.Provider(cfg.Models.AnthropicAPIKey))
	resolver.Register("openai", openai.Provider(cfg.Models.OpenAIAPIKey))
	resolver.RegisterMock(mockResponse(gates))

	return agent.NewFactory(func(o *agent.FactoryOptions) {
		o.Catalog = catalog
		o.Resolver = resolver
		o.History = history
		if cfg.Models.RequestsPerSecond > 0 {
			o.Limiter = model.NewLimiter(cfg.Models.RequestsPerSecond, cfg.Models.Burst)
		}
		o.Logger = logger
	}), nil
}

// mockResponse is a structured agent reply whose scores satisfy every gate.
// Human approval still has to be recorded as feedback.
func mockResponse(gates []evaluation.Gate) string {
	scores := map[string]float64{}
	for _, g := range gates {
		for _, c := range g.Criteria {
			if c.Threshold > scores[c.Metric] {
				scores[c.Metric] = c.Threshold
			}
		}
	}
	b, _ := json.Marshal(map[string]any{
		"content":        "mock draft",
		"quality_scores": scores,
	})
	return string(b)
}

// Config returns the configuration the instance was built from.
func (m *NovelMesh) Config() *config.Config { return m.cfg }

// Runner exposes the workflow manager.
func (m *NovelMesh) Runner() *runner.Runner { return m.runner }

// Agents lists the catalog agents when the catalog-backed factory is used.
func (m *NovelMesh) Agents() []core.AgentInfo {
	if f, ok := m.factory.(*agent.Factory); ok {
		return f.Agents()
	}
	return nil
}

// CreateProject persists a new project.
func (m *NovelMesh) CreateProject(ctx context.Context, title, genre, targetAudience string, wordCountTarget int) (*core.ProjectState, error) {
	return m.runner.CreateProject(ctx, title, genre, targetAudience, wordCountTarget)
}

// Project loads a project.
func (m *NovelMesh) Project(ctx context.Context, projectID string) (*core.ProjectState, error) {
	return m.runner.Project(ctx, projectID)
}

// AddFeedback records human feedback.
func (m *NovelMesh) AddFeedback(ctx context.Context, projectID string, fb core.Feedback) (core.Feedback, error) {
	return m.runner.AddFeedback(ctx, projectID, fb)
}

// CreateStory runs the whole workflow synchronously.
func (m *NovelMesh) CreateStory(ctx context.Context, initial *core.ProjectState) runner.Report {
	return m.runner.CreateStory(ctx, initial)
}

// RunPhase starts a background phase run and returns its id.
func (m *NovelMesh) RunPhase(ctx context.Context, req runner.RunRequest) (string, error) {
	return m.runner.RunPhase(ctx, req)
}

// RunPhaseSync starts a phase run and waits for it to finish.
func (m *NovelMesh) RunPhaseSync(ctx context.Context, req runner.RunRequest) error {
	runID, err := m.runner.RunPhase(ctx, req)
	if err != nil {
		return err
	}
	if err := m.runner.Wait(ctx, runID); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	return nil
}

// Manuscript returns the latest manuscript snapshot of a project.
func (m *NovelMesh) Manuscript(ctx context.Context, projectID string) (core.Document, core.Phase, error) {
	return m.runner.Manuscript(ctx, projectID)
}

// Close releases the database, if one was opened.
func (m *NovelMesh) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
