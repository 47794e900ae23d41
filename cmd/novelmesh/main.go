package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/novelmesh"
	"github.com/hupe1980/novelmesh/config"
	"github.com/hupe1980/novelmesh/logging"
)

var (
	configPath string
	mockModels bool
)

var rootCmd = &cobra.Command{
	Use:   "novelmesh",
	Short: "Phase workflow engine for novel-writing agents",
	Long: `novelmesh drives a novel through five phases (initialization,
development, creation, refinement, finalization). In every phase a director
agent routes work to specialist agents until the phase's quality gate passes.

Configuration is read from --config and NOVELMESH_* environment variables.
Use --mock to run the workflow without model providers.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&mockModels, "mock", false, "Route every agent to the mock model")

	rootCmd.AddCommand(createProjectCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(runPhaseCmd)
	rootCmd.AddCommand(createStoryCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(manuscriptCmd)
	rootCmd.AddCommand(agentsCmd)
}

// open loads the configuration and wires a NovelMesh. The returned cleanup
// closes the store and flushes the logger.
func open() (*novelmesh.NovelMesh, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if mockModels {
		cfg.Models.Mock = true
	}

	logger, sync, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	m, err := novelmesh.New(func(o *novelmesh.Options) {
		o.Config = cfg
		o.Logger = logger
	})
	if err != nil {
		sync()
		return nil, nil, err
	}
	return m, func() {
		if err := m.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
		sync()
	}, nil
}

func newLogger(cfg config.LoggingConfig) (logging.Logger, func(), error) {
	level := logging.ParseLevel(cfg.Level)
	if cfg.Backend == "zap" {
		z, err := logging.NewZapLogger(level, cfg.Format)
		if err != nil {
			return nil, nil, err
		}
		return z, func() { _ = z.Sync() }, nil
	}
	return logging.NewSlogLogger(level, cfg.Format, false).WithComponent("cli"), func() {}, nil
}
