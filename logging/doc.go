// Package logging provides a minimal logging interface and adapters for NovelMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, runner and agents use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and NovelMeshLogger built on Go's structured logging
//   - ZapAdapter wrapping a zap.SugaredLogger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(store, func(o *engine.Options) { o.Logger = logger })
package logging
