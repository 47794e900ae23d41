// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer NovelMeshLogger with contextual
// helpers (project, run, component) and domain specific logging helpers for
// agent calls, phase runs and quality gates.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface for NovelMesh.
// Args are alternating key/value pairs, as with slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// ForRun scopes l to one project run so every entry carries project_id and
// run_id. Unknown Logger implementations get the ids prepended to the args
// of each call.
func ForRun(l Logger, projectID, runID string) Logger {
	switch v := l.(type) {
	case nil, NoOpLogger:
		return NoOpLogger{}
	case *NovelMeshLogger:
		return v.WithProject(projectID, runID)
	case *SlogAdapter:
		return &SlogAdapter{Logger: v.With("project_id", projectID, "run_id", runID)}
	case *ZapAdapter:
		return &ZapAdapter{sugar: v.sugar.With("project_id", projectID, "run_id", runID)}
	default:
		return &argsLogger{next: l, args: []any{"project_id", projectID, "run_id", runID}}
	}
}

type argsLogger struct {
	next Logger
	args []any
}

func (a *argsLogger) with(args []any) []any {
	return append(append(make([]any, 0, len(a.args)+len(args)), a.args...), args...)
}

func (a *argsLogger) Debug(msg string, args ...any) { a.next.Debug(msg, a.with(args)...) }
func (a *argsLogger) Info(msg string, args ...any)  { a.next.Info(msg, a.with(args)...) }
func (a *argsLogger) Warn(msg string, args ...any)  { a.next.Warn(msg, a.with(args)...) }
func (a *argsLogger) Error(msg string, args ...any) { a.next.Error(msg, a.with(args)...) }

// NovelMeshLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It should be cheap to copy via With* methods.
type NovelMeshLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	projectID string
	runID     string
}

// LoggerConfig configures construction of a NovelMeshLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	ProjectID   string
	RunID       string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr, AddSource: false, CustomAttrs: map[string]any{}}
}

// NewLogger builds a NovelMeshLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *NovelMeshLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	ctxAttrs := map[string]any{}
	for k, v := range cfg.CustomAttrs {
		ctxAttrs[k] = v
	}
	return &NovelMeshLogger{logger: slog.New(handler), level: cfg.Level, context: ctxAttrs, component: cfg.Component, projectID: cfg.ProjectID, runID: cfg.RunID}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *NovelMeshLogger) clone() *NovelMeshLogger {
	nl := *l
	nl.context = map[string]any{}
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithComponent sets the logical component (engine, runner, agent, etc.).
func (l *NovelMeshLogger) WithComponent(c string) *NovelMeshLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithProject attaches project and run identifiers.
func (l *NovelMeshLogger) WithProject(projectID, runID string) *NovelMeshLogger {
	nl := l.clone()
	nl.projectID = projectID
	nl.runID = runID
	return nl
}

func (l *NovelMeshLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.projectID != "" {
		attrs = append(attrs, slog.String("project_id", l.projectID))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *NovelMeshLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			attrs = append(attrs, slog.Any("!BADKEY", args[i]))
			break
		}
		attrs = append(attrs, slog.Any(fmt.Sprint(args[i]), args[i+1]))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs at debug level.
func (l *NovelMeshLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *NovelMeshLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *NovelMeshLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *NovelMeshLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// LogAgentCall records latency and outcome of one agent invocation.
func LogAgentCall(l Logger, agent string, dur time.Duration, err error) {
	if err != nil {
		l.Error("agent call failed", "agent", agent, "duration", dur, "error", err)
		return
	}
	l.Debug("agent call completed", "agent", agent, "duration", dur)
}

// LogPhase records aggregate metrics of a phase run.
func LogPhase(l Logger, phase string, steps int, dur time.Duration, err error) {
	if err != nil {
		l.Error("phase run failed", "phase", phase, "steps", steps, "duration", dur, "error", err)
		return
	}
	l.Info("phase run completed", "phase", phase, "steps", steps, "duration", dur)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new NovelMeshLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *NovelMeshLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
