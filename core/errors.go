package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every typed error below matches its sentinel through
// errors.Is so callers can branch on category without type assertions.
var (
	ErrNotFound            = errors.New("not found")
	ErrConfiguration       = errors.New("configuration error")
	ErrAgentExecution      = errors.New("agent execution error")
	ErrWorkflowExhausted   = errors.New("workflow exhausted")
	ErrMissingPrecondition = errors.New("missing precondition")
	ErrPersistence         = errors.New("persistence error")
)

// ConfigurationError reports an unknown phase, agent, transition or model
// identifier, or otherwise invalid configuration.
type ConfigurationError struct {
	Msg string
	Err error
}

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Msg, e.Err)
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error        { return e.Err }
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ErrorKind classifies why an agent invocation failed.
type ErrorKind string

const (
	ErrorKindInvalidInput    ErrorKind = "invalid_input"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindProvider        ErrorKind = "provider"
	ErrorKindMalformedOutput ErrorKind = "malformed_output"
	ErrorKindCancelled       ErrorKind = "cancelled"
	ErrorKindPanic           ErrorKind = "panic"
	ErrorKindReported        ErrorKind = "reported"
)

// AgentExecutionError is raised when an agent fails or exceeds its call
// timeout.
type AgentExecutionError struct {
	Agent string
	Kind  ErrorKind
	Err   error
}

// NewAgentError wraps err as an AgentExecutionError for agent.
func NewAgentError(agent string, kind ErrorKind, err error) *AgentExecutionError {
	return &AgentExecutionError{Agent: agent, Kind: kind, Err: err}
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent %q failed (%s): %v", e.Agent, e.Kind, e.Err)
}

func (e *AgentExecutionError) Unwrap() error        { return e.Err }
func (e *AgentExecutionError) Is(target error) bool { return target == ErrAgentExecution }

// WorkflowExhaustedError is raised when a phase run exceeds its step limit
// without reaching termination. It carries the trail accumulated so far.
type WorkflowExhaustedError struct {
	Phase    Phase
	Limit    int
	Messages []Message
	Errors   []ErrorRecord
}

func (e *WorkflowExhaustedError) Error() string {
	return fmt.Sprintf("phase %s exhausted step limit %d (%d messages, %d errors)", e.Phase, e.Limit, len(e.Messages), len(e.Errors))
}

func (e *WorkflowExhaustedError) Is(target error) bool { return target == ErrWorkflowExhausted }

// MissingPreconditionError is raised before a phase runs when required
// project fields are absent.
type MissingPreconditionError struct {
	Phase   Phase
	Missing []string
}

func (e *MissingPreconditionError) Error() string {
	return fmt.Sprintf("phase %s missing required fields: %s", e.Phase, strings.Join(e.Missing, ", "))
}

func (e *MissingPreconditionError) Is(target error) bool { return target == ErrMissingPrecondition }

// PersistenceError reports a store failure after retries were exhausted.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error        { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
