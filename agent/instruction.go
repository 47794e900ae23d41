package agent

import "github.com/hupe1980/novelmesh/core"

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from the run state.
type Provider interface {
	Instruction(*core.SystemState) (string, error)
}

// InstructionFunc is a functional adapter to allow ordinary functions to be used as Providers.
type InstructionFunc func(*core.SystemState) (string, error)

// Instruction implements Provider.
func (f InstructionFunc) Instruction(s *core.SystemState) (string, error) { return f(s) }

// Instruction represents either a static prompt template or a dynamic provider.
// Static text is rendered as a text/template against the prompt data of the
// run state.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.SystemState) (string, error)) Instruction {
	return Instruction{provider: InstructionFunc(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
// Static templates are returned unrendered.
func (i Instruction) Resolve(s *core.SystemState) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(s)
	}
	return i.text, nil
}
