package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/novelmesh/core"
)

// BaseAgent bundles identity helpers shared by concrete agents. Embed it and
// supply an Invoke method to satisfy core.Agent.
type BaseAgent struct {
	name           string   // Catalog name
	description    string   // Detailed description of agent's purpose
	requiredFields []string // Input fields that must be present before Invoke
}

// NewBaseAgent constructs a BaseAgent with generated description (customizable via SetDescription).
func NewBaseAgent(name string, requiredFields ...string) BaseAgent {
	return BaseAgent{
		name:           name,
		description:    fmt.Sprintf("Agent %s", name),
		requiredFields: append([]string(nil), requiredFields...),
	}
}

// Name returns the catalog name of this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// RequiredFields returns a copy of the declared input fields.
func (b *BaseAgent) RequiredFields() []string {
	return append([]string(nil), b.requiredFields...)
}

// CheckRequired returns an invalid_input *core.AgentExecutionError naming
// every declared field absent from state.
func (b *BaseAgent) CheckRequired(state *core.SystemState) error {
	var missing []string
	for _, f := range b.requiredFields {
		if _, ok := state.Field(f); !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return core.NewAgentError(b.name, core.ErrorKindInvalidInput, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", ")))
	}
	return nil
}
