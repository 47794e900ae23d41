package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/internal/util"
	"github.com/hupe1980/novelmesh/logging"
	"github.com/hupe1980/novelmesh/model"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction        Instruction
	Description        string
	RequiredFields     []string
	OutputKey          string
	ProjectID          string
	History            core.HistoryStore
	MaxHistoryMessages int
	EnableStreaming    bool
	Logger             logging.Logger
}

// ModelAgent integrates with a language model to turn the run state into
// an Update.
//
// Each invocation:
//   - Validates the declared input fields
//   - Renders the prompt template with project and input data
//   - Prepends the advisory conversation history for (agent, project)
//   - Performs exactly one generation call
//   - Parses structured JSON output, falling back to plain text
//   - Appends the exchange to the conversation history
type ModelAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	outputKey          string
	projectID          string
	history            core.HistoryStore
	maxHistoryMessages int
	enableStreaming    bool
	logger             logging.Logger
}

// NewModelAgent creates a new model-based agent.
//
// Defaults:
//   - A generic instruction naming the agent and the project
//   - 20-message conversation history window
//   - Non-streaming generation
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(DefaultPromptTemplate),
		MaxHistoryMessages: 20,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	a := &ModelAgent{
		BaseAgent:          NewBaseAgent(name, opts.RequiredFields...),
		llm:                llm,
		instruction:        opts.Instruction,
		outputKey:          opts.OutputKey,
		projectID:          opts.ProjectID,
		history:            opts.History,
		maxHistoryMessages: opts.MaxHistoryMessages,
		enableStreaming:    opts.EnableStreaming,
		logger:             opts.Logger,
	}
	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}
	return a
}

// Model returns the underlying model.
func (a *ModelAgent) Model() model.Model { return a.llm }

// Invoke implements core.Agent.
func (a *ModelAgent) Invoke(ctx context.Context, state *core.SystemState) (core.Update, error) {
	if err := a.CheckRequired(state); err != nil {
		return core.Update{}, err
	}

	instructions, err := a.renderInstruction(state)
	if err != nil {
		return core.Update{}, core.NewAgentError(a.Name(), core.ErrorKindInvalidInput, fmt.Errorf("render prompt: %w", err))
	}

	prompt := a.userPrompt(state)
	req := model.Request{
		Instructions: instructions,
		Messages:     append(a.loadHistory(ctx, state), model.Message{Role: "user", Content: prompt}),
		Stream:       a.enableStreaming,
	}

	start := time.Now()
	resp, err := model.GenerateText(ctx, a.llm, req)
	logging.LogAgentCall(a.logger, a.Name(), time.Since(start), err)
	if err != nil {
		return core.Update{}, core.NewAgentError(a.Name(), classify(ctx, err), err)
	}

	upd, err := a.parseOutput(resp.Text)
	if err != nil {
		return core.Update{}, core.NewAgentError(a.Name(), core.ErrorKindMalformedOutput, err)
	}

	a.appendHistory(ctx, state, prompt, resp.Text)
	return upd, nil
}

func classify(ctx context.Context, err error) core.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return core.ErrorKindTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return core.ErrorKindCancelled
	default:
		return core.ErrorKindProvider
	}
}

func (a *ModelAgent) renderInstruction(state *core.SystemState) (string, error) {
	text, err := a.instruction.Resolve(state)
	if err != nil {
		return "", err
	}
	return util.RenderTemplate(text, PromptData(a.Name(), a.Description(), state))
}

// PromptData flattens the run state into the values available to prompt
// templates.
func PromptData(agentName, description string, state *core.SystemState) map[string]any {
	data := map[string]any{
		"agent":        agentName,
		"description":  description,
		"task":         state.Input.Task,
		"content":      state.Input.Content,
		"editing_type": state.Input.EditingType,
	}
	if p := state.Project; p != nil {
		data["project_id"] = p.ProjectID
		data["title"] = p.Title
		data["genre"] = p.Genre
		data["target_audience"] = p.TargetAudience
		data["word_count_target"] = p.WordCountTarget
		data["phase"] = string(p.CurrentPhase)
		data["artifacts"] = map[string]any(p.Artifacts)
		keys := make([]any, 0, len(p.Artifacts))
		for k := range p.Artifacts {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].(string) < keys[j].(string) })
		data["artifact_keys"] = keys
	}
	return data
}

func (a *ModelAgent) userPrompt(state *core.SystemState) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(state.Input.Task)
	if state.Input.EditingType != "" {
		b.WriteString("\nEditing type: ")
		b.WriteString(state.Input.EditingType)
	}
	if state.Input.Content != "" {
		b.WriteString("\n\nContent:\n")
		b.WriteString(state.Input.Content)
	}
	if state.Project != nil && len(state.Project.Artifacts) > 0 {
		if ctxJSON, err := json.Marshal(state.Project.Artifacts); err == nil {
			b.WriteString("\n\nProject context:\n")
			b.Write(ctxJSON)
		}
	}
	return b.String()
}

func (a *ModelAgent) loadHistory(ctx context.Context, state *core.SystemState) []model.Message {
	if a.history == nil {
		return nil
	}
	turns, err := a.history.History(ctx, a.Name(), a.project(state), a.maxHistoryMessages)
	if err != nil {
		a.logger.Warn("load agent history failed", "agent", a.Name(), "error", err)
		return nil
	}
	msgs := make([]model.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, model.Message{Role: t.Role, Content: t.Content})
	}
	return msgs
}

func (a *ModelAgent) appendHistory(ctx context.Context, state *core.SystemState, prompt, response string) {
	if a.history == nil {
		return
	}
	now := time.Now().UTC()
	err := a.history.AppendTurns(ctx, a.Name(), a.project(state),
		core.Message{Role: "user", Agent: a.Name(), Content: prompt, Timestamp: now},
		core.Message{Role: "assistant", Agent: a.Name(), Content: response, Timestamp: now},
	)
	if err != nil {
		a.logger.Warn("append agent history failed", "agent", a.Name(), "error", err)
	}
}

func (a *ModelAgent) project(state *core.SystemState) string {
	if a.projectID != "" {
		return a.projectID
	}
	if state.Project != nil {
		return state.Project.ProjectID
	}
	return ""
}

// structuredOutput is the JSON shape agents may answer with.
type structuredOutput struct {
	Content         json.RawMessage    `json:"content"`
	Artifacts       core.Document      `json:"artifacts"`
	Manuscript      core.Document      `json:"manuscript"`
	ProgressMetrics core.Document      `json:"progress_metrics"`
	QualityScores   map[string]float64 `json:"quality_scores"`
	Error           string             `json:"error"`
}

// parseOutput converts model text into an Update. JSON objects (optionally
// fenced) are decoded as structuredOutput; anything else is plain text
// stored under the agent's output key.
func (a *ModelAgent) parseOutput(text string) (core.Update, error) {
	trimmed := strings.TrimSpace(stripFence(text))
	if trimmed == "" {
		return core.Update{}, fmt.Errorf("empty model output")
	}

	if strings.HasPrefix(trimmed, "{") {
		var out structuredOutput
		if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
			upd := core.Update{
				Content:         rawToString(out.Content),
				Artifacts:       out.Artifacts,
				Manuscript:      out.Manuscript,
				ProgressMetrics: out.ProgressMetrics,
				QualityScores:   out.QualityScores,
				Error:           out.Error,
			}
			if upd.Content == "" {
				upd.Content = trimmed
			}
			if a.outputKey != "" && len(out.Content) > 0 {
				if upd.Artifacts == nil {
					upd.Artifacts = core.Document{}
				}
				if _, exists := upd.Artifacts[a.outputKey]; !exists {
					var v any
					if json.Unmarshal(out.Content, &v) == nil {
						upd.Artifacts[a.outputKey] = v
					}
				}
			}
			return upd, nil
		}
	}

	upd := core.Update{Content: text}
	if a.outputKey != "" {
		upd.Artifacts = core.Document{a.outputKey: text}
	}
	return upd, nil
}

func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(t), "```")
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
