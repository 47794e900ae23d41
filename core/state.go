package core

import (
	"strings"
	"time"
)

// Input is the caller's request for a phase run.
type Input struct {
	Task        string `json:"task"`
	Content     string `json:"content,omitempty"`
	EditingType string `json:"editing_type,omitempty"`
}

// Output is the most recent agent output.
type Output struct {
	Agent     string    `json:"agent"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is one entry of the run transcript.
type Message struct {
	Role      string    `json:"role"`
	Agent     string    `json:"agent,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorRecord captures one agent failure.
type ErrorRecord struct {
	Agent     string    `json:"agent"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemState is the per-run working state passed between agents.
// Messages and Errors are append-only.
type SystemState struct {
	Project  *ProjectState `json:"project"`
	Input    Input         `json:"input"`
	Output   Output        `json:"output"`
	Messages []Message     `json:"messages"`
	Errors   []ErrorRecord `json:"errors"`
	Visited  []string      `json:"visited"`
	Steps    int           `json:"steps"`
}

// NewSystemState starts a run over project with the given input. The task is
// recorded as the first user message when non-empty.
func NewSystemState(project *ProjectState, in Input) *SystemState {
	if project != nil {
		project.Normalize()
	}
	s := &SystemState{
		Project:  project,
		Input:    in,
		Messages: []Message{},
		Errors:   []ErrorRecord{},
		Visited:  []string{},
	}
	if in.Task != "" {
		s.Messages = append(s.Messages, Message{Role: "user", Content: in.Task, Timestamp: time.Now().UTC()})
	}
	return s
}

// Field returns the named input field used for agent input validation.
func (s *SystemState) Field(name string) (string, bool) {
	switch name {
	case "task":
		return s.Input.Task, s.Input.Task != ""
	case "content":
		return s.Input.Content, s.Input.Content != ""
	case "editing_type":
		return s.Input.EditingType, s.Input.EditingType != ""
	}
	if s.Project != nil && s.Project.Has(name) {
		return name, true
	}
	return "", false
}

// RecordError appends an error record for agent.
func (s *SystemState) RecordError(agent string, err error) {
	s.Errors = append(s.Errors, ErrorRecord{Agent: agent, Error: err.Error(), Timestamp: time.Now().UTC()})
}

// HasVisited reports whether agent was dispatched earlier in this run.
func (s *SystemState) HasVisited(agent string) bool {
	for _, v := range s.Visited {
		if v == agent {
			return true
		}
	}
	return false
}

// MarkVisited records that agent was dispatched in this run.
func (s *SystemState) MarkVisited(agent string) {
	if !s.HasVisited(agent) {
		s.Visited = append(s.Visited, agent)
	}
}

// Apply merges an agent update into s. Keys reserved for human feedback are
// discarded so agents cannot grant approval.
func (s *SystemState) Apply(agent string, u Update) {
	now := time.Now().UTC()
	s.Output = Output{Agent: agent, Content: u.Content, Timestamp: now}
	s.Messages = append(s.Messages, Message{Role: "assistant", Agent: agent, Content: u.Content, Timestamp: now})

	p := s.Project
	if p == nil {
		return
	}
	p.Normalize()
	for k, v := range u.Artifacts {
		if isReservedKey(k) {
			continue
		}
		p.Artifacts[k] = v
	}
	for k, v := range u.Manuscript {
		if isReservedKey(k) {
			continue
		}
		p.Manuscript[k] = v
	}
	for k, v := range u.ProgressMetrics {
		p.ProgressMetrics[k] = v
	}
	for k, v := range u.QualityScores {
		p.QualityAssessment.Scores[k] = v
	}
	p.UpdatedAt = now
}

func isReservedKey(k string) bool {
	switch strings.ToLower(k) {
	case "human_approved", "human_approval", "quality_assessment", "human_feedback":
		return true
	}
	return false
}

// Copy returns a deep copy of s. See ProjectState.Copy.
func (s *SystemState) Copy() (*SystemState, error) {
	if s == nil {
		return nil, nil
	}
	project, err := s.Project.Copy()
	if err != nil {
		return nil, err
	}
	return &SystemState{
		Project:  project,
		Input:    s.Input,
		Output:   s.Output,
		Messages: append([]Message{}, s.Messages...),
		Errors:   append([]ErrorRecord{}, s.Errors...),
		Visited:  append([]string{}, s.Visited...),
		Steps:    s.Steps,
	}, nil
}

// Clone is like Copy but panics if s cannot be copied.
func (s *SystemState) Clone() *SystemState {
	out, err := s.Copy()
	if err != nil {
		panic(err)
	}
	return out
}

// Update is what an agent returns: its textual output plus field updates to
// the project. A non-empty Error marks the invocation as failed.
type Update struct {
	Content         string             `json:"content"`
	Artifacts       Document           `json:"artifacts,omitempty"`
	Manuscript      Document           `json:"manuscript,omitempty"`
	ProgressMetrics Document           `json:"progress_metrics,omitempty"`
	QualityScores   map[string]float64 `json:"quality_scores,omitempty"`
	Error           string             `json:"error,omitempty"`
}
