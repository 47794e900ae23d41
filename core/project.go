package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document is an opaque agent-produced record. The engine stores and
// forwards documents without interpreting them.
type Document map[string]any

// PhaseRecord marks the moment a phase was completed.
type PhaseRecord struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is a unit of work tracked on a team.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Assignee    string    `json:"assignee,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TeamState is the working area of one specialist team under a director.
type TeamState struct {
	TasksPending   []Task   `json:"tasks_pending"`
	TasksCompleted []Task   `json:"tasks_completed"`
	WorkArtifacts  Document `json:"work_artifacts"`
	QualityMetrics Document `json:"quality_metrics"`
}

// DirectorState groups the teams reporting to a director.
type DirectorState struct {
	Teams              map[string]*TeamState `json:"teams"`
	CurrentFocus       string                `json:"current_focus,omitempty"`
	StrategicDirection Document              `json:"strategic_direction"`
	QualityMetrics     Document              `json:"quality_metrics"`
}

// QualityAssessment is the sole input to quality gates. HumanApproved is only
// ever set by recorded human feedback.
type QualityAssessment struct {
	Scores        map[string]float64 `json:"scores"`
	HumanApproved bool               `json:"human_approved"`
}

// Score returns the named metric and whether it was present.
func (qa QualityAssessment) Score(name string) (float64, bool) {
	v, ok := qa.Scores[name]
	return v, ok
}

// Feedback is one human feedback entry.
type Feedback struct {
	ID        string             `json:"id"`
	Content   string             `json:"content"`
	Type      string             `json:"type"`
	Scores    map[string]float64 `json:"scores,omitempty"`
	Approved  bool               `json:"approved"`
	Timestamp time.Time          `json:"timestamp"`
}

// ProjectStatus is the coarse lifecycle status stored on a project.
type ProjectStatus string

const (
	StatusIdle    ProjectStatus = "idle"
	StatusRunning ProjectStatus = "running"
	StatusFailed  ProjectStatus = "failed"
	StatusDone    ProjectStatus = "done"
)

// ProjectState is the durable record of a novel project.
type ProjectState struct {
	ProjectID         string                    `json:"project_id"`
	Title             string                    `json:"title"`
	Genre             string                    `json:"genre"`
	TargetAudience    string                    `json:"target_audience,omitempty"`
	WordCountTarget   int                       `json:"word_count_target,omitempty"`
	CurrentPhase      Phase                     `json:"current_phase"`
	PhaseHistory      []PhaseRecord             `json:"phase_history"`
	CompletedPhases   map[Phase]bool            `json:"completed_phases"`
	Directors         map[string]*DirectorState `json:"directors"`
	Manuscript        Document                  `json:"manuscript"`
	Artifacts         Document                  `json:"artifacts"`
	QualityAssessment QualityAssessment         `json:"quality_assessment"`
	ProgressMetrics   Document                  `json:"progress_metrics"`
	HumanFeedback     []Feedback                `json:"human_feedback"`
	Status            ProjectStatus             `json:"status"`
	LastError         string                    `json:"last_error,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

// DefaultDirectors lists the director slots created for every new project.
var DefaultDirectors = []string{
	"creative_director",
	"content_development_director",
	"editorial_director",
	"market_alignment_director",
}

// NewProjectState creates a project in the initialization phase.
func NewProjectState(id, title, genre string) *ProjectState {
	now := time.Now().UTC()
	p := &ProjectState{
		ProjectID:       id,
		Title:           title,
		Genre:           genre,
		CurrentPhase:    PhaseInitialization,
		PhaseHistory:    []PhaseRecord{},
		CompletedPhases: map[Phase]bool{},
		Directors:       map[string]*DirectorState{},
		Manuscript:      Document{},
		Artifacts:       Document{},
		QualityAssessment: QualityAssessment{
			Scores: map[string]float64{},
		},
		ProgressMetrics: Document{},
		HumanFeedback:   []Feedback{},
		Status:          StatusIdle,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, d := range DefaultDirectors {
		p.Directors[d] = newDirectorState()
	}
	return p
}

func newDirectorState() *DirectorState {
	return &DirectorState{
		Teams:              map[string]*TeamState{},
		StrategicDirection: Document{},
		QualityMetrics:     Document{},
	}
}

// Normalize fills nil collections so a decoded or caller-built project can be
// mutated safely.
func (p *ProjectState) Normalize() {
	if p.CurrentPhase == "" {
		p.CurrentPhase = PhaseInitialization
	}
	if p.PhaseHistory == nil {
		p.PhaseHistory = []PhaseRecord{}
	}
	if p.CompletedPhases == nil {
		p.CompletedPhases = map[Phase]bool{}
	}
	if p.Directors == nil {
		p.Directors = map[string]*DirectorState{}
	}
	if p.Manuscript == nil {
		p.Manuscript = Document{}
	}
	if p.Artifacts == nil {
		p.Artifacts = Document{}
	}
	if p.QualityAssessment.Scores == nil {
		p.QualityAssessment.Scores = map[string]float64{}
	}
	if p.ProgressMetrics == nil {
		p.ProgressMetrics = Document{}
	}
	if p.HumanFeedback == nil {
		p.HumanFeedback = []Feedback{}
	}
	if p.Status == "" {
		p.Status = StatusIdle
	}
}

// AdvancePhase records completion of the given phase: one history entry is
// appended, its completion flag is set and CurrentPhase moves to the next
// phase.
func (p *ProjectState) AdvancePhase(completed Phase) {
	p.Normalize()
	now := time.Now().UTC()
	p.PhaseHistory = append(p.PhaseHistory, PhaseRecord{Phase: completed, Timestamp: now})
	p.CompletedPhases[completed] = true
	p.CurrentPhase = completed.Next()
	p.UpdatedAt = now
}

// IsPhaseComplete reports whether phase has been completed.
func (p *ProjectState) IsPhaseComplete(phase Phase) bool {
	return p.CompletedPhases[phase]
}

// Has reports whether a required field is present and non-empty. Field
// names resolve against identity fields, phase completion flags, then
// artifact and manuscript keys.
func (p *ProjectState) Has(field string) bool {
	switch field {
	case "project_id":
		return p.ProjectID != ""
	case "title":
		return p.Title != ""
	case "genre":
		return p.Genre != ""
	case "target_audience":
		return p.TargetAudience != ""
	case "word_count_target":
		return p.WordCountTarget > 0
	}
	for _, ph := range workflowPhases {
		if field == ph.CompletionFlag() {
			return p.CompletedPhases[ph]
		}
	}
	if v, ok := p.Artifacts[field]; ok && present(v) {
		return true
	}
	if v, ok := p.Manuscript[field]; ok && present(v) {
		return true
	}
	return false
}

// MissingFields returns the subset of fields that Has reports absent, in the
// given order.
func (p *ProjectState) MissingFields(fields []string) []string {
	var missing []string
	for _, f := range fields {
		if !p.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case map[string]any:
		return len(t) > 0
	case Document:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	return true
}

// TeamState returns the named team under director, creating both when absent.
func (p *ProjectState) TeamState(director, team string) *TeamState {
	p.Normalize()
	d, ok := p.Directors[director]
	if !ok {
		d = newDirectorState()
		p.Directors[director] = d
	}
	if d.Teams == nil {
		d.Teams = map[string]*TeamState{}
	}
	t, ok := d.Teams[team]
	if !ok {
		t = &TeamState{TasksPending: []Task{}, TasksCompleted: []Task{}, WorkArtifacts: Document{}, QualityMetrics: Document{}}
		d.Teams[team] = t
	}
	return t
}

// AddFeedback appends fb, merges its scores into the quality assessment and
// marks human approval when fb approves.
func (p *ProjectState) AddFeedback(fb Feedback) {
	p.Normalize()
	p.HumanFeedback = append(p.HumanFeedback, fb)
	for k, v := range fb.Scores {
		p.QualityAssessment.Scores[k] = v
	}
	if fb.Approved {
		p.QualityAssessment.HumanApproved = true
	}
	p.UpdatedAt = time.Now().UTC()
}

// MergeFeedback applies every entry of entries that p has not recorded yet,
// matching by ID. Entries without an ID match on timestamp and content.
func (p *ProjectState) MergeFeedback(entries []Feedback) {
	seen := make(map[string]struct{}, len(p.HumanFeedback))
	for _, fb := range p.HumanFeedback {
		seen[feedbackKey(fb)] = struct{}{}
	}
	for _, fb := range entries {
		k := feedbackKey(fb)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		p.AddFeedback(fb)
	}
}

func feedbackKey(fb Feedback) string {
	if fb.ID != "" {
		return fb.ID
	}
	return fb.Timestamp.Format(time.RFC3339Nano) + "|" + fb.Content
}

// Copy returns a deep copy of p. It fails when a document holds a value
// that cannot be encoded as JSON; p is never shared with the result.
func (p *ProjectState) Copy() (*ProjectState, error) {
	if p == nil {
		return nil, nil
	}
	var out ProjectState
	if err := deepCopy(p, &out); err != nil {
		return nil, fmt.Errorf("copy project %s: %w", p.ProjectID, err)
	}
	out.Normalize()
	return &out, nil
}

// Clone is like Copy but panics if p cannot be copied. It is meant for
// states built from JSON-compatible values.
func (p *ProjectState) Clone() *ProjectState {
	out, err := p.Copy()
	if err != nil {
		panic(err)
	}
	return out
}

func deepCopy(src, dst any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
