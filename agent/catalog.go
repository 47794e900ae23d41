package agent

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/novelmesh/core"
)

// Role labels of catalog entries.
const (
	RoleDirector   = "director"
	RoleSpecialist = "specialist"
)

// DefaultPromptTemplate is used when a Spec has no prompt.
const DefaultPromptTemplate = `You are the {{humanize .agent}} on a novel-writing team.
{{.description}}

Project: "{{.title}}" ({{default "unspecified genre" .genre}}), current phase: {{.phase}}.

Respond with a JSON object {"content": ..., "artifacts": {...}, "manuscript": {...}, "quality_scores": {...}}
or with plain text when no structured fields apply.`

// Spec is the data configuration of one agent.
type Spec struct {
	Name           string   `yaml:"name"`
	Role           string   `yaml:"role"`
	Description    string   `yaml:"description"`
	Model          string   `yaml:"model"`
	Temperature    float64  `yaml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens"`
	Prompt         string   `yaml:"prompt"`
	OutputKey      string   `yaml:"output_key"`
	RequiredFields []string `yaml:"required_fields"`
}

// Catalog maps agent names to specs.
type Catalog struct {
	specs map[string]Spec
}

type catalogFile struct {
	Defaults struct {
		Model       string  `yaml:"model"`
		Temperature float64 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
	} `yaml:"defaults"`
	Agents []Spec `yaml:"agents"`
}

// NewCatalog builds a catalog from specs. Duplicate or empty names are a
// configuration error.
func NewCatalog(specs ...Spec) (*Catalog, error) {
	c := &Catalog{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if s.Name == "" {
			return nil, core.NewConfigurationError("agent spec without name")
		}
		if _, dup := c.specs[s.Name]; dup {
			return nil, core.NewConfigurationError("duplicate agent %q", s.Name)
		}
		if s.Role == "" {
			s.Role = RoleSpecialist
		}
		s.RequiredFields = append([]string(nil), s.RequiredFields...)
		c.specs[s.Name] = s
	}
	return c, nil
}

// LoadCatalog decodes a YAML catalog:
//
//	defaults: {model: anthropic/claude-3-5-sonnet-20241022, temperature: 0.7, max_tokens: 4096}
//	agents:
//	  - name: structural_editor
//	    role: specialist
//	    output_key: structural_edit
//
// Entries without model, temperature or max_tokens inherit the defaults.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, &core.ConfigurationError{Msg: "decode agent catalog", Err: err}
	}
	for i := range f.Agents {
		s := &f.Agents[i]
		if s.Model == "" {
			s.Model = f.Defaults.Model
		}
		if s.Temperature == 0 {
			s.Temperature = f.Defaults.Temperature
		}
		if s.MaxTokens == 0 {
			s.MaxTokens = f.Defaults.MaxTokens
		}
		if s.Model == "" {
			return nil, core.NewConfigurationError("agent %q has no model", s.Name)
		}
	}
	return NewCatalog(f.Agents...)
}

// LoadCatalogFile reads a YAML catalog from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.ConfigurationError{Msg: fmt.Sprintf("open agent catalog %s", path), Err: err}
	}
	defer f.Close()
	return LoadCatalog(f)
}

// Lookup returns the spec for name.
func (c *Catalog) Lookup(name string) (Spec, bool) {
	s, ok := c.specs[name]
	if ok {
		s.RequiredFields = append([]string(nil), s.RequiredFields...)
	}
	return s, ok
}

// Names returns all agent names, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.specs))
	for n := range c.specs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of agents.
func (c *Catalog) Len() int { return len(c.specs) }

// Default models of the built-in catalog.
const (
	DefaultDirectorModel   = "anthropic/claude-3-5-sonnet-20241022"
	DefaultSpecialistModel = "openai/gpt-4o"
)

type entry struct {
	name, role, outputKey, description string
}

var defaultEntries = []entry{
	{"executive_director", RoleDirector, "executive_summary", "You coordinate project setup and keep every team aligned with the project vision."},
	{"human_feedback_manager", RoleSpecialist, "feedback_summary", "You translate human feedback into concrete revision tasks."},
	{"quality_assessment_director", RoleSpecialist, "quality_report", "You score the work against the phase quality gates and report numeric quality_scores."},
	{"project_timeline_manager", RoleSpecialist, "project_timeline", "You plan milestones and word-count targets."},
	{"creative_director", RoleDirector, "creative_direction", "You own the creative vision: premise, tone and themes."},
	{"content_development_director", RoleDirector, "content_plan", "You coordinate drafting of chapters and scenes."},
	{"editorial_director", RoleDirector, "editorial_plan", "You coordinate developmental, line and technical editing."},
	{"market_alignment_director", RoleDirector, "market_positioning", "You position the novel for its target market."},

	{"structure_architect", RoleSpecialist, "plot_structure", "You design the act and chapter structure."},
	{"plot_development_specialist", RoleSpecialist, "plot_outline", "You develop plot threads, twists and stakes."},
	{"world_building_expert", RoleSpecialist, "world_building", "You build the setting, its rules and history."},
	{"character_psychology_specialist", RoleSpecialist, "characters", "You develop character psychology, motives and backstory."},
	{"character_voice_designer", RoleSpecialist, "character_voices", "You define distinct voices for each character."},
	{"character_relationship_mapper", RoleSpecialist, "character_relationships", "You map relationships and their evolution."},
	{"emotional_arc_designer", RoleSpecialist, "emotional_arcs", "You design emotional arcs across the story."},
	{"reader_attachment_specialist", RoleSpecialist, "reader_attachment", "You strengthen reader attachment to characters."},

	{"chapter_drafters", RoleSpecialist, "chapters", "You draft chapters from the outline."},
	{"scene_construction_specialists", RoleSpecialist, "scenes", "You construct scenes with clear goals and conflict."},
	{"dialogue_crafters", RoleSpecialist, "dialogue", "You write dialogue true to each character's voice."},
	{"continuity_manager", RoleSpecialist, "continuity_analysis", "You track continuity of facts, timeline and character details."},
	{"voice_consistency_monitor", RoleSpecialist, "voice_report", "You check narrative voice consistency."},
	{"description_enhancement_specialist", RoleSpecialist, "descriptions", "You enrich sensory description."},
	{"domain_knowledge_specialist", RoleSpecialist, "research_notes", "You supply accurate domain knowledge."},
	{"cultural_authenticity_expert", RoleSpecialist, "cultural_review", "You review cultural authenticity and sensitivity."},
	{"historical_context_researcher", RoleSpecialist, "historical_context", "You research historical context and period detail."},

	{"structural_editor", RoleSpecialist, "structural_edit", "You perform developmental edits of structure and pacing."},
	{"character_arc_evaluator", RoleSpecialist, "character_arc_report", "You evaluate character arcs for completeness."},
	{"thematic_coherence_analyst", RoleSpecialist, "theme_report", "You analyse thematic coherence."},
	{"prose_enhancement_specialist", RoleSpecialist, "prose_edit", "You perform line edits of prose."},
	{"dialogue_refinement_expert", RoleSpecialist, "dialogue_edit", "You refine dialogue for rhythm and subtext."},
	{"rhythm_cadence_optimizer", RoleSpecialist, "style_metrics", "You measure and tune sentence rhythm and cadence."},
	{"grammar_consistency_checker", RoleSpecialist, "grammar_report", "You fix grammar, spelling and punctuation."},
	{"fact_verification_specialist", RoleSpecialist, "fact_check", "You verify factual claims."},
	{"formatting_standards_expert", RoleSpecialist, "formatting_report", "You apply manuscript formatting standards."},

	{"zeitgeist_analyst", RoleSpecialist, "zeitgeist_report", "You relate the novel to current cultural conversations."},
	{"cultural_conversation_mapper", RoleSpecialist, "conversation_map", "You map the cultural conversations the novel joins."},
	{"trend_forecaster", RoleSpecialist, "trend_forecast", "You forecast genre and market trends."},
	{"hook_optimization_expert", RoleSpecialist, "hook_report", "You sharpen opening hooks."},
	{"page_turner_designer", RoleSpecialist, "page_turner_report", "You strengthen chapter endings and momentum."},
	{"satisfaction_engineer", RoleSpecialist, "satisfaction_report", "You ensure payoffs satisfy reader expectations."},
	{"positioning_specialist", RoleSpecialist, "positioning", "You define comparable titles and shelf positioning."},
	{"title_blurb_optimizer", RoleSpecialist, "title_blurb", "You craft title options and the back-cover blurb."},
	{"differentiation_strategist", RoleSpecialist, "differentiation", "You identify what sets the novel apart."},
}

// DefaultCatalog returns the built-in catalog. Directors use
// DefaultDirectorModel, specialists DefaultSpecialistModel.
func DefaultCatalog() *Catalog {
	specs := make([]Spec, 0, len(defaultEntries))
	for _, e := range defaultEntries {
		s := Spec{
			Name:        e.name,
			Role:        e.role,
			Description: e.description,
			OutputKey:   e.outputKey,
			Temperature: 0.7,
			MaxTokens:   4096,
			Model:       DefaultSpecialistModel,
			Prompt:      DefaultPromptTemplate,
		}
		if e.role == RoleDirector {
			s.Model = DefaultDirectorModel
			s.Temperature = 0.5
		}
		specs = append(specs, s)
	}
	c, err := NewCatalog(specs...)
	if err != nil {
		panic(err)
	}
	return c
}

// WithModel returns a copy of c with every agent's model replaced by id.
func (c *Catalog) WithModel(id string) *Catalog {
	out := &Catalog{specs: make(map[string]Spec, len(c.specs))}
	for n, s := range c.specs {
		s.Model = id
		out.specs[n] = s
	}
	return out
}
