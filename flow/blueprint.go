package flow

import (
	"fmt"

	"github.com/hupe1980/novelmesh/core"
)

// Rule routes a director to Target when the task contains one of Keywords
// (case-insensitive substring) or the input editing type equals one of
// EditingTypes. Editing types are checked across all rules before any
// keyword.
type Rule struct {
	Target       string   `yaml:"target"`
	Keywords     []string `yaml:"keywords"`
	EditingTypes []string `yaml:"editing_types"`
}

// Blueprint declares the star graph of one phase.
type Blueprint struct {
	Phase       core.Phase `yaml:"phase"`
	Description string     `yaml:"description"`
	Director    string     `yaml:"director"`
	Specialists []string   `yaml:"specialists"`
	// Rules are evaluated in declaration order; the first match wins.
	Rules []Rule `yaml:"rules"`
	// Default is the node chosen when no rule matches and the gate fails.
	// Empty means the director.
	Default string `yaml:"default"`
	// Teams groups specialists for the director's team state.
	Teams map[string][]string `yaml:"teams"`
}

// DefaultNode returns the node selected when the quality gate fails.
func (b Blueprint) DefaultNode() string {
	if b.Default != "" {
		return b.Default
	}
	return b.Director
}

// IsSpecialist reports whether name is one of the blueprint's specialists.
func (b Blueprint) IsSpecialist(name string) bool {
	for _, s := range b.Specialists {
		if s == name {
			return true
		}
	}
	return false
}

// Validate checks that every rule targets a declared specialist and that the
// default node exists.
func (b Blueprint) Validate() error {
	if !b.Phase.Valid() || b.Phase == core.PhaseComplete {
		return core.NewConfigurationError("blueprint for invalid phase %q", b.Phase)
	}
	if b.Director == "" {
		return core.NewConfigurationError("blueprint %s has no director", b.Phase)
	}
	seen := map[string]bool{b.Director: true}
	for _, s := range b.Specialists {
		if seen[s] {
			return core.NewConfigurationError("blueprint %s declares %q twice", b.Phase, s)
		}
		seen[s] = true
	}
	for i, r := range b.Rules {
		if !b.IsSpecialist(r.Target) {
			return core.NewConfigurationError("blueprint %s rule %d targets unknown specialist %q", b.Phase, i, r.Target)
		}
		if len(r.Keywords) == 0 && len(r.EditingTypes) == 0 {
			return core.NewConfigurationError("blueprint %s rule %d has no keywords or editing types", b.Phase, i)
		}
	}
	if d := b.DefaultNode(); d != b.Director && !b.IsSpecialist(d) {
		return core.NewConfigurationError("blueprint %s default node %q is not part of the graph", b.Phase, d)
	}
	return nil
}

// DefaultBlueprints returns the built-in phase graphs keyed by phase.
//
// Routing priority is the declaration order of each blueprint's Rules. In
// refinement the editing-type rules come first, and dialogue is declared
// before grammar so that "revise the dialogue" selects the dialogue
// specialist. quality_assessment_director is a specialist of every phase.
func DefaultBlueprints() map[core.Phase]Blueprint {
	bps := []Blueprint{
		{
			Phase:       core.PhaseInitialization,
			Description: "Establish the creative vision, timeline and quality targets.",
			Director:    "executive_director",
			Specialists: []string{"creative_director", "project_timeline_manager", "quality_assessment_director", "market_alignment_director"},
			Rules: []Rule{
				{Target: "creative_director", Keywords: []string{"creative", "vision", "tone"}},
				{Target: "project_timeline_manager", Keywords: []string{"timeline", "schedule", "milestone"}},
				{Target: "quality_assessment_director", Keywords: []string{"quality", "assess", "score", "evaluate"}},
				{Target: "market_alignment_director", Keywords: []string{"market", "audience"}},
			},
			Teams: map[string][]string{
				"strategy": {"creative_director", "market_alignment_director"},
				"planning": {"project_timeline_manager", "quality_assessment_director"},
			},
		},
		{
			Phase:       core.PhaseDevelopment,
			Description: "Develop structure, world and characters.",
			Director:    "creative_director",
			Specialists: []string{
				"structure_architect", "plot_development_specialist", "world_building_expert",
				"character_psychology_specialist", "character_voice_designer", "character_relationship_mapper",
				"emotional_arc_designer", "reader_attachment_specialist", "quality_assessment_director",
			},
			Rules: []Rule{
				{Target: "structure_architect", Keywords: []string{"structure", "outline", "three-act"}},
				{Target: "plot_development_specialist", Keywords: []string{"plot", "twist", "subplot"}},
				{Target: "world_building_expert", Keywords: []string{"world", "setting", "magic system"}},
				{Target: "character_psychology_specialist", Keywords: []string{"psycholog", "motivation", "backstory", "character"}},
				{Target: "character_voice_designer", Keywords: []string{"voice"}},
				{Target: "character_relationship_mapper", Keywords: []string{"relationship"}},
				{Target: "emotional_arc_designer", Keywords: []string{"emotion", "emotional arc"}},
				{Target: "reader_attachment_specialist", Keywords: []string{"attachment", "likab", "sympath"}},
				{Target: "quality_assessment_director", Keywords: []string{"quality", "assess", "score", "evaluate"}},
			},
			Teams: map[string][]string{
				"story_architecture":    {"structure_architect", "plot_development_specialist", "world_building_expert"},
				"character_development": {"character_psychology_specialist", "character_voice_designer", "character_relationship_mapper", "emotional_arc_designer", "reader_attachment_specialist"},
			},
		},
		{
			Phase:       core.PhaseCreation,
			Description: "Draft chapters, scenes and dialogue.",
			Director:    "content_development_director",
			Specialists: []string{
				"chapter_drafters", "scene_construction_specialists", "dialogue_crafters", "continuity_manager",
				"voice_consistency_monitor", "description_enhancement_specialist", "domain_knowledge_specialist",
				"cultural_authenticity_expert", "historical_context_researcher", "quality_assessment_director",
			},
			Rules: []Rule{
				{Target: "dialogue_crafters", Keywords: []string{"dialogue", "conversation"}},
				{Target: "scene_construction_specialists", Keywords: []string{"scene"}},
				{Target: "chapter_drafters", Keywords: []string{"chapter", "draft"}},
				{Target: "continuity_manager", Keywords: []string{"continuity"}},
				{Target: "voice_consistency_monitor", Keywords: []string{"consistency", "voice"}},
				{Target: "description_enhancement_specialist", Keywords: []string{"description", "sensory", "imagery"}},
				{Target: "domain_knowledge_specialist", Keywords: []string{"research", "domain", "technical"}},
				{Target: "cultural_authenticity_expert", Keywords: []string{"cultur", "authentic"}},
				{Target: "historical_context_researcher", Keywords: []string{"histor", "period"}},
				{Target: "quality_assessment_director", Keywords: []string{"quality", "assess", "score", "evaluate"}},
			},
			Teams: map[string][]string{
				"drafting":    {"chapter_drafters", "scene_construction_specialists", "dialogue_crafters"},
				"consistency": {"continuity_manager", "voice_consistency_monitor", "description_enhancement_specialist"},
				"research":    {"domain_knowledge_specialist", "cultural_authenticity_expert", "historical_context_researcher"},
			},
		},
		{
			Phase:       core.PhaseRefinement,
			Description: "Edit structure, prose and mechanics.",
			Director:    "editorial_director",
			Specialists: []string{
				"structural_editor", "character_arc_evaluator", "thematic_coherence_analyst", "prose_enhancement_specialist",
				"dialogue_refinement_expert", "rhythm_cadence_optimizer", "grammar_consistency_checker",
				"fact_verification_specialist", "formatting_standards_expert", "continuity_manager", "quality_assessment_director",
			},
			Rules: []Rule{
				{Target: "structural_editor", EditingTypes: []string{"developmental", "structural"}},
				{Target: "prose_enhancement_specialist", EditingTypes: []string{"line"}},
				{Target: "grammar_consistency_checker", EditingTypes: []string{"copy", "technical"}},
				{Target: "dialogue_refinement_expert", EditingTypes: []string{"dialogue"}},
				{Target: "formatting_standards_expert", EditingTypes: []string{"formatting"}},
				{Target: "fact_verification_specialist", EditingTypes: []string{"fact"}},

				{Target: "dialogue_refinement_expert", Keywords: []string{"dialogue"}},
				{Target: "structural_editor", Keywords: []string{"structur", "pacing of acts"}},
				{Target: "character_arc_evaluator", Keywords: []string{"character arc", "arcs"}},
				{Target: "thematic_coherence_analyst", Keywords: []string{"theme", "thematic"}},
				{Target: "prose_enhancement_specialist", Keywords: []string{"prose", "line edit"}},
				{Target: "rhythm_cadence_optimizer", Keywords: []string{"rhythm", "cadence", "pacing", "style"}},
				{Target: "grammar_consistency_checker", Keywords: []string{"grammar", "spelling", "punctuation", "typo"}},
				{Target: "fact_verification_specialist", Keywords: []string{"fact", "verify"}},
				{Target: "formatting_standards_expert", Keywords: []string{"format"}},
				{Target: "continuity_manager", Keywords: []string{"continuity"}},
				{Target: "quality_assessment_director", Keywords: []string{"quality", "assess", "score", "evaluate"}},
			},
			Teams: map[string][]string{
				"developmental": {"structural_editor", "character_arc_evaluator", "thematic_coherence_analyst"},
				"line":          {"prose_enhancement_specialist", "dialogue_refinement_expert", "rhythm_cadence_optimizer"},
				"technical":     {"grammar_consistency_checker", "fact_verification_specialist", "formatting_standards_expert", "continuity_manager"},
			},
		},
		{
			Phase:       core.PhaseFinalization,
			Description: "Position the manuscript for the market.",
			Director:    "market_alignment_director",
			Specialists: []string{
				"zeitgeist_analyst", "cultural_conversation_mapper", "trend_forecaster", "hook_optimization_expert",
				"page_turner_designer", "satisfaction_engineer", "positioning_specialist", "title_blurb_optimizer",
				"differentiation_strategist", "quality_assessment_director",
			},
			Rules: []Rule{
				{Target: "zeitgeist_analyst", Keywords: []string{"zeitgeist"}},
				{Target: "cultural_conversation_mapper", Keywords: []string{"conversation"}},
				{Target: "trend_forecaster", Keywords: []string{"trend"}},
				{Target: "hook_optimization_expert", Keywords: []string{"hook", "opening"}},
				{Target: "page_turner_designer", Keywords: []string{"page turn", "page-turn", "cliffhanger"}},
				{Target: "satisfaction_engineer", Keywords: []string{"satisf", "payoff", "ending"}},
				{Target: "positioning_specialist", Keywords: []string{"position", "comparable", "comp titles"}},
				{Target: "title_blurb_optimizer", Keywords: []string{"title", "blurb"}},
				{Target: "differentiation_strategist", Keywords: []string{"differentiat", "unique"}},
				{Target: "quality_assessment_director", Keywords: []string{"quality", "assess", "score", "evaluate"}},
			},
			Teams: map[string][]string{
				"cultural_relevance": {"zeitgeist_analyst", "cultural_conversation_mapper", "trend_forecaster"},
				"reader_engagement":  {"hook_optimization_expert", "page_turner_designer", "satisfaction_engineer"},
				"market_positioning": {"positioning_specialist", "title_blurb_optimizer", "differentiation_strategist"},
			},
		},
	}

	out := make(map[core.Phase]Blueprint, len(bps))
	for _, b := range bps {
		if err := b.Validate(); err != nil {
			panic(fmt.Sprintf("flow: invalid built-in blueprint: %v", err))
		}
		out[b.Phase] = b
	}
	return out
}
