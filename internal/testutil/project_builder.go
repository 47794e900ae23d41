package testutil

import (
	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/evaluation"
)

// ProjectBuilder helps construct projects with fluent chaining for tests.
// Example:
//
//	p := NewProjectBuilder("p1").Title("T").Genre("mystery").Artifact("scenes", "s1").Build()
type ProjectBuilder struct {
	p *core.ProjectState
}

// NewProjectBuilder creates a builder for a project with the given id.
func NewProjectBuilder(id string) *ProjectBuilder {
	return &ProjectBuilder{p: core.NewProjectState(id, "", "")}
}

// Title sets the title (chainable).
func (b *ProjectBuilder) Title(t string) *ProjectBuilder {
	b.p.Title = t
	return b
}

// Genre sets the genre (chainable).
func (b *ProjectBuilder) Genre(g string) *ProjectBuilder {
	b.p.Genre = g
	return b
}

// Artifact sets a project artifact (chainable).
func (b *ProjectBuilder) Artifact(key string, val any) *ProjectBuilder {
	b.p.Artifacts[key] = val
	return b
}

// Manuscript sets a manuscript entry (chainable).
func (b *ProjectBuilder) Manuscript(key string, val any) *ProjectBuilder {
	b.p.Manuscript[key] = val
	return b
}

// Score sets one quality score (chainable).
func (b *ProjectBuilder) Score(metric string, v float64) *ProjectBuilder {
	b.p.QualityAssessment.Scores[metric] = v
	return b
}

// Approved sets human approval (chainable).
func (b *ProjectBuilder) Approved(v bool) *ProjectBuilder {
	b.p.QualityAssessment.HumanApproved = v
	return b
}

// PassingGates sets every score required by the default gates to its
// threshold and approves the project (chainable).
func (b *ProjectBuilder) PassingGates() *ProjectBuilder {
	qa := PassingAssessment()
	for k, v := range qa.Scores {
		b.p.QualityAssessment.Scores[k] = v
	}
	b.p.QualityAssessment.HumanApproved = true
	return b
}

// Completed marks phases as completed in order (chainable).
func (b *ProjectBuilder) Completed(phases ...core.Phase) *ProjectBuilder {
	for _, ph := range phases {
		b.p.AdvancePhase(ph)
	}
	return b
}

// Build returns the project.
func (b *ProjectBuilder) Build() *core.ProjectState {
	return b.p.Clone()
}

// PassingAssessment returns an approved assessment meeting every default
// gate.
func PassingAssessment() core.QualityAssessment {
	qa := core.QualityAssessment{Scores: map[string]float64{}, HumanApproved: true}
	for _, g := range evaluation.DefaultGates() {
		for _, c := range g.Criteria {
			if c.Threshold > qa.Scores[c.Metric] {
				qa.Scores[c.Metric] = c.Threshold
			}
		}
	}
	return qa
}
