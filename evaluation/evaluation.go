// Package evaluation implements the quality gates that guard every phase
// transition. A gate is a set of numeric score thresholds plus an optional
// human approval requirement; evaluation is pure and deterministic.
package evaluation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/novelmesh/core"
)

// HumanApprovalCriterion is the criterion name reported when human approval
// is required but missing.
const HumanApprovalCriterion = "human_approval"

// Criterion is one numeric threshold. A score passes when actual >= Threshold.
type Criterion struct {
	Metric    string  `json:"metric" yaml:"metric"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// Gate is the ordered set of criteria guarding one transition.
type Gate struct {
	Transition    string      `json:"transition"`
	Criteria      []Criterion `json:"criteria"`
	HumanApproval bool        `json:"human_approval"`
}

// FailedCriterion describes one unmet criterion. For the human approval
// criterion Threshold is 1 and Actual is 0.
type FailedCriterion struct {
	Criterion string  `json:"criterion"`
	Threshold float64 `json:"threshold"`
	Actual    float64 `json:"actual"`
}

// Result is the outcome of evaluating one gate.
type Result struct {
	Transition     string            `json:"transition"`
	Passed         bool              `json:"passed"`
	FailedCriteria []FailedCriterion `json:"failed_criteria,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}

// Evaluator decides whether a project may leave a phase.
type Evaluator interface {
	Evaluate(transition string, qa core.QualityAssessment) (Result, error)
}

// GateEvaluator evaluates a fixed set of gates. It is immutable after
// construction and safe for concurrent use.
type GateEvaluator struct {
	gates map[string]Gate
}

// NewGateEvaluator creates an evaluator over gates. Gates are copied.
func NewGateEvaluator(gates ...Gate) *GateEvaluator {
	m := make(map[string]Gate, len(gates))
	for _, g := range gates {
		cp := g
		cp.Criteria = append([]Criterion(nil), g.Criteria...)
		m[g.Transition] = cp
	}
	return &GateEvaluator{gates: m}
}

// NewDefaultEvaluator creates an evaluator over DefaultGates.
func NewDefaultEvaluator() *GateEvaluator {
	return NewGateEvaluator(DefaultGates()...)
}

// Evaluate checks qa against the gate for transition. Missing metrics count
// as 0. All failing criteria are reported in declaration order with human
// approval last. Unknown transitions never pass and return a
// *core.ConfigurationError.
func (e *GateEvaluator) Evaluate(transition string, qa core.QualityAssessment) (Result, error) {
	g, ok := e.gates[transition]
	if !ok {
		return Result{
			Transition: transition,
			Passed:     false,
			Reason:     fmt.Sprintf("unknown transition %q", transition),
		}, core.NewConfigurationError("unknown quality gate transition %q", transition)
	}

	res := Result{Transition: transition}
	for _, c := range g.Criteria {
		actual := qa.Scores[c.Metric]
		if actual < c.Threshold {
			res.FailedCriteria = append(res.FailedCriteria, FailedCriterion{Criterion: c.Metric, Threshold: c.Threshold, Actual: actual})
		}
	}
	if g.HumanApproval && !qa.HumanApproved {
		res.FailedCriteria = append(res.FailedCriteria, FailedCriterion{Criterion: HumanApprovalCriterion, Threshold: 1, Actual: 0})
	}

	res.Passed = len(res.FailedCriteria) == 0
	if !res.Passed {
		names := make([]string, len(res.FailedCriteria))
		for i, f := range res.FailedCriteria {
			names[i] = f.Criterion
		}
		res.Reason = "unmet criteria: " + strings.Join(names, ", ")
	}
	return res, nil
}

// Gate returns the gate for transition.
func (e *GateEvaluator) Gate(transition string) (Gate, bool) {
	g, ok := e.gates[transition]
	if !ok {
		return Gate{}, false
	}
	g.Criteria = append([]Criterion(nil), g.Criteria...)
	return g, true
}

// Transitions returns the configured transition names, sorted.
func (e *GateEvaluator) Transitions() []string {
	out := make([]string, 0, len(e.gates))
	for t := range e.gates {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
