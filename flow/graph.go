package flow

import (
	"sort"
	"strings"

	"github.com/hupe1980/novelmesh/core"
	"github.com/hupe1980/novelmesh/evaluation"
)

// Terminal is the synthetic node that ends a phase run.
const Terminal = "__end__"

// Node roles.
const (
	RoleDirector   = "director"
	RoleSpecialist = "specialist"
)

// Node is one agent of a phase graph.
type Node struct {
	Name  string
	Role  string
	Agent core.Agent
}

// IsDirector reports whether the node routes.
func (n *Node) IsDirector() bool { return n.Role == RoleDirector }

// Edge is a possible transition of the static graph.
type Edge struct {
	From string
	To   string
}

// Decision explains a routing choice.
type Decision struct {
	Next string
	// Reason is "editing_type", "keyword", "gate_passed" or "gate_failed".
	Reason string
	// Gate is set when the quality gate was consulted.
	Gate *evaluation.Result
}

// Graph is the star-shaped graph of one phase: the director is the entry
// node, every specialist returns to it, and only it can reach Terminal.
type Graph struct {
	Phase     core.Phase
	Blueprint Blueprint
	nodes     map[string]*Node
	evaluator evaluation.Evaluator
}

// Entry returns the name of the entry node.
func (g *Graph) Entry() string { return g.Blueprint.Director }

// Node returns the node called name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns the node names, director first, then specialists in
// declaration order.
func (g *Graph) Nodes() []string {
	return append([]string{g.Blueprint.Director}, g.Blueprint.Specialists...)
}

// TeamOf returns the blueprint team the specialist belongs to, or "".
func (g *Graph) TeamOf(specialist string) string {
	teams := make([]string, 0, len(g.Blueprint.Teams))
	for t := range g.Blueprint.Teams {
		teams = append(teams, t)
	}
	sort.Strings(teams)
	for _, t := range teams {
		for _, m := range g.Blueprint.Teams[t] {
			if m == specialist {
				return t
			}
		}
	}
	return ""
}

// Edges returns the static edge set, sorted.
func (g *Graph) Edges() []Edge {
	d := g.Blueprint.Director
	edges := []Edge{{From: d, To: Terminal}}
	if g.Blueprint.DefaultNode() == d {
		edges = append(edges, Edge{From: d, To: d})
	}
	for _, s := range g.Blueprint.Specialists {
		edges = append(edges, Edge{From: d, To: s}, Edge{From: s, To: d})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// Validate checks the star topology: the entry node is the director, each
// specialist has exactly one outgoing edge which targets the director, and
// only the director targets Terminal.
func (g *Graph) Validate() error {
	d := g.Entry()
	if n, ok := g.nodes[d]; !ok || !n.IsDirector() {
		return core.NewConfigurationError("phase %s: entry %q is not a director node", g.Phase, d)
	}

	out := map[string][]string{}
	for _, e := range g.Edges() {
		if e.To != Terminal {
			if _, ok := g.nodes[e.To]; !ok {
				return core.NewConfigurationError("phase %s: edge %s->%s targets unknown node", g.Phase, e.From, e.To)
			}
		}
		out[e.From] = append(out[e.From], e.To)
	}
	for name, n := range g.nodes {
		if n.IsDirector() {
			if name != d {
				return core.NewConfigurationError("phase %s: second director %q", g.Phase, name)
			}
			continue
		}
		targets := out[name]
		if len(targets) != 1 || targets[0] != d {
			return core.NewConfigurationError("phase %s: specialist %q must return only to %q", g.Phase, name, d)
		}
	}
	return nil
}

// Next returns the node following from once it has run. Specialists always
// return to the director; directors route.
func (g *Graph) Next(from string, state *core.SystemState) (Decision, error) {
	n, ok := g.nodes[from]
	if !ok {
		return Decision{}, core.NewConfigurationError("phase %s: unknown node %q", g.Phase, from)
	}
	if !n.IsDirector() {
		return Decision{Next: g.Entry(), Reason: "return"}, nil
	}
	return g.Route(state)
}

// Route is the director's routing function. It is deterministic for a given
// state:
//
//  1. an exact editing_type match selects its specialist
//  2. the first rule with a keyword contained in the task selects its specialist
//  3. otherwise the phase's quality gate decides: pass ends the phase, fail
//     selects the blueprint's default node
//
// Specialists already visited in the run are not selected again by steps 1
// and 2.
func (g *Graph) Route(state *core.SystemState) (Decision, error) {
	if et := strings.ToLower(strings.TrimSpace(state.Input.EditingType)); et != "" {
		for _, r := range g.Blueprint.Rules {
			if state.HasVisited(r.Target) {
				continue
			}
			for _, t := range r.EditingTypes {
				if strings.ToLower(t) == et {
					return Decision{Next: r.Target, Reason: "editing_type"}, nil
				}
			}
		}
	}

	task := strings.ToLower(state.Input.Task)
	for _, r := range g.Blueprint.Rules {
		if state.HasVisited(r.Target) {
			continue
		}
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(task, strings.ToLower(kw)) {
				return Decision{Next: r.Target, Reason: "keyword"}, nil
			}
		}
	}

	var qa core.QualityAssessment
	if state.Project != nil {
		qa = state.Project.QualityAssessment
	}
	res, err := g.evaluator.Evaluate(core.TransitionName(g.Phase), qa)
	if err != nil {
		return Decision{}, err
	}
	if res.Passed {
		return Decision{Next: Terminal, Reason: "gate_passed", Gate: &res}, nil
	}
	return Decision{Next: g.Blueprint.DefaultNode(), Reason: "gate_failed", Gate: &res}, nil
}
