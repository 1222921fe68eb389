package flow

import (
	"sort"

	"github.com/claraverse/agentflow/pkg/errors"
)

// Stage is a maximal set of nodes with no edges among them. Nodes within
// a stage may execute concurrently; stages execute in order.
type Stage struct {
	Nodes []string `json:"nodes"`
}

// Binding resolves one input port of a node to the upstream node and
// output port that feed it. When several edges target the same input
// port, the first edge in graph declaration order wins; later edges are
// validated and kept for reachability but never deliver a value.
type Binding struct {
	Source       string
	SourceOutput PortType
}

// Plan is the compiled, ordered sequence of stages derived from a graph.
// A plan is pure data: it can be reused across any number of runs of the
// unchanged graph.
type Plan struct {
	GraphID string
	Stages  []Stage

	nodes    map[string]Node
	bindings map[string]map[PortType]Binding
	succs    map[string][]Edge
	preds    map[string][]Edge
}

// NodeCount returns the number of nodes in the plan.
func (p *Plan) NodeCount() int { return len(p.nodes) }

// Node returns the node with the given id.
func (p *Plan) Node(id string) (Node, bool) {
	n, ok := p.nodes[id]
	return n, ok
}

// Bindings returns the resolved input bindings for a node, keyed by
// input port.
func (p *Plan) Bindings(id string) map[PortType]Binding {
	return p.bindings[id]
}

// Successors returns the outgoing edges of a node in declaration order.
func (p *Plan) Successors(id string) []Edge {
	return p.succs[id]
}

// Predecessors returns the incoming edges of a node in declaration order.
// Every incoming edge is a required dependency for eligibility purposes.
func (p *Plan) Predecessors(id string) []Edge {
	return p.preds[id]
}

// Compile turns a graph into an execution plan: it validates structure
// and port compatibility, resolves input bindings, and layers the nodes
// with Kahn's algorithm. Compilation is deterministic: stages list node
// ids in lexical order, so identical graphs always yield identical plans.
func Compile(g *Graph) (*Plan, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	plan := &Plan{
		GraphID:  g.ID,
		nodes:    make(map[string]Node, len(g.Nodes)),
		bindings: make(map[string]map[PortType]Binding, len(g.Nodes)),
		succs:    make(map[string][]Edge, len(g.Nodes)),
		preds:    make(map[string][]Edge, len(g.Nodes)),
	}
	for _, n := range g.Nodes {
		plan.nodes[n.ID] = n
	}

	indegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		plan.succs[e.Source] = append(plan.succs[e.Source], e)
		plan.preds[e.Target] = append(plan.preds[e.Target], e)
		indegree[e.Target]++

		ports := plan.bindings[e.Target]
		if ports == nil {
			ports = make(map[PortType]Binding)
			plan.bindings[e.Target] = ports
		}
		// First resolving edge wins for a given input port.
		if _, bound := ports[e.TargetInput]; !bound {
			ports[e.TargetInput] = Binding{Source: e.Source, SourceOutput: e.SourceOutput}
		}
	}

	remaining := len(g.Nodes)
	for remaining > 0 {
		var ready []string
		for id, deg := range indegree {
			if deg == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			var involved []string
			for id, deg := range indegree {
				if deg > 0 {
					involved = append(involved, id)
				}
			}
			sort.Strings(involved)
			return nil, errors.New(errors.CodeCycle, "graph contains a cycle", nil).
				WithContext("nodes", involved)
		}
		sort.Strings(ready)
		plan.Stages = append(plan.Stages, Stage{Nodes: ready})
		remaining -= len(ready)
		for _, id := range ready {
			delete(indegree, id)
			for _, e := range plan.succs[id] {
				if _, present := indegree[e.Target]; present {
					indegree[e.Target]--
				}
			}
		}
	}

	return plan, nil
}
