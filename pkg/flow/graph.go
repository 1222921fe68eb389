// Package flow holds the workflow graph model and the plan compiler.
// A graph is an arena of nodes indexed by id plus an edge list; it is
// handed to the compiler by value and never mutated during a run.
package flow

import (
	"github.com/claraverse/agentflow/pkg/errors"
)

// PortType names a typed input or output port. Ports are compared by
// name: an edge is valid only when both ends declare the same port name.
type PortType string

// Node is a single typed unit of work in a workflow graph.
// Config is opaque to the compiler and engine; only the handler bound to
// Type interprets it.
type Node struct {
	ID      string         `json:"id" yaml:"id"`
	Type    string         `json:"type" yaml:"type"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Inputs  []PortType     `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []PortType     `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// HasInput reports whether the node declares the given input port.
func (n Node) HasInput(port PortType) bool {
	for _, p := range n.Inputs {
		if p == port {
			return true
		}
	}
	return false
}

// HasOutput reports whether the node declares the given output port.
func (n Node) HasOutput(port PortType) bool {
	for _, p := range n.Outputs {
		if p == port {
			return true
		}
	}
	return false
}

// Edge is a typed data dependency from one node's output port to
// another node's input port.
type Edge struct {
	Source       string   `json:"source" yaml:"source"`
	SourceOutput PortType `json:"sourceOutput" yaml:"sourceOutput"`
	Target       string   `json:"target" yaml:"target"`
	TargetInput  PortType `json:"targetInput" yaml:"targetInput"`
}

// Graph is the immutable-per-run representation of a workflow.
// Name, Description, Icon and Color are editor metadata carried opaquely.
type Graph struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color       string `json:"color,omitempty" yaml:"color,omitempty"`
	Nodes       []Node `json:"nodes" yaml:"nodes"`
	Edges       []Edge `json:"edges" yaml:"edges"`
}

// NodeByID returns the node with the given id, if present.
func (g *Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Validate ensures the graph is structurally sound: every node has an id
// and a type, ids are unique, and every edge resolves to declared ports
// on existing nodes. Violations carry the error codes the compiler
// surfaces, so Validate and Compile agree on classification.
func (g *Graph) Validate() error {
	if g == nil {
		return errors.New(errors.CodeInvalidInput, "graph is nil", nil)
	}
	if len(g.Nodes) == 0 {
		return errors.New(errors.CodeInvalidInput, "graph has no nodes", nil)
	}

	seen := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		if node.ID == "" {
			return errors.New(errors.CodeInvalidInput, "node id is required", nil)
		}
		if node.Type == "" {
			return errors.Newf(errors.CodeInvalidInput, "node %q missing type", node.ID)
		}
		if seen[node.ID] {
			return errors.Newf(errors.CodeDuplicateID, "duplicate node id %q", node.ID).
				WithContext("node", node.ID)
		}
		seen[node.ID] = true
	}

	for _, edge := range g.Edges {
		if err := g.validateEdge(edge); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) validateEdge(edge Edge) error {
	if edge.Source == "" || edge.Target == "" {
		return errors.New(errors.CodeInvalidEdge, "edge must include source/target", nil)
	}
	source, ok := g.NodeByID(edge.Source)
	if !ok {
		return errors.Newf(errors.CodeDanglingReference, "edge source %q not found", edge.Source).
			WithContext("edge", edgeLabel(edge))
	}
	target, ok := g.NodeByID(edge.Target)
	if !ok {
		return errors.Newf(errors.CodeDanglingReference, "edge target %q not found", edge.Target).
			WithContext("edge", edgeLabel(edge))
	}
	if !source.HasOutput(edge.SourceOutput) {
		return errors.Newf(errors.CodeInvalidEdge,
			"node %q does not declare output port %q", edge.Source, edge.SourceOutput).
			WithContext("edge", edgeLabel(edge))
	}
	if !target.HasInput(edge.TargetInput) {
		return errors.Newf(errors.CodeInvalidEdge,
			"node %q does not declare input port %q", edge.Target, edge.TargetInput).
			WithContext("edge", edgeLabel(edge))
	}
	if edge.SourceOutput != edge.TargetInput {
		return errors.Newf(errors.CodeInvalidEdge,
			"port mismatch on edge %s: %q != %q", edgeLabel(edge), edge.SourceOutput, edge.TargetInput).
			WithContext("edge", edgeLabel(edge))
	}
	return nil
}

func edgeLabel(edge Edge) string {
	return edge.Source + "." + string(edge.SourceOutput) + " -> " +
		edge.Target + "." + string(edge.TargetInput)
}
