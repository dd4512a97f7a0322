// Package workflow builds the computation graphs submitted to the compute
// backend. A graph maps node ids to typed nodes whose inputs are either
// literal values or references to another node's output slot.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDanglingRef is returned when an input references a node that is not in the graph.
	ErrDanglingRef = errors.New("workflow: reference to unknown node")
	// ErrCycle is returned when the graph is not acyclic.
	ErrCycle = errors.New("workflow: cycle detected")
	// ErrEmptyPrompt is returned by Build when the positive prompt is blank.
	ErrEmptyPrompt = errors.New("workflow: prompt is required")
)

// Input is either a Literal or a NodeRef.
type Input interface {
	isInput()
}

// Literal is a constant input value (string, number or bool).
type Literal struct {
	Value any
}

// NodeRef points at output slot Slot of node NodeID.
type NodeRef struct {
	NodeID string
	Slot   int
}

func (Literal) isInput() {}
func (NodeRef) isInput() {}

// Lit wraps v as a literal input.
func Lit(v any) Literal { return Literal{Value: v} }

// Ref builds a reference to slot of node id.
func Ref(id string, slot int) NodeRef { return NodeRef{NodeID: id, Slot: slot} }

// Node is a single computation step.
type Node struct {
	ClassType string
	Title     string
	Inputs    map[string]Input
}

// Graph is a workflow keyed by node id.
type Graph struct {
	nodes map[string]*Node
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Add inserts or replaces the node stored under id.
func (g *Graph) Add(id string, n *Node) {
	if n.Inputs == nil {
		n.Inputs = make(map[string]Input)
	}
	g.nodes[id] = n
}

// Remove deletes a node. References to it are not rewritten; Validate will
// report them.
func (g *Graph) Remove(id string) {
	delete(g.nodes, id)
}

// Node returns the node stored under id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// IDs returns node ids in ascending order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Set overwrites one input of node id.
func (g *Graph) Set(id, input string, value Input) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("workflow: set %s.%s: node not found", id, input)
	}
	n.Inputs[input] = value
	return nil
}

// SetLiteral is shorthand for Set(id, input, Lit(v)).
func (g *Graph) SetLiteral(id, input string, v any) error {
	return g.Set(id, input, Lit(v))
}

// Clone returns a deep copy. Literal values are scalars so copying the
// interface value is enough.
func (g *Graph) Clone() *Graph {
	out := &Graph{nodes: make(map[string]*Node, len(g.nodes))}
	for id, n := range g.nodes {
		inputs := make(map[string]Input, len(n.Inputs))
		for k, v := range n.Inputs {
			inputs[k] = v
		}
		out.nodes[id] = &Node{ClassType: n.ClassType, Title: n.Title, Inputs: inputs}
	}
	return out
}

// Validate checks that every reference resolves and that the graph is a DAG.
func (g *Graph) Validate() error {
	for _, id := range g.IDs() {
		n := g.nodes[id]
		if n.ClassType == "" {
			return fmt.Errorf("workflow: node %s has no class type", id)
		}
		for _, name := range sortedInputNames(n) {
			ref, ok := n.Inputs[name].(NodeRef)
			if !ok {
				continue
			}
			if _, exists := g.nodes[ref.NodeID]; !exists {
				return fmt.Errorf("%w: %s.%s -> %s", ErrDanglingRef, id, name, ref.NodeID)
			}
			if ref.Slot < 0 {
				return fmt.Errorf("workflow: %s.%s has negative slot %d", id, name, ref.Slot)
			}
		}
	}
	return g.detectCycles()
}

// detectCycles runs a depth-first search over dependency edges, keeping a
// temporary mark for the current path and a permanent mark for finished nodes.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool, len(g.nodes))
	temporary := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if permanent[id] {
			return nil
		}
		if temporary[id] {
			return fmt.Errorf("%w involving node %s", ErrCycle, id)
		}
		temporary[id] = true
		n := g.nodes[id]
		for _, name := range sortedInputNames(n) {
			if ref, ok := n.Inputs[name].(NodeRef); ok {
				if err := visit(ref.NodeID); err != nil {
					return err
				}
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for _, id := range g.IDs() {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

func sortedInputNames(n *Node) []string {
	names := make([]string, 0, len(n.Inputs))
	for k := range n.Inputs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type wireNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      *wireMeta      `json:"_meta,omitempty"`
}

type wireMeta struct {
	Title string `json:"title"`
}

// MarshalJSON encodes the graph in the backend's API format, where a
// reference is the two element array [node id, slot].
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := make(map[string]wireNode, len(g.nodes))
	for id, n := range g.nodes {
		inputs := make(map[string]any, len(n.Inputs))
		for k, in := range n.Inputs {
			switch v := in.(type) {
			case Literal:
				inputs[k] = v.Value
			case NodeRef:
				inputs[k] = []any{v.NodeID, v.Slot}
			default:
				return nil, fmt.Errorf("workflow: %s.%s has unsupported input %T", id, k, in)
			}
		}
		wn := wireNode{ClassType: n.ClassType, Inputs: inputs}
		if n.Title != "" {
			wn.Meta = &wireMeta{Title: n.Title}
		}
		out[id] = wn
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the backend API format. A two element array whose
// first item is a string naming a node in the graph is read as a reference.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw map[string]struct {
		ClassType string                     `json:"class_type"`
		Inputs    map[string]json.RawMessage `json:"inputs"`
		Meta      *wireMeta                  `json:"_meta"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("workflow: decode graph: %w", err)
	}

	g.nodes = make(map[string]*Node, len(raw))
	for id, rn := range raw {
		n := &Node{ClassType: rn.ClassType, Inputs: make(map[string]Input, len(rn.Inputs))}
		if rn.Meta != nil {
			n.Title = rn.Meta.Title
		}
		g.nodes[id] = n
	}
	for id, rn := range raw {
		for k, msg := range rn.Inputs {
			in, err := decodeInput(msg, raw)
			if err != nil {
				return fmt.Errorf("workflow: decode %s.%s: %w", id, k, err)
			}
			g.nodes[id].Inputs[k] = in
		}
	}
	return nil
}

func decodeInput[T any](msg json.RawMessage, nodes map[string]T) (Input, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(msg, &pair); err == nil && len(pair) == 2 {
		var nodeID string
		var slot int
		if json.Unmarshal(pair[0], &nodeID) == nil && json.Unmarshal(pair[1], &slot) == nil {
			if _, ok := nodes[nodeID]; ok {
				return NodeRef{NodeID: nodeID, Slot: slot}, nil
			}
		}
	}

	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return nil, err
	}
	return Literal{Value: v}, nil
}
