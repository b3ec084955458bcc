// Package cag models causal analysis graphs: concept nodes joined by
// causal-influence edges that cite supporting evidence documents.
package cag

import (
	"encoding/json"
	"fmt"
	"io"
)

// Node is a concept in the graph.
type Node struct {
	ID      string `json:"id"`
	Concept string `json:"concept"`
	Label   string `json:"label,omitempty"`
}

// Edge is a directed causal influence from Source to Target. ReferenceIDs
// lists the evidence documents supporting it; order is not significant.
type Edge struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	ReferenceIDs []string `json:"reference_ids"`
	Polarity     int      `json:"polarity,omitempty"`
	BeliefScore  float64  `json:"belief_score,omitempty"`
}

// Graph is a snapshot of a CAG.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy of g.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	for i, e := range g.Edges {
		out.Edges[i] = e.clone()
	}
	return out
}

func (e Edge) clone() Edge {
	if e.ReferenceIDs != nil {
		e.ReferenceIDs = append([]string(nil), e.ReferenceIDs...)
	}
	return e
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Edge returns the edge with the given id.
func (g Graph) Edge(id string) (Edge, bool) {
	for _, e := range g.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return Edge{}, false
}

// Decode reads a JSON snapshot of the form {"nodes": [...], "edges": [...]}.
func Decode(r io.Reader) (Graph, error) {
	var g Graph
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return Graph{}, fmt.Errorf("cag: decode graph: %w", err)
	}
	return g, nil
}

// Encode writes g as indented JSON.
func Encode(w io.Writer, g Graph) error {
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("cag: encode graph: %w", err)
	}
	return nil
}
