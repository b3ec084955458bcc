package cag

import "sort"

// Topology is a read-only adjacency view over a Graph snapshot.
type Topology struct {
	nodes map[string]*Node

	// Adjacency lists: SourceID -> TargetID -> Edge
	outbound map[string]map[string]*Edge
	inbound  map[string]map[string]*Edge
}

// Link pairs an edge with the node at its far end.
type Link struct {
	Node *Node
	Edge *Edge
}

// NewTopology indexes g. Edges whose endpoints are missing from g are
// skipped; later edges win when two share the same endpoints.
func NewTopology(g Graph) *Topology {
	t := &Topology{
		nodes:    make(map[string]*Node, len(g.Nodes)),
		outbound: make(map[string]map[string]*Edge),
		inbound:  make(map[string]map[string]*Edge),
	}
	for i := range g.Nodes {
		n := g.Nodes[i]
		if _, exists := t.nodes[n.ID]; !exists {
			t.nodes[n.ID] = &n
		}
	}
	for i := range g.Edges {
		e := g.Edges[i]
		if t.nodes[e.Source] == nil || t.nodes[e.Target] == nil {
			continue
		}
		if t.outbound[e.Source] == nil {
			t.outbound[e.Source] = make(map[string]*Edge)
		}
		t.outbound[e.Source][e.Target] = &e

		// Maintain reverse index
		if t.inbound[e.Target] == nil {
			t.inbound[e.Target] = make(map[string]*Edge)
		}
		t.inbound[e.Target][e.Source] = &e
	}
	return t
}

// NodeCount returns the number of distinct nodes.
func (t *Topology) NodeCount() int {
	return len(t.nodes)
}

// EdgeCount returns the number of indexed source/target pairs.
func (t *Topology) EdgeCount() int {
	count := 0
	for _, targets := range t.outbound {
		count += len(targets)
	}
	return count
}

// OutgoingEdges returns all edges originating from a node, ordered by target id.
func (t *Topology) OutgoingEdges(id string) []Link {
	return t.links(t.outbound[id])
}

// IncomingEdges returns all edges pointing to a node, ordered by source id.
func (t *Topology) IncomingEdges(id string) []Link {
	return t.links(t.inbound[id])
}

func (t *Topology) links(edges map[string]*Edge) []Link {
	if len(edges) == 0 {
		return nil
	}
	result := make([]Link, 0, len(edges))
	for otherID, edge := range edges {
		result = append(result, Link{Node: t.nodes[otherID], Edge: edge})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Node.ID < result[j].Node.ID })
	return result
}

// Neighbors returns all nodes connected to the given node in either
// direction, ordered by id.
func (t *Topology) Neighbors(id string) []*Node {
	seen := make(map[string]bool)
	var result []*Node

	for targetID := range t.outbound[id] {
		if !seen[targetID] {
			seen[targetID] = true
			result = append(result, t.nodes[targetID])
		}
	}
	for sourceID := range t.inbound[id] {
		if !seen[sourceID] {
			seen[sourceID] = true
			result = append(result, t.nodes[sourceID])
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// DegreeCentrality computes (in+out)/(2*(n-1)) for each node.
func (t *Topology) DegreeCentrality() map[string]float64 {
	n := len(t.nodes)
	result := make(map[string]float64, n)
	if n <= 1 {
		for id := range t.nodes {
			result[id] = 0.0
		}
		return result
	}

	normalizer := 2.0 * float64(n-1)
	for id := range t.nodes {
		result[id] = float64(len(t.outbound[id])+len(t.inbound[id])) / normalizer
	}
	return result
}

// OrphanNodes returns nodes with no connections, ordered by id.
func (t *Topology) OrphanNodes() []*Node {
	var orphans []*Node
	for id, node := range t.nodes {
		if len(t.outbound[id]) == 0 && len(t.inbound[id]) == 0 {
			orphans = append(orphans, node)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].ID < orphans[j].ID })
	return orphans
}

// Ranked is a node id with a score.
type Ranked struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// TopCentral returns the k most central nodes, ties broken by id.
func (t *Topology) TopCentral(k int) []Ranked {
	centrality := t.DegreeCentrality()
	ranked := make([]Ranked, 0, len(centrality))
	for id, score := range centrality {
		ranked = append(ranked, Ranked{ID: id, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
	if k >= 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

// Summary holds headline counts for a graph.
type Summary struct {
	Nodes      int `json:"nodes"`
	Edges      int `json:"edges"`
	References int `json:"references"`
	Orphans    int `json:"orphans"`
}

// Stats summarises g. References counts distinct reference ids.
func Stats(g Graph) Summary {
	refs := make(map[string]struct{})
	for _, e := range g.Edges {
		for _, r := range e.ReferenceIDs {
			refs[r] = struct{}{}
		}
	}
	return Summary{
		Nodes:      len(g.Nodes),
		Edges:      len(g.Edges),
		References: len(refs),
		Orphans:    len(NewTopology(g).OrphanNodes()),
	}
}
