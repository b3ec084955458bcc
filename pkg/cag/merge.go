package cag

// MergeReport summarises what MergeInto changed.
type MergeReport struct {
	NodesAdded      int `json:"nodesAdded"`
	EdgesAdded      int `json:"edgesAdded"`
	EdgesMerged     int `json:"edgesMerged"`
	ReferencesAdded int `json:"referencesAdded"`
}

// Changed reports whether the merge modified the base graph.
func (r MergeReport) Changed() bool {
	return r.NodesAdded+r.EdgesAdded+r.ReferencesAdded > 0
}

// Merge reconciles incoming into a copy of base and returns the copy.
// Neither argument is modified.
func Merge(base, incoming Graph) Graph {
	out := base.Clone()
	MergeInto(&out, incoming)
	return out
}

// MergeInto reconciles incoming into base in place.
//
// Nodes are matched by id; unseen nodes are appended and existing ones are
// left untouched. Edges are matched by id only, never by endpoints: unseen
// edges are appended verbatim, and for a known edge the reference ids of
// both sides are unioned onto the existing edge. Existing items keep their
// position and new items follow in incoming order, so merging a graph with
// itself is a no-op.
func MergeInto(base *Graph, incoming Graph) MergeReport {
	var report MergeReport

	nodeIndex := make(map[string]struct{}, len(base.Nodes)+len(incoming.Nodes))
	for _, n := range base.Nodes {
		nodeIndex[n.ID] = struct{}{}
	}
	for _, n := range incoming.Nodes {
		if _, ok := nodeIndex[n.ID]; ok {
			continue
		}
		nodeIndex[n.ID] = struct{}{}
		base.Nodes = append(base.Nodes, n)
		report.NodesAdded++
	}

	edgeIndex := make(map[string]int, len(base.Edges)+len(incoming.Edges))
	for i, e := range base.Edges {
		if _, ok := edgeIndex[e.ID]; !ok {
			edgeIndex[e.ID] = i
		}
	}
	for _, e := range incoming.Edges {
		i, ok := edgeIndex[e.ID]
		if !ok {
			edgeIndex[e.ID] = len(base.Edges)
			base.Edges = append(base.Edges, e.clone())
			report.EdgesAdded++
			continue
		}
		existing := &base.Edges[i]
		before := len(existing.ReferenceIDs)
		existing.ReferenceIDs = UnionReferences(existing.ReferenceIDs, e.ReferenceIDs)
		report.EdgesMerged++
		if added := len(existing.ReferenceIDs) - before; added > 0 {
			report.ReferencesAdded += added
		}
	}

	return report
}

// UnionReferences returns the distinct values of a followed by the values of
// b not already seen. The result never aliases b.
func UnionReferences(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, ref := range list {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			out = append(out, ref)
		}
	}
	return out
}
