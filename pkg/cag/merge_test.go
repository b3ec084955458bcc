package cag

import (
	"bytes"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rainfallGraph() Graph {
	return Graph{
		Nodes: []Node{
			{ID: "n-rain", Concept: "wm/concept/rainfall"},
			{ID: "n-flood", Concept: "wm/concept/flooding"},
		},
		Edges: []Edge{
			{ID: "e1", Source: "n-rain", Target: "n-flood", ReferenceIDs: []string{"s1"}, Polarity: 1},
		},
	}
}

func TestMergeDisjointGraphs(t *testing.T) {
	a := rainfallGraph()
	b := Graph{
		Nodes: []Node{
			{ID: "n-crop", Concept: "wm/concept/crop_production"},
			{ID: "n-price", Concept: "wm/concept/food_price"},
		},
		Edges: []Edge{
			{ID: "e2", Source: "n-crop", Target: "n-price", ReferenceIDs: []string{"s2"}},
		},
	}

	merged := Merge(a, b)
	assert.Len(t, merged.Nodes, 4)
	assert.Len(t, merged.Edges, 2)

	ids := make([]string, 0, len(merged.Nodes))
	for _, n := range merged.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"n-rain", "n-flood", "n-crop", "n-price"}, ids)
	assert.Equal(t, "e1", merged.Edges[0].ID)
	assert.Equal(t, "e2", merged.Edges[1].ID)
}

func TestMergeUnionsReferenceIDs(t *testing.T) {
	a := rainfallGraph()
	b := rainfallGraph()
	b.Edges[0].ReferenceIDs = []string{"s3"}

	merged := Merge(a, b)
	require.Len(t, merged.Nodes, 2)
	require.Len(t, merged.Edges, 1)

	refs := append([]string(nil), merged.Edges[0].ReferenceIDs...)
	sort.Strings(refs)
	assert.Equal(t, []string{"s1", "s3"}, refs)
}

func TestMergeIsIdempotent(t *testing.T) {
	a := rainfallGraph()
	a.Edges[0].ReferenceIDs = []string{"s1", "s2"}

	merged := Merge(a, a)
	if diff := cmp.Diff(a, merged); diff != "" {
		t.Errorf("self-merge changed graph (-want +got):\n%s", diff)
	}

	twice := Merge(merged, a)
	assert.Len(t, twice.Nodes, len(a.Nodes))
	assert.Len(t, twice.Edges, len(a.Edges))
	assert.Len(t, twice.Edges[0].ReferenceIDs, 2)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	a := rainfallGraph()
	b := rainfallGraph()
	b.Edges[0].ReferenceIDs = []string{"s9"}
	b.Nodes = append(b.Nodes, Node{ID: "n-new", Concept: "wm/concept/new"})

	wantA, wantB := a.Clone(), b.Clone()
	merged := Merge(a, b)

	if diff := cmp.Diff(wantA, a); diff != "" {
		t.Errorf("base mutated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantB, b); diff != "" {
		t.Errorf("incoming mutated (-want +got):\n%s", diff)
	}

	// The merged copy must not share reference storage with either input.
	merged.Edges[0].ReferenceIDs[0] = "changed"
	assert.Equal(t, "s1", a.Edges[0].ReferenceIDs[0])
}

func TestMergeIntoReportsChanges(t *testing.T) {
	base := rainfallGraph()
	incoming := Graph{
		Nodes: []Node{
			{ID: "n-rain", Concept: "wm/concept/rainfall", Label: "ignored"},
			{ID: "n-drought", Concept: "wm/concept/drought"},
		},
		Edges: []Edge{
			{ID: "e1", Source: "n-flood", Target: "n-rain", ReferenceIDs: []string{"s1", "s4"}, Polarity: -1},
			{ID: "e3", Source: "n-drought", Target: "n-flood", ReferenceIDs: []string{"s5"}},
		},
	}

	report := MergeInto(&base, incoming)
	assert.Equal(t, MergeReport{NodesAdded: 1, EdgesAdded: 1, EdgesMerged: 1, ReferencesAdded: 1}, report)
	assert.True(t, report.Changed())

	// Existing node and edge attributes are left alone; only references grow.
	assert.Empty(t, base.Nodes[0].Label)
	assert.Equal(t, "n-rain", base.Edges[0].Source)
	assert.Equal(t, 1, base.Edges[0].Polarity)
	assert.Equal(t, []string{"s1", "s4"}, base.Edges[0].ReferenceIDs)

	again := MergeInto(&base, incoming)
	assert.False(t, again.Changed())
}

func TestMergeIdentityIsByIDNotEndpoints(t *testing.T) {
	base := rainfallGraph()
	incoming := Graph{Edges: []Edge{
		{ID: "e1-dup", Source: "n-rain", Target: "n-flood", ReferenceIDs: []string{"s1"}},
	}}

	merged := Merge(base, incoming)
	assert.Len(t, merged.Edges, 2)
}

func TestMergeDeduplicatesWithinIncoming(t *testing.T) {
	incoming := Graph{
		Nodes: []Node{{ID: "x"}, {ID: "x"}},
		Edges: []Edge{
			{ID: "e", Source: "x", Target: "x", ReferenceIDs: []string{"a"}},
			{ID: "e", Source: "x", Target: "x", ReferenceIDs: []string{"b", "a"}},
		},
	}

	merged := Merge(Graph{}, incoming)
	require.Len(t, merged.Nodes, 1)
	require.Len(t, merged.Edges, 1)
	assert.Equal(t, []string{"a", "b"}, merged.Edges[0].ReferenceIDs)
	assert.Equal(t, []string{"a"}, incoming.Edges[0].ReferenceIDs)
}

func TestUnionReferences(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, UnionReferences([]string{"a", "b", "a"}, []string{"c", "b"}))
	assert.Empty(t, UnionReferences(nil, nil))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(rainfallGraph()))

	bad := Graph{
		Nodes: []Node{{ID: "a"}, {ID: "a"}, {ID: ""}},
		Edges: []Edge{
			{ID: "e", Source: "a", Target: "missing", ReferenceIDs: []string{"s", "s"}},
			{ID: "e", Source: "a", Target: "a"},
		},
	}
	err := Validate(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.ErrorIs(t, err, ErrDanglingEdge)
	assert.ErrorIs(t, err, ErrDuplicateRefs)
}

func TestEncodeDecodeSnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, rainfallGraph()))
	assert.Contains(t, buf.String(), `"reference_ids"`)

	got, err := Decode(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(rainfallGraph(), got); diff != "" {
		t.Errorf("decoded graph differs (-want +got):\n%s", diff)
	}

	_, err = Decode(bytes.NewBufferString("{not json"))
	assert.Error(t, err)

	buf.Reset()
	require.NoError(t, Encode(&buf, Graph{}))
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, buf.String())
}
