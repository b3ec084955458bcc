package reindex

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/cagkit/internal/store"
	"github.com/kittclouds/cagkit/pkg/cag"
	"github.com/kittclouds/cagkit/pkg/filter"
)

func seedDocuments(t *testing.T, s store.Storer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		source := "reuters"
		if i%2 == 1 {
			source = "ap"
		}
		require.NoError(t, s.UpsertDocument(&store.Document{
			ID:     fmt.Sprintf("d%02d", i),
			Title:  fmt.Sprintf("Report %d", i),
			Fields: map[string]any{"source": source},
		}))
	}
}

func TestRunPagesThroughAllDocuments(t *testing.T) {
	s := store.NewMemStore()
	seedDocuments(t, s, 11)

	var pages []Report
	r := New(s, SetField("reviewed", true))
	r.BatchSize = 4
	r.OnPage = func(rep Report) { pages = append(pages, rep) }

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, report.Scanned)
	assert.Equal(t, 11, report.Matched)
	assert.Equal(t, 11, report.Updated)
	assert.Equal(t, 3, report.Pages)
	require.Len(t, pages, 3)
	assert.Equal(t, 4, pages[0].Scanned)
	assert.Equal(t, 8, pages[1].Scanned)

	doc, err := s.GetDocument("d10")
	require.NoError(t, err)
	assert.Equal(t, true, doc.Fields["reviewed"])
	assert.Equal(t, 2, doc.Version)
}

func TestRunIsIdempotent(t *testing.T) {
	s := store.NewMemStore()
	seedDocuments(t, s, 5)

	r := New(s, SetField("reviewed", true))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 5, report.Unchanged)
}

func TestRunAppliesFilters(t *testing.T) {
	s := store.NewMemStore()
	seedDocuments(t, s, 6)

	r := New(s, SetField("wire", true))
	r.Filters = []filter.Filter{filter.Terms{FieldName: "source", Values: []string{"ap"}}}

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, report.Scanned)
	assert.Equal(t, 3, report.Matched)
	assert.Equal(t, 3, report.Updated)

	doc, err := s.GetDocument("d00")
	require.NoError(t, err)
	assert.NotContains(t, doc.Fields, "wire")
	doc, err = s.GetDocument("d01")
	require.NoError(t, err)
	assert.Equal(t, true, doc.Fields["wire"])
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	s := store.NewMemStore()
	seedDocuments(t, s, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(s).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReferenceCounts(t *testing.T) {
	s := store.NewMemStore()
	seedDocuments(t, s, 3)

	graphs := map[string]cag.Graph{
		"drought": {Edges: []cag.Edge{
			{ID: "e1", Source: "a", Target: "b", ReferenceIDs: []string{"d00", "d01", "d00"}},
			{ID: "e2", Source: "b", Target: "c", ReferenceIDs: []string{"d00"}},
		}},
		"conflict": {Edges: []cag.Edge{
			{ID: "e9", Source: "x", Target: "y", ReferenceIDs: []string{"d00"}},
		}},
	}

	report, err := New(s, ReferenceCounts(graphs)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Updated)

	d0, err := s.GetDocument("d00")
	require.NoError(t, err)
	assert.Equal(t, 3.0, d0.Fields[FieldReferenceCount])
	assert.Equal(t, []any{"conflict", "drought"}, d0.Fields[FieldCAGIDs])

	d1, err := s.GetDocument("d01")
	require.NoError(t, err)
	assert.Equal(t, 1.0, d1.Fields[FieldReferenceCount])

	d2, err := s.GetDocument("d02")
	require.NoError(t, err)
	assert.Equal(t, 0.0, d2.Fields[FieldReferenceCount])
	assert.Equal(t, []any{}, d2.Fields[FieldCAGIDs])

	// Stored values compare equal to freshly computed ones
	report, err = New(s, ReferenceCounts(graphs)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Updated)
}

func TestSetFieldReportsChange(t *testing.T) {
	doc := &store.Document{ID: "d", Fields: map[string]any{"n": 2.0}}
	assert.False(t, SetField("n", 2)(doc))
	assert.True(t, SetField("n", 3)(doc))
	assert.True(t, SetField("m", "x")(&store.Document{ID: "e"}))
}
