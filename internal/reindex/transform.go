package reindex

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/kittclouds/cagkit/internal/store"
	"github.com/kittclouds/cagkit/pkg/cag"
)

// Field names written by ReferenceCounts.
const (
	FieldReferenceCount = "cag_reference_count"
	FieldCAGIDs         = "cag_ids"
)

// Transform modifies doc in place and reports whether anything changed.
type Transform func(doc *store.Document) bool

// SetField sets a field to a fixed value.
func SetField(name string, value any) Transform {
	return func(doc *store.Document) bool {
		return setField(doc, name, value)
	}
}

// ReferenceCounts records, on every document, how many CAG edges cite it
// and which CAGs those edges belong to. graphs is keyed by CAG id. Documents
// no edge cites get a count of zero and an empty id list.
func ReferenceCounts(graphs map[string]cag.Graph) Transform {
	type citation struct {
		count int
		cags  map[string]struct{}
	}
	cited := make(map[string]*citation)
	for cagID, g := range graphs {
		for _, e := range g.Edges {
			seen := make(map[string]struct{}, len(e.ReferenceIDs))
			for _, ref := range e.ReferenceIDs {
				if _, dup := seen[ref]; dup {
					continue
				}
				seen[ref] = struct{}{}
				c := cited[ref]
				if c == nil {
					c = &citation{cags: make(map[string]struct{})}
					cited[ref] = c
				}
				c.count++
				c.cags[cagID] = struct{}{}
			}
		}
	}

	return func(doc *store.Document) bool {
		count := 0
		ids := []string{}
		if c := cited[doc.ID]; c != nil {
			count = c.count
			for id := range c.cags {
				ids = append(ids, id)
			}
			sort.Strings(ids)
		}
		a := setField(doc, FieldReferenceCount, count)
		b := setField(doc, FieldCAGIDs, ids)
		return a || b
	}
}

func setField(doc *store.Document, name string, value any) bool {
	if old, ok := doc.Fields[name]; ok && sameValue(old, value) {
		return false
	}
	if doc.Fields == nil {
		doc.Fields = make(map[string]any)
	}
	doc.Fields[name] = value
	return true
}

// sameValue compares values by their JSON encoding, which is how fields are
// stored. This treats 2 and 2.0, or []string and []any, as equal.
func sameValue(a, b any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
