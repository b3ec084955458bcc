package cag

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyID       = errors.New("empty id")
	ErrDuplicateID   = errors.New("duplicate id")
	ErrDanglingEdge  = errors.New("dangling edge endpoint")
	ErrDuplicateRefs = errors.New("duplicate reference id")
)

// Validate checks the well-formedness that Merge assumes: non-empty unique
// ids, edge endpoints that name existing nodes and no repeated reference
// ids on an edge. All problems are returned joined.
func Validate(g Graph) error {
	var errs []error

	nodes := make(map[string]struct{}, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.ID == "" {
			errs = append(errs, fmt.Errorf("node %d: %w", i, ErrEmptyID))
			continue
		}
		if _, ok := nodes[n.ID]; ok {
			errs = append(errs, fmt.Errorf("node %q: %w", n.ID, ErrDuplicateID))
		}
		nodes[n.ID] = struct{}{}
	}

	edges := make(map[string]struct{}, len(g.Edges))
	for i, e := range g.Edges {
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("edge %d: %w", i, ErrEmptyID))
		} else if _, ok := edges[e.ID]; ok {
			errs = append(errs, fmt.Errorf("edge %q: %w", e.ID, ErrDuplicateID))
		}
		edges[e.ID] = struct{}{}

		if _, ok := nodes[e.Source]; !ok {
			errs = append(errs, fmt.Errorf("edge %q source %q: %w", e.ID, e.Source, ErrDanglingEdge))
		}
		if _, ok := nodes[e.Target]; !ok {
			errs = append(errs, fmt.Errorf("edge %q target %q: %w", e.ID, e.Target, ErrDanglingEdge))
		}
		if len(UnionReferences(e.ReferenceIDs, nil)) != len(e.ReferenceIDs) {
			errs = append(errs, fmt.Errorf("edge %q: %w", e.ID, ErrDuplicateRefs))
		}
	}

	return errors.Join(errs...)
}
