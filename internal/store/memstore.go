package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kittclouds/cagkit/pkg/cag"
)

// MemStore is an in-memory implementation of Storer for testing.
type MemStore struct {
	mu     sync.RWMutex
	cags   map[string]*CAG
	graphs map[string]cag.Graph
	docs   map[string]*Document
	jobs   map[string]*Job
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		cags:   make(map[string]*CAG),
		graphs: make(map[string]cag.Graph),
		docs:   make(map[string]*Document),
		jobs:   make(map[string]*Job),
	}
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error {
	return nil
}

// =============================================================================
// CAG CRUD
// =============================================================================

func (s *MemStore) UpsertCAG(c *CAG) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = now
	}

	copy := *c
	if existing, ok := s.cags[c.ID]; ok {
		copy.CreatedAt = existing.CreatedAt
	}
	s.cags[c.ID] = &copy
	return nil
}

func (s *MemStore) GetCAG(id string) (*CAG, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.cags[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, nil
}

func (s *MemStore) ListCAGs() ([]*CAG, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*CAG
	for _, c := range s.cags {
		copy := *c
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemStore) DeleteCAG(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cags, id)
	delete(s.graphs, id)
	return nil
}

func (s *MemStore) SaveGraph(cagID string, g cag.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if c, ok := s.cags[cagID]; ok {
		c.UpdatedAt = now
	} else {
		s.cags[cagID] = &CAG{ID: cagID, Name: cagID, CreatedAt: now, UpdatedAt: now}
	}
	s.graphs[cagID] = g.Clone()
	return nil
}

func (s *MemStore) LoadGraph(cagID string) (cag.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.graphs[cagID]
	if !ok {
		return cag.Graph{Nodes: []cag.Node{}, Edges: []cag.Edge{}}, nil
	}
	out := g.Clone()
	if out.Nodes == nil {
		out.Nodes = []cag.Node{}
	}
	if out.Edges == nil {
		out.Edges = []cag.Edge{}
	}
	for i := range out.Edges {
		if out.Edges[i].ReferenceIDs == nil {
			out.Edges[i].ReferenceIDs = []string{}
		}
	}
	return out, nil
}

// =============================================================================
// Document CRUD
// =============================================================================

func (s *MemStore) UpsertDocument(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, err := normalizeFields(doc.Fields)
	if err != nil {
		return err
	}
	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = time.Now().UnixMilli()
	}

	doc.Version = 1
	if existing, ok := s.docs[doc.ID]; ok {
		doc.Version = existing.Version + 1
	}

	copy := *doc
	copy.Fields = fields
	s.docs[doc.ID] = &copy
	return nil
}

func (s *MemStore) GetDocument(id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[id]; ok {
		return doc.Clone(), nil
	}
	return nil, nil
}

func (s *MemStore) CountDocuments() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *MemStore) ScrollDocuments(after string, size int) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if size >= 0 && len(ids) > size {
		ids = ids[:size]
	}

	var result []*Document
	for _, id := range ids {
		result = append(result, s.docs[id].Clone())
	}
	return result, nil
}

func (s *MemStore) BulkUpdateDocuments(docs []*Document) (BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything first so a bad document leaves the store untouched.
	type pending struct{ caller, stored *Document }
	var staged []pending
	var result BulkResult
	for _, doc := range docs {
		existing, ok := s.docs[doc.ID]
		if !ok || existing.Version != doc.Version {
			result.Conflicts = append(result.Conflicts, doc.ID)
			continue
		}
		fields, err := normalizeFields(doc.Fields)
		if err != nil {
			return BulkResult{}, err
		}
		copy := *doc
		copy.Fields = fields
		staged = append(staged, pending{caller: doc, stored: &copy})
	}

	now := time.Now().UnixMilli()
	for _, p := range staged {
		p.stored.Version++
		p.stored.UpdatedAt = now
		s.docs[p.stored.ID] = p.stored
		p.caller.Version = p.stored.Version
		p.caller.UpdatedAt = now
	}
	result.Updated = len(staged)
	return result, nil
}

// =============================================================================
// Job CRUD
// =============================================================================

func (s *MemStore) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("store: job %q already exists", job.ID)
	}
	now := time.Now().UnixMilli()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobPending
	}

	copy := *job
	s.jobs[job.ID] = &copy
	return nil
}

func (s *MemStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if job, ok := s.jobs[id]; ok {
		copy := *job
		return &copy, nil
	}
	return nil, nil
}

func (s *MemStore) UpdateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %q: %w", job.ID, ErrNotFound)
	}
	job.UpdatedAt = time.Now().UnixMilli()
	job.CreatedAt = existing.CreatedAt

	copy := *job
	s.jobs[job.ID] = &copy
	return nil
}

// normalizeFields round-trips fields through JSON so values read back from
// a MemStore have the same types as those read from SQLite.
func normalizeFields(fields map[string]any) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("store: marshal fields: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Compile-time interface check
var _ Storer = (*MemStore)(nil)
