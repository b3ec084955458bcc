// Package store provides SQLite-backed persistence for cagkit: CAG
// snapshots, evidence documents and background job records.
package store

import (
	"errors"

	"github.com/kittclouds/cagkit/pkg/cag"
)

// CAG is the metadata row for a stored causal analysis graph.
type CAG struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Document is an evidence document cited by CAG edge reference ids.
type Document struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Text      string         `json:"text"`
	Fields    map[string]any `json:"fields,omitempty"`
	Version   int            `json:"version"`
	UpdatedAt int64          `json:"updatedAt"`
}

// Lookup exposes a document to typed filters. Built-in columns shadow
// fields of the same name.
func (d *Document) Lookup(field string) (any, bool) {
	switch field {
	case "id":
		return d.ID, true
	case "title":
		return d.Title, true
	case "text":
		return d.Text, true
	}
	v, ok := d.Fields[field]
	return v, ok
}

// Clone returns a copy whose Fields map can be modified independently.
func (d *Document) Clone() *Document {
	c := *d
	if d.Fields != nil {
		c.Fields = make(map[string]any, len(d.Fields))
		for k, v := range d.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}

// JobStatus is the lifecycle position of a background job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Done reports whether the job has finished, successfully or not.
func (s JobStatus) Done() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job tracks a long-running operation such as a reindex.
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	Result    string    `json:"result,omitempty"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// BulkResult reports the outcome of BulkUpdateDocuments.
type BulkResult struct {
	Updated   int      `json:"updated"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// Info describes the underlying database engine.
type Info struct {
	SQLiteVersion string `json:"sqliteVersion"`
	VecVersion    string `json:"vecVersion,omitempty"`
}

// ErrNotFound is returned by operations that require an existing row.
var ErrNotFound = errors.New("store: not found")

// Storer defines the interface for data persistence.
// This allows swapping between MemStore (testing) and SQLiteStore (production).
// Getters return (nil, nil) when the row does not exist.
type Storer interface {
	// CAGs
	UpsertCAG(c *CAG) error
	GetCAG(id string) (*CAG, error)
	ListCAGs() ([]*CAG, error)
	DeleteCAG(id string) error
	SaveGraph(cagID string, g cag.Graph) error
	LoadGraph(cagID string) (cag.Graph, error)

	// Documents
	UpsertDocument(doc *Document) error
	GetDocument(id string) (*Document, error)
	CountDocuments() (int, error)
	ScrollDocuments(after string, size int) ([]*Document, error)
	BulkUpdateDocuments(docs []*Document) (BulkResult, error)

	// Jobs
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error

	// Lifecycle
	Close() error
}
