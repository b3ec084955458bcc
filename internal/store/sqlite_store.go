package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver" // database/sql driver "sqlite3"

	"github.com/kittclouds/cagkit/pkg/cag"
)

// SQLiteStore is the SQLite-backed data store.
// Thread-safe for concurrent callers.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// schema defines all tables for CAG snapshots, documents and jobs.
const schema = `
-- CAG metadata
CREATE TABLE IF NOT EXISTS cags (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Snapshot nodes; seq preserves snapshot order
CREATE TABLE IF NOT EXISTS cag_nodes (
    cag_id TEXT NOT NULL,
    id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    concept TEXT NOT NULL,
    label TEXT,
    PRIMARY KEY (cag_id, id)
);

CREATE INDEX IF NOT EXISTS idx_cag_nodes_seq ON cag_nodes(cag_id, seq);

-- Snapshot edges
-- Note: No foreign keys - referential integrity managed at application level
CREATE TABLE IF NOT EXISTS cag_edges (
    cag_id TEXT NOT NULL,
    id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    reference_ids TEXT,
    polarity INTEGER DEFAULT 0,
    belief_score REAL DEFAULT 0,
    PRIMARY KEY (cag_id, id)
);

CREATE INDEX IF NOT EXISTS idx_cag_edges_seq ON cag_edges(cag_id, seq);

-- Evidence documents
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    text TEXT NOT NULL,
    fields TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    updated_at INTEGER NOT NULL
);

-- Background jobs
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    progress INTEGER DEFAULT 0,
    total INTEGER DEFAULT 0,
    error TEXT,
    result TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// Every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Info reports the SQLite and sqlite-vec versions compiled into the driver.
func (s *SQLiteStore) Info() (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var info Info
	if err := s.db.QueryRow(`SELECT sqlite_version()`).Scan(&info.SQLiteVersion); err != nil {
		return Info{}, fmt.Errorf("store: sqlite version: %w", err)
	}
	if err := s.db.QueryRow(`SELECT vec_version()`).Scan(&info.VecVersion); err != nil {
		return Info{}, fmt.Errorf("store: vec version: %w", err)
	}
	return info, nil
}

// =============================================================================
// CAG CRUD
// =============================================================================

// UpsertCAG inserts or renames a CAG.
func (s *SQLiteStore) UpsertCAG(c *CAG) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = now
	}

	_, err := s.db.Exec(`
		INSERT INTO cags (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`, c.ID, c.Name, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetCAG retrieves a CAG by ID.
func (s *SQLiteStore) GetCAG(id string) (*CAG, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c CAG
	err := s.db.QueryRow(`
		SELECT id, name, created_at, updated_at FROM cags WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCAGs returns all CAGs ordered by ID.
func (s *SQLiteStore) ListCAGs() ([]*CAG, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, name, created_at, updated_at FROM cags ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cags []*CAG
	for rows.Next() {
		var c CAG
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cags = append(cags, &c)
	}
	return cags, rows.Err()
}

// DeleteCAG removes a CAG and its snapshot.
func (s *SQLiteStore) DeleteCAG(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM cag_edges WHERE cag_id = ?`,
		`DELETE FROM cag_nodes WHERE cag_id = ?`,
		`DELETE FROM cags WHERE id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveGraph replaces the stored snapshot of a CAG, creating the CAG row if
// needed.
func (s *SQLiteStore) SaveGraph(cagID string, g cag.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		INSERT INTO cags (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`, cagID, cagID, now, now); err != nil {
		return fmt.Errorf("store: touch cag: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM cag_nodes WHERE cag_id = ?`, cagID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM cag_edges WHERE cag_id = ?`, cagID); err != nil {
		return err
	}

	nodeStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO cag_nodes (cag_id, id, seq, concept, label)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer nodeStmt.Close()
	for i, n := range g.Nodes {
		if _, err := nodeStmt.Exec(cagID, n.ID, i, n.Concept, n.Label); err != nil {
			return fmt.Errorf("store: insert node %q: %w", n.ID, err)
		}
	}

	edgeStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO cag_edges (cag_id, id, seq, source_id, target_id,
			reference_ids, polarity, belief_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer edgeStmt.Close()
	for i, e := range g.Edges {
		refsJSON, err := json.Marshal(nonNil(e.ReferenceIDs))
		if err != nil {
			return fmt.Errorf("store: marshal reference ids: %w", err)
		}
		if _, err := edgeStmt.Exec(cagID, e.ID, i, e.Source, e.Target,
			string(refsJSON), e.Polarity, e.BeliefScore); err != nil {
			return fmt.Errorf("store: insert edge %q: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// LoadGraph returns the stored snapshot of a CAG in saved order. An unknown
// CAG yields an empty graph.
func (s *SQLiteStore) LoadGraph(cagID string) (cag.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := cag.Graph{Nodes: []cag.Node{}, Edges: []cag.Edge{}}

	rows, err := s.db.Query(`
		SELECT id, concept, label FROM cag_nodes WHERE cag_id = ? ORDER BY seq
	`, cagID)
	if err != nil {
		return cag.Graph{}, err
	}
	for rows.Next() {
		var n cag.Node
		var label sql.NullString
		if err := rows.Scan(&n.ID, &n.Concept, &label); err != nil {
			rows.Close()
			return cag.Graph{}, err
		}
		n.Label = label.String
		g.Nodes = append(g.Nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cag.Graph{}, err
	}

	rows, err = s.db.Query(`
		SELECT id, source_id, target_id, reference_ids, polarity, belief_score
		FROM cag_edges WHERE cag_id = ? ORDER BY seq
	`, cagID)
	if err != nil {
		return cag.Graph{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var e cag.Edge
		var refsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &refsJSON, &e.Polarity, &e.BeliefScore); err != nil {
			return cag.Graph{}, err
		}
		e.ReferenceIDs = []string{}
		if refsJSON.String != "" {
			if err := json.Unmarshal([]byte(refsJSON.String), &e.ReferenceIDs); err != nil {
				return cag.Graph{}, fmt.Errorf("store: edge %q reference ids: %w", e.ID, err)
			}
		}
		g.Edges = append(g.Edges, e)
	}
	return g, rows.Err()
}

// =============================================================================
// Document CRUD
// =============================================================================

// UpsertDocument inserts a document at version 1 or overwrites it and bumps
// its version. doc.Version is updated to the stored value.
func (s *SQLiteStore) UpsertDocument(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fieldsJSON, err := marshalFields(doc.Fields)
	if err != nil {
		return err
	}
	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = time.Now().UnixMilli()
	}

	return s.db.QueryRow(`
		INSERT INTO documents (id, title, text, fields, version, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			text = excluded.text,
			fields = excluded.fields,
			version = documents.version + 1,
			updated_at = excluded.updated_at
		RETURNING version
	`, doc.ID, doc.Title, doc.Text, fieldsJSON, doc.UpdatedAt).Scan(&doc.Version)
}

// GetDocument retrieves a document by ID.
func (s *SQLiteStore) GetDocument(id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, title, text, fields, version, updated_at FROM documents WHERE id = ?
	`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStore) CountDocuments() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

// ScrollDocuments returns up to size documents with IDs strictly greater
// than after, in ID order. Pass the last ID of one page to fetch the next.
func (s *SQLiteStore) ScrollDocuments(after string, size int) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, title, text, fields, version, updated_at FROM documents
		WHERE id > ? ORDER BY id LIMIT ?
	`, after, size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// BulkUpdateDocuments writes all docs in one transaction. A document whose
// stored version differs from doc.Version is skipped and reported as a
// conflict. Updated documents have their Version incremented.
func (s *SQLiteStore) BulkUpdateDocuments(docs []*Document) (BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result BulkResult
	tx, err := s.db.Begin()
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE documents SET title = ?, text = ?, fields = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`)
	if err != nil {
		return result, err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	var updated []*Document
	for _, doc := range docs {
		fieldsJSON, err := marshalFields(doc.Fields)
		if err != nil {
			return BulkResult{}, err
		}
		res, err := stmt.Exec(doc.Title, doc.Text, fieldsJSON, now, doc.ID, doc.Version)
		if err != nil {
			return BulkResult{}, fmt.Errorf("store: update document %q: %w", doc.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return BulkResult{}, err
		}
		if n == 0 {
			result.Conflicts = append(result.Conflicts, doc.ID)
			continue
		}
		updated = append(updated, doc)
	}

	if err := tx.Commit(); err != nil {
		return BulkResult{}, err
	}
	for _, doc := range updated {
		doc.Version++
		doc.UpdatedAt = now
	}
	result.Updated = len(updated)
	return result, nil
}

// =============================================================================
// Job CRUD
// =============================================================================

// CreateJob inserts a new job.
func (s *SQLiteStore) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobPending
	}

	_, err := s.db.Exec(`
		INSERT INTO jobs (id, kind, status, progress, total, error, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Kind, string(job.Status), job.Progress, job.Total,
		job.Error, job.Result, job.CreatedAt, job.UpdatedAt)
	return err
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var job Job
	var status string
	var errText, result sql.NullString
	err := s.db.QueryRow(`
		SELECT id, kind, status, progress, total, error, result, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id).Scan(&job.ID, &job.Kind, &status, &job.Progress, &job.Total,
		&errText, &result, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	job.Error = errText.String
	job.Result = result.String
	return &job, nil
}

// UpdateJob overwrites the mutable fields of an existing job.
func (s *SQLiteStore) UpdateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.UpdatedAt = time.Now().UnixMilli()
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, progress = ?, total = ?, error = ?, result = ?, updated_at = ?
		WHERE id = ?
	`, string(job.Status), job.Progress, job.Total, job.Error, job.Result, job.UpdatedAt, job.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %q: %w", job.ID, ErrNotFound)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var fieldsJSON sql.NullString
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Text, &fieldsJSON, &doc.Version, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if fieldsJSON.String != "" && fieldsJSON.String != "null" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &doc.Fields); err != nil {
			return nil, fmt.Errorf("store: document %q fields: %w", doc.ID, err)
		}
	}
	return &doc, nil
}

func marshalFields(fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("store: marshal fields: %w", err)
	}
	return string(b), nil
}

func nonNil(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
