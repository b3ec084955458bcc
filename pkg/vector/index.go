// Package vector is a small approximate nearest-neighbour index over CAG
// concept embeddings, persisted to any hackpadfs filesystem.
package vector

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/fogfish/hnsw"
	"github.com/fogfish/hnsw/vector" // fogfish/hnsw/vector alias, imports kshard/vector
	"github.com/hack-pad/hackpadfs"
	kvector "github.com/kshard/vector" // Underlying vector types
)

var (
	ErrDimension   = errors.New("vector: dimension mismatch")
	ErrZeroVector  = errors.New("vector: zero vector")
	ErrDuplicateID = errors.New("vector: id already indexed")
)

// Match is one search hit.
type Match struct {
	ID    string
	Score float32
}

// Index maps string ids onto HNSW keys. Keys are assigned densely in
// insertion order, which lets exclusion sets live in a roaring bitmap.
type Index struct {
	mu       sync.RWMutex
	dim      int
	graph    *hnsw.HNSW[vector.VF32]
	ids      []string
	vecs     [][]float32
	keys     map[string]uint32
	excluded *roaring.Bitmap
	stamp    string
}

// NewIndex creates an empty cosine index for vectors of width dim.
func NewIndex(dim int) *Index {
	return &Index{
		dim:      dim,
		graph:    newGraph(),
		keys:     make(map[string]uint32),
		excluded: roaring.New(),
	}
}

func newGraph() *hnsw.HNSW[vector.VF32] {
	return hnsw.New[vector.VF32](vector.SurfaceVF32(kvector.Cosine()))
}

// Dim returns the vector width.
func (x *Index) Dim() int { return x.dim }

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

// Stamp returns the label set by SetStamp, saved and loaded with the index.
func (x *Index) Stamp() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.stamp
}

// SetStamp labels the index with the state of the data it was built from.
func (x *Index) SetStamp(stamp string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.stamp = stamp
}

// Has reports whether id is indexed.
func (x *Index) Has(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.keys[id]
	return ok
}

// Add indexes vec under id.
func (x *Index) Add(id string, vec []float32) error {
	if len(vec) != x.dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimension, x.dim, len(vec))
	}
	if isZero(vec) {
		return fmt.Errorf("%w: %q", ErrZeroVector, id)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.keys[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	key := uint32(len(x.ids))
	v := append([]float32(nil), vec...)
	x.ids = append(x.ids, id)
	x.vecs = append(x.vecs, v)
	x.keys[id] = key
	x.graph.Insert(vector.VF32{Key: key, Vec: v})
	return nil
}

// Exclude hides ids from every later search. Unknown ids are ignored.
func (x *Index) Exclude(ids ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		if key, ok := x.keys[id]; ok {
			x.excluded.Add(key)
		}
	}
}

// Search returns up to k ids nearest to vec by cosine similarity, best
// first, skipping excluded ids and those passed in exclude.
func (x *Index) Search(vec []float32, k int, exclude ...string) ([]Match, error) {
	if len(vec) != x.dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimension, x.dim, len(vec))
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || len(x.ids) == 0 || isZero(vec) {
		return nil, nil
	}

	skip := x.excluded.Clone()
	for _, id := range exclude {
		if key, ok := x.keys[id]; ok {
			skip.Add(key)
		}
	}

	want := k + int(skip.GetCardinality())
	if want > len(x.ids) {
		want = len(x.ids)
	}
	ef := want * 2
	if ef < 100 {
		ef = 100
	}

	hits := x.graph.Search(vector.VF32{Vec: vec}, want, ef)
	matches := make([]Match, 0, k)
	for _, h := range hits {
		if skip.Contains(h.Key) || int(h.Key) >= len(x.ids) {
			continue
		}
		matches = append(matches, Match{
			ID:    x.ids[h.Key],
			Score: cosine(vec, x.vecs[h.Key]),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// snapshot is the gob payload written by Save.
type snapshot struct {
	Dim      int
	Stamp    string
	IDs      []string
	Vecs     [][]float32
	Excluded []byte
	Nodes    hnsw.Nodes[vector.VF32]
}

// Save writes the index to path on fs.
func (x *Index) Save(fs hackpadfs.FS, path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	excluded, err := x.excluded.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode exclusions: %w", err)
	}
	snap := snapshot{
		Dim:      x.dim,
		Stamp:    x.stamp,
		IDs:      x.ids,
		Vecs:     x.vecs,
		Excluded: excluded,
		Nodes:    x.graph.Nodes(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := hackpadfs.WriteFullFile(fs, path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}
	return nil
}

// Load reads an index written by Save.
func Load(fs hackpadfs.FS, path string) (*Index, error) {
	content, err := hackpadfs.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(content)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}
	if len(snap.IDs) != len(snap.Vecs) {
		return nil, fmt.Errorf("failed to decode index: %d ids for %d vectors", len(snap.IDs), len(snap.Vecs))
	}

	excluded := roaring.New()
	if len(snap.Excluded) > 0 {
		if err := excluded.UnmarshalBinary(snap.Excluded); err != nil {
			return nil, fmt.Errorf("failed to decode exclusions: %w", err)
		}
	}

	x := &Index{
		dim:      snap.Dim,
		stamp:    snap.Stamp,
		ids:      snap.IDs,
		vecs:     snap.Vecs,
		keys:     make(map[string]uint32, len(snap.IDs)),
		excluded: excluded,
	}
	for i, id := range snap.IDs {
		x.keys[id] = uint32(i)
	}
	if len(snap.IDs) == 0 {
		x.graph = newGraph()
		return x, nil
	}
	// Rehydrate
	x.graph = hnsw.FromNodes[vector.VF32](
		vector.SurfaceVF32(kvector.Cosine()),
		snap.Nodes,
	)
	return x, nil
}
