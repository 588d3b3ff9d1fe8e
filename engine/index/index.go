// Package index builds and queries the in-memory embedding index: one
// vector per child chunk, searchable by exact cosine similarity, with a
// side table resolving child hits to their owning parent chunks. An Index
// is built once per ingestion run, is immutable afterwards, and is safe
// for concurrent read-only queries.
package index

import (
	"math"
	"sort"

	"github.com/threadsage/threadsage/engine/chunk"
	"github.com/threadsage/threadsage/engine/domain"
)

// Hit is a single nearest-neighbour match.
type Hit struct {
	ChildID  string
	ParentID string
	Score    float64
	// Ordinal is the child's position in the ingestion run, used by the
	// retriever to break score ties deterministically.
	Ordinal int
}

// Index holds child vectors and the parent resolution tables.
type Index struct {
	model string
	dim   int

	childIDs  []string
	parentIDs []string
	vecs      [][]float32
	mags      []float64

	parents map[string]chunk.ParentChunk
}

// Model returns the embedding model id recorded at build time.
func (ix *Index) Model() string { return ix.model }

// Dims returns the vector dimensionality, or 0 for an empty index.
func (ix *Index) Dims() int { return ix.dim }

// Len returns the number of indexed child chunks.
func (ix *Index) Len() int { return len(ix.childIDs) }

// Parent resolves a parent chunk by id.
func (ix *Index) Parent(parentID string) (chunk.ParentChunk, bool) {
	p, ok := ix.parents[parentID]
	return p, ok
}

// Search returns the k nearest children to query by cosine similarity,
// best first. Children with equal scores keep ingestion order. An empty
// index returns no hits and no error; a dimensionality mismatch is a
// configuration error.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if ix.Len() == 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, domain.Ef(domain.KindConfig, "index search",
			"query dimensionality %d does not match index %d", len(query), ix.dim)
	}

	qm := magnitude(query)
	if qm == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(ix.vecs))
	for i := range ix.vecs {
		if ix.mags[i] == 0 {
			continue
		}
		score := dot(query, ix.vecs[i]) / (qm * ix.mags[i])
		if math.IsNaN(score) {
			continue
		}
		hits = append(hits, Hit{
			ChildID:  ix.childIDs[i],
			ParentID: ix.parentIDs[i],
			Score:    score,
			Ordinal:  i,
		})
	}

	// Stable keeps ingestion order among equal scores.
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 { return math.Sqrt(dot(v, v)) }
