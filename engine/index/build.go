package index

import (
	"context"
	"fmt"

	"github.com/threadsage/threadsage/engine/chunk"
	"github.com/threadsage/threadsage/engine/domain"
	"github.com/threadsage/threadsage/pkg/fn"
)

// Embedder computes embedding vectors for a batch of texts. One vector is
// returned per input text, all with the model's fixed dimensionality.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures an index build.
type Options struct {
	// Model is the embedding model id, recorded in the index so query-time
	// mismatches can be detected.
	Model string
	// BatchSize caps texts per embedding request.
	BatchSize int
	// Workers bounds concurrent embedding batches. Batch results are
	// merged in original chunk order regardless of completion order.
	Workers int
}

// Build embeds every child chunk and assembles the index. A failed batch
// aborts the whole build, reporting which child range failed; partial
// indexes are never returned. Zero children produce a valid empty index.
func Build(ctx context.Context, embedder Embedder, children []chunk.ChildChunk, parents []chunk.ParentChunk, opts Options) (*Index, error) {
	ix := &Index{
		model:   opts.Model,
		parents: make(map[string]chunk.ParentChunk, len(parents)),
	}
	for _, p := range parents {
		ix.parents[p.ID] = p
	}
	if len(children) == 0 {
		return ix, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	batches := fn.Chunk(children, batchSize)

	results := fn.ParMapResult(batches, opts.Workers, func(bi int, batch []chunk.ChildChunk) fn.Result[[][]float32] {
		texts := fn.Map(batch, func(c chunk.ChildChunk) string { return c.Text })
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			lo := bi * batchSize
			return fn.Errf[[][]float32]("batch %d (children %d-%d): %w", bi, lo, lo+len(batch)-1, err)
		}
		if len(vecs) != len(batch) {
			return fn.Errf[[][]float32]("batch %d: got %d vectors for %d texts", bi, len(vecs), len(batch))
		}
		return fn.Ok(vecs)
	})

	collected, err := fn.Collect(results).Unwrap()
	if err != nil {
		return nil, domain.E(domain.KindIndexBuild, "embed children", err)
	}

	vecs := fn.FlatMap(collected, func(b [][]float32) [][]float32 { return b })
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) != dim {
			return nil, domain.Ef(domain.KindIndexBuild, "embed children",
				"inconsistent dimensionality: child %d has %d, expected %d", i, len(v), dim)
		}
	}

	ix.dim = dim
	ix.vecs = vecs
	ix.childIDs = make([]string, len(children))
	ix.parentIDs = make([]string, len(children))
	ix.mags = make([]float64, len(children))
	for i, c := range children {
		if _, ok := ix.parents[c.ParentID]; !ok {
			return nil, domain.E(domain.KindIndexBuild, "link parents",
				fmt.Errorf("child %s references unknown parent %s", c.ID, c.ParentID))
		}
		ix.childIDs[i] = c.ID
		ix.parentIDs[i] = c.ParentID
		ix.mags[i] = magnitude(vecs[i])
	}
	return ix, nil
}
