package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/threadsage/threadsage/engine/chunk"
	"github.com/threadsage/threadsage/engine/domain"
)

// fakeEmbedder maps texts to fixed vectors. Unknown texts embed to zero
// unless failOn matches, which fails the whole batch.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	failOn  string
	calls   int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn != "" && t == f.failOn {
			return nil, errors.New("model unavailable")
		}
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 0, 0}
	}
	return out, nil
}

func fixture() ([]chunk.ParentChunk, []chunk.ChildChunk, *fakeEmbedder) {
	parents := []chunk.ParentChunk{
		{ID: "p1", DocID: "d1", Text: "alpha body", Meta: map[string]string{"source_id": "d1"}},
		{ID: "p2", DocID: "d2", Text: "beta body", Meta: map[string]string{"source_id": "d2"}},
	}
	children := []chunk.ChildChunk{
		{ID: "c1", ParentID: "p1", Text: "alpha"},
		{ID: "c2", ParentID: "p1", Text: "aleph"},
		{ID: "c3", ParentID: "p2", Text: "beta"},
	}
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0, 0},
		"aleph": {0.9, 0.1, 0},
		"beta":  {0, 1, 0},
	}}
	return parents, children, emb
}

func TestBuildAndSearch(t *testing.T) {
	parents, children, emb := fixture()
	ix, err := Build(context.Background(), emb, children, parents, Options{Model: "test-model", BatchSize: 2, Workers: 2})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if ix.Model() != "test-model" {
		t.Errorf("unexpected model %q", ix.Model())
	}
	if ix.Len() != 3 || ix.Dims() != 3 {
		t.Fatalf("expected 3 vectors of dim 3, got %d of %d", ix.Len(), ix.Dims())
	}

	hits, err := ix.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ChildID != "c1" {
		t.Errorf("expected exact match c1 first, got %s", hits[0].ChildID)
	}
	if math.Abs(hits[0].Score-1.0) > 1e-6 {
		t.Errorf("identical vector should score 1.0, got %g", hits[0].Score)
	}
	if hits[1].ChildID != "c2" {
		t.Errorf("expected near match c2 second, got %s", hits[1].ChildID)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits should be ordered best first")
	}
	if hits[0].ParentID != "p1" || hits[0].Ordinal != 0 {
		t.Errorf("hit should carry parent and ordinal, got %+v", hits[0])
	}

	if p, ok := ix.Parent("p2"); !ok || p.Text != "beta body" {
		t.Errorf("parent lookup failed: %v %v", p, ok)
	}
}

func TestBuildMergesBatchesInOrder(t *testing.T) {
	var children []chunk.ChildChunk
	vectors := map[string][]float32{}
	parents := []chunk.ParentChunk{{ID: "p1", Text: "big"}}
	for i := 0; i < 23; i++ {
		text := fmt.Sprintf("child-%02d", i)
		children = append(children, chunk.ChildChunk{ID: text, ParentID: "p1", Text: text})
		vectors[text] = []float32{float32(i), 1, 0}
	}
	emb := &fakeEmbedder{vectors: vectors}

	ix, err := Build(context.Background(), emb, children, parents, Options{Model: "m", BatchSize: 5, Workers: 4})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if emb.calls != 5 {
		t.Errorf("expected 5 batches for 23 children at size 5, got %d calls", emb.calls)
	}
	// Vector i must sit at slot i whatever order the batches finished in.
	for i, id := range ix.childIDs {
		if id != fmt.Sprintf("child-%02d", i) {
			t.Fatalf("slot %d holds %s; batch merge lost ingestion order", i, id)
		}
		if ix.vecs[i][0] != float32(i) {
			t.Fatalf("slot %d holds vector %v", i, ix.vecs[i])
		}
	}
}

func TestBuildBatchFailureAborts(t *testing.T) {
	parents, children, emb := fixture()
	emb.failOn = "aleph"

	ix, err := Build(context.Background(), emb, children, parents, Options{Model: "m", BatchSize: 1, Workers: 1})
	if ix != nil {
		t.Fatal("a failed batch must not produce a partial index")
	}
	if domain.KindOf(err) != domain.KindIndexBuild {
		t.Fatalf("expected index_build kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "children 1-1") {
		t.Errorf("error should name the failing child range, got %q", err.Error())
	}
}

func TestBuildEmptyIndex(t *testing.T) {
	emb := &fakeEmbedder{}
	ix, err := Build(context.Background(), emb, nil, nil, Options{Model: "m"})
	if err != nil {
		t.Fatalf("zero children should build an empty index: %v", err)
	}
	if ix.Len() != 0 || ix.Dims() != 0 {
		t.Errorf("empty index should have no vectors, got %d", ix.Len())
	}
	if emb.calls != 0 {
		t.Errorf("empty build should not call the embedder, got %d calls", emb.calls)
	}

	hits, err := ix.Search([]float32{1, 0}, 5)
	if err != nil || hits != nil {
		t.Errorf("empty index search should be a no-op, got %v, %v", hits, err)
	}
}

func TestBuildUnknownParent(t *testing.T) {
	children := []chunk.ChildChunk{{ID: "c1", ParentID: "missing", Text: "alpha"}}
	emb := &fakeEmbedder{vectors: map[string][]float32{"alpha": {1, 0, 0}}}

	_, err := Build(context.Background(), emb, children, nil, Options{Model: "m"})
	if domain.KindOf(err) != domain.KindIndexBuild {
		t.Fatalf("expected index_build kind for dangling parent ref, got %v", err)
	}
}

func TestSearchDimensionMismatch(t *testing.T) {
	parents, children, emb := fixture()
	ix, err := Build(context.Background(), emb, children, parents, Options{Model: "m"})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	_, err = ix.Search([]float32{1, 0}, 3)
	if domain.KindOf(err) != domain.KindConfig {
		t.Fatalf("expected config kind for dim mismatch, got %v", err)
	}
}

func TestSearchSkipsZeroMagnitude(t *testing.T) {
	parents := []chunk.ParentChunk{{ID: "p1", Text: "t"}}
	children := []chunk.ChildChunk{
		{ID: "c1", ParentID: "p1", Text: "zero"},
		{ID: "c2", ParentID: "p1", Text: "real"},
	}
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"zero": {0, 0, 0},
		"real": {0, 0, 1},
	}}
	ix, err := Build(context.Background(), emb, children, parents, Options{Model: "m"})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	hits, err := ix.Search([]float32{0, 0, 1}, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ChildID != "c2" {
		t.Fatalf("zero-magnitude vector should be skipped, got %+v", hits)
	}

	// Zero-magnitude query matches nothing rather than erroring.
	hits, err = ix.Search([]float32{0, 0, 0}, 10)
	if err != nil || hits != nil {
		t.Errorf("zero query should yield no hits, got %v, %v", hits, err)
	}
}

func TestSearchExactVectorRanksFirst(t *testing.T) {
	var parents []chunk.ParentChunk
	var children []chunk.ChildChunk
	vectors := map[string][]float32{}
	for i := 0; i < 10; i++ {
		pid := fmt.Sprintf("p%d", i)
		text := fmt.Sprintf("text-%d", i)
		parents = append(parents, chunk.ParentChunk{ID: pid, Text: "parent " + text})
		children = append(children, chunk.ChildChunk{ID: fmt.Sprintf("c%d", i), ParentID: pid, Text: text})
		vectors[text] = []float32{float32(i + 1), float32(10 - i), 3}
	}
	emb := &fakeEmbedder{vectors: vectors}
	ix, err := Build(context.Background(), emb, children, parents, Options{Model: "m", BatchSize: 4, Workers: 2})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	hits, err := ix.Search(vectors["text-4"], 3)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].ChildID != "c4" || hits[0].ParentID != "p4" {
		t.Fatalf("querying with c4's own vector should rank c4 first, got %+v", hits[0])
	}
	if math.Abs(hits[0].Score-1.0) > 1e-6 {
		t.Errorf("exact match should score 1.0, got %g", hits[0].Score)
	}
	if hits[1].Score > hits[0].Score {
		t.Error("top hit should carry the best score")
	}
}

func TestSearchTiesKeepIngestionOrder(t *testing.T) {
	parents := []chunk.ParentChunk{{ID: "p1", Text: "a"}, {ID: "p2", Text: "b"}}
	children := []chunk.ChildChunk{
		{ID: "c1", ParentID: "p2", Text: "same-a"},
		{ID: "c2", ParentID: "p1", Text: "same-b"},
	}
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"same-a": {2, 0, 0},
		"same-b": {5, 0, 0}, // same direction, same cosine
	}}
	ix, err := Build(context.Background(), emb, children, parents, Options{Model: "m"})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	hits, err := ix.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 2 || hits[0].ChildID != "c1" || hits[1].ChildID != "c2" {
		t.Fatalf("equal scores should keep ingestion order, got %+v", hits)
	}
}
