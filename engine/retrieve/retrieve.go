// Package retrieve answers a query string with an ordered, bounded set of
// parent-chunk passages: it embeds the query, finds the nearest child
// chunks, resolves them to their parents, and deduplicates keeping the
// best score per parent.
package retrieve

import (
	"context"
	"log/slog"
	"sort"

	"github.com/threadsage/threadsage/engine/domain"
	"github.com/threadsage/threadsage/engine/index"
)

// Embedder embeds a single query text with the same model the index was
// built with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Passage is one retrieved context unit.
type Passage struct {
	ParentID string
	Text     string
	Score    float64
	Meta     map[string]string
}

// RetrievalResult is an ordered set of passages, best first, with no
// duplicate parent ids.
type RetrievalResult []Passage

// Options configures retrieval behaviour.
type Options struct {
	// TopK child hits fetched before parent resolution.
	TopK int
	// MaxContext bounds the number of passages returned.
	MaxContext int
	// ScoreFloor drops passages below this similarity. Zero disables it.
	ScoreFloor float64
}

// Retriever reads a built index. It is safe for concurrent use.
type Retriever struct {
	ix     *index.Index
	embed  Embedder
	opts   Options
	logger *slog.Logger
}

// New creates a Retriever over a built index. The configured embedding
// model must match the model the index was built with; a mismatch is a
// configuration error detected here rather than as silently wrong scores.
func New(ix *index.Index, embed Embedder, embedModel string, opts Options, logger *slog.Logger) (*Retriever, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ix.Model() != embedModel {
		return nil, domain.Ef(domain.KindConfig, "retriever",
			"index was built with embedding model %q, configured model is %q", ix.Model(), embedModel)
	}
	return &Retriever{ix: ix, embed: embed, opts: opts, logger: logger}, nil
}

// Retrieve returns up to MaxContext passages relevant to query. An empty
// index, or no hit clearing the score floor, yields an empty result and
// no error.
func (r *Retriever) Retrieve(ctx context.Context, query string) (RetrievalResult, error) {
	if r.ix.Len() == 0 {
		return nil, nil
	}

	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, domain.E(domain.KindRetrieval, "embed query", err)
	}

	hits, err := r.ix.Search(vec, r.opts.TopK)
	if err != nil {
		return nil, err
	}

	passages := r.resolve(hits)
	r.logger.Debug("retrieve: done", "query_len", len(query), "hits", len(hits), "passages", len(passages))
	return passages, nil
}

// resolve maps child hits to deduplicated parent passages. Each parent
// keeps its best child score; ordering is score-descending with ties
// broken by ingestion order (earlier wins).
func (r *Retriever) resolve(hits []index.Hit) RetrievalResult {
	type best struct {
		score   float64
		ordinal int
	}
	bestPerParent := make(map[string]best)
	order := make([]string, 0, len(hits))

	for _, h := range hits {
		if r.opts.ScoreFloor > 0 && h.Score < r.opts.ScoreFloor {
			continue
		}
		b, seen := bestPerParent[h.ParentID]
		if !seen {
			order = append(order, h.ParentID)
			bestPerParent[h.ParentID] = best{score: h.Score, ordinal: h.Ordinal}
			continue
		}
		if h.Score > b.score || (h.Score == b.score && h.Ordinal < b.ordinal) {
			bestPerParent[h.ParentID] = best{score: h.Score, ordinal: h.Ordinal}
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := bestPerParent[order[a]], bestPerParent[order[b]]
		if pa.score != pb.score {
			return pa.score > pb.score
		}
		return pa.ordinal < pb.ordinal
	})

	if r.opts.MaxContext > 0 && len(order) > r.opts.MaxContext {
		order = order[:r.opts.MaxContext]
	}

	out := make(RetrievalResult, 0, len(order))
	for _, pid := range order {
		parent, ok := r.ix.Parent(pid)
		if !ok {
			// Unreachable for an index built by this module; skip rather
			// than return a passage with no text.
			continue
		}
		out = append(out, Passage{
			ParentID: pid,
			Text:     parent.Text,
			Score:    bestPerParent[pid].score,
			Meta:     parent.Meta,
		})
	}
	return out
}
