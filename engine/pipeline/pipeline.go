// Package pipeline orchestrates one ingestion run (fetch, normalize,
// chunk, index build) and gates the query phase behind build completion.
// The built index is published atomically: queries issued before the
// build finishes are rejected with domain.ErrNotReady, never served
// against a partial index.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/threadsage/threadsage/engine/chunk"
	"github.com/threadsage/threadsage/engine/domain"
	"github.com/threadsage/threadsage/engine/index"
	"github.com/threadsage/threadsage/engine/normalize"
	"github.com/threadsage/threadsage/engine/retrieve"
	"github.com/threadsage/threadsage/engine/source"
	"github.com/threadsage/threadsage/pkg/fn"
	"github.com/threadsage/threadsage/pkg/metrics"
	"github.com/threadsage/threadsage/pkg/status"
)

// Source supplies raw items for an ingestion run.
type Source interface {
	Fetch(ctx context.Context, subreddit string, filter domain.TimeFilter, limit int) ([]source.RawItem, error)
}

// Embedder covers both build-time batch embedding and query-time single
// embedding; both must use the same model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Stats summarises one ingestion run.
type Stats struct {
	Items     int           `json:"items"`
	Documents int           `json:"documents"`
	Skipped   int           `json:"skipped"`
	Parents   int           `json:"parents"`
	Children  int           `json:"children"`
	Duration  time.Duration `json:"duration"`
}

// Pipeline is one ingestion-and-query instance.
type Pipeline struct {
	cfg     domain.Config
	src     Source
	embed   Embedder
	emitter status.Emitter
	logger  *slog.Logger

	runMu     sync.Mutex
	retriever atomic.Pointer[retrieve.Retriever]

	mItems    *metrics.Counter
	mDocs     *metrics.Counter
	mSkipped  *metrics.Counter
	mParents  *metrics.Counter
	mChildren *metrics.Counter
	mBuildDur *metrics.Histogram
}

// New validates cfg and creates a Pipeline. A nil emitter discards status
// events; a nil registry disables metrics.
func New(cfg domain.Config, src Source, embed Embedder, emitter status.Emitter, reg *metrics.Registry, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if emitter == nil {
		emitter = status.Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Pipeline{
		cfg:       cfg,
		src:       src,
		embed:     embed,
		emitter:   emitter,
		logger:    logger,
		mItems:    reg.Counter("threadsage_items_fetched_total", "Raw items fetched from the source"),
		mDocs:     reg.Counter("threadsage_documents_total", "Documents produced by normalization"),
		mSkipped:  reg.Counter("threadsage_documents_skipped_total", "Empty items skipped by normalization"),
		mParents:  reg.Counter("threadsage_parent_chunks_total", "Parent chunks produced"),
		mChildren: reg.Counter("threadsage_child_chunks_total", "Child chunks produced"),
		mBuildDur: reg.Histogram("threadsage_index_build_seconds", "Wall-clock index build time", nil),
	}, nil
}

// Ready reports whether a complete index has been published.
func (p *Pipeline) Ready() bool { return p.retriever.Load() != nil }

// Retrieve implements chat.ContextRetriever against the current index.
func (p *Pipeline) Retrieve(ctx context.Context, query string) (retrieve.RetrievalResult, error) {
	r := p.retriever.Load()
	if r == nil {
		return nil, domain.ErrNotReady
	}
	return r.Retrieve(ctx, query)
}

type chunked struct {
	parents  []chunk.ParentChunk
	children []chunk.ChildChunk
}

// Run executes one full ingestion: fetch → normalize → chunk → build.
// Runs are serialized; the previous index keeps serving until the new one
// is published. A source fetch failure degrades to a zero-document run
// (reported through status events) rather than an error; index build
// failures abort the run and publish nothing.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := time.Now()
	var stats Stats

	fetch := fn.TracedStage("pipeline.fetch", func(ctx context.Context, _ struct{}) fn.Result[[]source.RawItem] {
		p.phaseStart("fetch")
		items, err := p.src.Fetch(ctx, p.cfg.Subreddit, p.cfg.TimeFilter, p.cfg.ItemLimit)
		if err != nil {
			// No documents available: the run continues and builds an
			// empty index instead of crashing the pipeline.
			p.phaseError("fetch", err)
			p.logger.Warn("pipeline: source fetch failed, continuing with zero documents", "err", err)
			items = nil
		} else {
			p.progress("fetch", len(items), len(items))
		}
		stats.Items = len(items)
		p.mItems.Add(int64(len(items)))
		p.phaseDone("fetch")
		return fn.Ok(items)
	})

	norm := fn.TracedStage("pipeline.normalize", func(_ context.Context, items []source.RawItem) fn.Result[[]normalize.Document] {
		p.phaseStart("normalize")
		docs, skipped := normalize.Normalize(items, p.cfg.Granularity)
		stats.Documents, stats.Skipped = len(docs), skipped
		p.mDocs.Add(int64(len(docs)))
		p.mSkipped.Add(int64(skipped))
		p.progress("normalize", len(docs), len(docs))
		p.phaseDone("normalize")
		return fn.Ok(docs)
	})

	split := fn.TracedStage("pipeline.chunk", func(_ context.Context, docs []normalize.Document) fn.Result[chunked] {
		p.phaseStart("chunk")
		parents, children := chunk.Chunk(docs, chunk.Sizes{
			ParentSize:    p.cfg.ParentSize,
			ParentOverlap: p.cfg.ParentOverlap,
			ChildSize:     p.cfg.ChildSize,
			ChildOverlap:  p.cfg.ChildOverlap,
		})
		stats.Parents, stats.Children = len(parents), len(children)
		p.mParents.Add(int64(len(parents)))
		p.mChildren.Add(int64(len(children)))
		p.progress("chunk", len(children), len(children))
		p.phaseDone("chunk")
		return fn.Ok(chunked{parents: parents, children: children})
	})

	build := fn.TracedStage("pipeline.index", func(ctx context.Context, c chunked) fn.Result[*index.Index] {
		p.phaseStart("index")
		ix, err := index.Build(ctx, p.embed, c.children, c.parents, index.Options{
			Model:     p.cfg.EmbedModel,
			BatchSize: p.cfg.EmbedBatchSize,
			Workers:   p.cfg.EmbedWorkers,
		})
		if err != nil {
			p.phaseError("index", err)
			return fn.Err[*index.Index](err)
		}
		p.progress("index", ix.Len(), ix.Len())
		p.phaseDone("index")
		return fn.Ok(ix)
	})

	stage := fn.Then(fn.Then(fn.Then(fetch, norm), split), build)
	ix, err := stage(ctx, struct{}{}).Unwrap()
	if err != nil {
		return stats, err
	}

	r, err := retrieve.New(ix, p.embed, p.cfg.EmbedModel, retrieve.Options{
		TopK:       p.cfg.TopK,
		MaxContext: p.cfg.MaxContext,
		ScoreFloor: p.cfg.ScoreFloor,
	}, p.logger)
	if err != nil {
		return stats, err
	}
	p.retriever.Store(r)
	p.mBuildDur.Since(start)

	stats.Duration = time.Since(start)
	p.logger.Info("pipeline: run complete",
		"items", stats.Items,
		"documents", stats.Documents,
		"skipped", stats.Skipped,
		"parents", stats.Parents,
		"children", stats.Children,
		"duration", stats.Duration,
	)
	return stats, nil
}

// IsNotReady reports whether err is the not-ready gate.
func IsNotReady(err error) bool { return errors.Is(err, domain.ErrNotReady) }

func (p *Pipeline) phaseStart(phase string) {
	p.emitter.Emit(status.Event{Kind: status.PhaseStarted, Phase: phase, At: time.Now()})
}

func (p *Pipeline) phaseDone(phase string) {
	p.emitter.Emit(status.Event{Kind: status.PhaseComplete, Phase: phase, At: time.Now()})
}

func (p *Pipeline) progress(phase string, count, total int) {
	p.emitter.Emit(status.Event{Kind: status.Progress, Phase: phase, Count: count, Total: total, At: time.Now()})
}

func (p *Pipeline) phaseError(phase string, err error) {
	p.emitter.Emit(status.Event{Kind: status.PhaseError, Phase: phase, Err: err.Error(), At: time.Now()})
}
