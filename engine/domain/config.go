// Package domain defines the pipeline configuration, the error taxonomy,
// and validation for the threadsage engine. It acts as the fail-fast gate
// at pipeline entry points: nothing downstream performs I/O before
// Config.Validate has passed.
package domain

import "fmt"

// TimeFilter selects how recent the fetched posts must be.
type TimeFilter string

const (
	FilterDay   TimeFilter = "day"
	FilterWeek  TimeFilter = "week"
	FilterMonth TimeFilter = "month"
	FilterYear  TimeFilter = "year"
	FilterAll   TimeFilter = "all"
)

// ValidTimeFilters is the set of recognised recency filters.
var ValidTimeFilters = map[TimeFilter]bool{
	FilterDay: true, FilterWeek: true, FilterMonth: true,
	FilterYear: true, FilterAll: true,
}

// Granularity controls how a fetched item maps to documents.
type Granularity string

const (
	// GranularityPost yields one document per post, comments concatenated.
	GranularityPost Granularity = "post"
	// GranularityComment yields one document for the post body plus one
	// per comment.
	GranularityComment Granularity = "comment"
)

// ValidGranularities is the set of recognised granularities.
var ValidGranularities = map[Granularity]bool{
	GranularityPost: true, GranularityComment: true,
}

// Config holds all pipeline settings. It is constructed once at startup
// and threaded into each component's constructor; components never read
// ambient state.
type Config struct {
	// Source settings.
	Subreddit  string
	TimeFilter TimeFilter
	ItemLimit  int

	// Normalization.
	Granularity Granularity

	// Chunking (characters).
	ParentSize    int
	ParentOverlap int
	ChildSize     int
	ChildOverlap  int

	// Models.
	EmbedModel string
	ChatModel  string

	// Retrieval.
	TopK       int
	MaxContext int
	// ScoreFloor drops hits below this cosine similarity. Zero disables it.
	ScoreFloor float64

	// Conversation.
	HistoryWindow int

	// Index build.
	EmbedBatchSize int
	EmbedWorkers   int
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Subreddit:      "wallstreetbets",
		TimeFilter:     FilterDay,
		ItemLimit:      1000,
		Granularity:    GranularityPost,
		ParentSize:     2000,
		ParentOverlap:  200,
		ChildSize:      400,
		ChildOverlap:   50,
		EmbedModel:     "nomic-embed-text",
		ChatModel:      "llama3.1:8b",
		TopK:           5,
		MaxContext:     4,
		HistoryWindow:  10,
		EmbedBatchSize: 64,
		EmbedWorkers:   4,
	}
}

// Validate checks the configuration and returns a Config-kind error on the
// first violation. It must pass before any component is constructed.
func (c Config) Validate() error {
	fail := func(format string, args ...any) error {
		return E(KindConfig, "config", fmt.Errorf(format, args...))
	}

	if c.Subreddit == "" {
		return fail("subreddit is empty")
	}
	if !ValidTimeFilters[c.TimeFilter] {
		return fail("unknown time filter %q", c.TimeFilter)
	}
	if c.ItemLimit <= 0 {
		return fail("item limit must be positive, got %d", c.ItemLimit)
	}
	if !ValidGranularities[c.Granularity] {
		return fail("unknown granularity %q", c.Granularity)
	}
	if c.ParentSize <= 0 {
		return fail("parent size must be positive, got %d", c.ParentSize)
	}
	if c.ChildSize <= 0 {
		return fail("child size must be positive, got %d", c.ChildSize)
	}
	if c.ChildSize >= c.ParentSize {
		return fail("child size %d must be smaller than parent size %d", c.ChildSize, c.ParentSize)
	}
	if c.ParentOverlap < 0 || c.ParentOverlap >= c.ParentSize {
		return fail("parent overlap %d must be in [0, parent size %d)", c.ParentOverlap, c.ParentSize)
	}
	if c.ChildOverlap < 0 || c.ChildOverlap >= c.ChildSize {
		return fail("child overlap %d must be in [0, child size %d)", c.ChildOverlap, c.ChildSize)
	}
	if c.EmbedModel == "" {
		return fail("embed model is empty")
	}
	if c.ChatModel == "" {
		return fail("chat model is empty")
	}
	if c.TopK <= 0 {
		return fail("topK must be positive, got %d", c.TopK)
	}
	if c.MaxContext <= 0 {
		return fail("max context must be positive, got %d", c.MaxContext)
	}
	if c.ScoreFloor < 0 || c.ScoreFloor > 1 {
		return fail("score floor %g must be in [0, 1]", c.ScoreFloor)
	}
	if c.HistoryWindow <= 0 {
		return fail("history window must be positive, got %d", c.HistoryWindow)
	}
	if c.EmbedBatchSize <= 0 {
		return fail("embed batch size must be positive, got %d", c.EmbedBatchSize)
	}
	if c.EmbedWorkers <= 0 {
		return fail("embed workers must be positive, got %d", c.EmbedWorkers)
	}
	return nil
}
