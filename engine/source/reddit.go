package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/threadsage/threadsage/engine/domain"
	"github.com/threadsage/threadsage/pkg/fn"
)

const defaultBaseURL = "https://www.reddit.com"

// userAgent identifies the client to Reddit; unset agents are throttled hard.
const userAgent = "threadsage/1.0 (reddit thread indexing)"

// Client fetches top posts and their comments from a subreddit.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	// CommentsPerPost caps comments fetched per post. Zero skips the
	// per-post comment request entirely.
	CommentsPerPost int
}

// NewClient creates a Client with default pacing (one request per second,
// small burst), matching Reddit's unauthenticated rate expectations.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:         defaultBaseURL,
		http:            &http.Client{Timeout: 30 * time.Second},
		limiter:         rate.NewLimiter(rate.Every(time.Second), 2),
		logger:          logger,
		CommentsPerPost: 50,
	}
}

// NewClientWithBase creates a Client against a custom base URL. Used by
// tests to point at a fixture server.
func NewClientWithBase(baseURL string, logger *slog.Logger) *Client {
	c := NewClient(logger)
	c.baseURL = baseURL
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

// Fetch returns up to limit top posts from the subreddit for the given
// recency filter, each with its comment bodies attached. A post whose
// comment fetch fails is still returned, without comments.
func (c *Client) Fetch(ctx context.Context, subreddit string, filter domain.TimeFilter, limit int) ([]RawItem, error) {
	url := fmt.Sprintf("%s/r/%s/top.json?t=%s&limit=%d&raw_json=1", c.baseURL, subreddit, filter, limit)

	result := fn.Retry(ctx, fn.RetryOpts{
		MaxAttempts: 3,
		InitialWait: 2 * time.Second,
		MaxWait:     15 * time.Second,
		Jitter:      true,
	}, func(ctx context.Context) fn.Result[*listingResponse] {
		return c.doGetListing(ctx, url)
	})

	resp, err := result.Unwrap()
	if err != nil {
		return nil, domain.E(domain.KindSource, "fetch r/"+subreddit, err)
	}

	now := time.Now().UTC()
	items := make([]RawItem, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		d := child.Data
		item := RawItem{
			ID:          d.ID,
			Subreddit:   d.Subreddit,
			Title:       d.Title,
			Body:        d.SelfText,
			Author:      d.Author,
			URL:         "https://www.reddit.com" + d.Permalink,
			Score:       d.Score,
			NumComments: d.NumComments,
			CreatedAt:   time.Unix(int64(d.CreatedUTC), 0).UTC(),
			FetchedAt:   now,
		}

		if c.CommentsPerPost > 0 {
			comments, err := c.fetchComments(ctx, d.Permalink)
			if err != nil {
				c.logger.Warn("source: comments fetch failed", "post_id", d.ID, "err", err)
			} else {
				item.Comments = comments
			}
		}

		items = append(items, item)
	}

	c.logger.Info("source: fetch complete", "subreddit", subreddit, "filter", filter, "posts", len(items))
	return items, nil
}

func (c *Client) fetchComments(ctx context.Context, permalink string) ([]string, error) {
	url := fmt.Sprintf("%s%s.json?limit=%d&raw_json=1&sort=top", c.baseURL, permalink, c.CommentsPerPost)

	result := fn.Retry(ctx, fn.RetryOpts{
		MaxAttempts: 2,
		InitialWait: 2 * time.Second,
		MaxWait:     10 * time.Second,
		Jitter:      true,
	}, func(ctx context.Context) fn.Result[[]string] {
		return c.doGetComments(ctx, url)
	})
	return result.Unwrap()
}

func (c *Client) doGetListing(ctx context.Context, url string) fn.Result[*listingResponse] {
	body, err := c.httpGet(ctx, url)
	if err != nil {
		return fn.Err[*listingResponse](err)
	}
	defer body.Close()

	var resp listingResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return fn.Err[*listingResponse](fmt.Errorf("decode listing: %w", err))
	}
	return fn.Ok(&resp)
}

func (c *Client) doGetComments(ctx context.Context, url string) fn.Result[[]string] {
	body, err := c.httpGet(ctx, url)
	if err != nil {
		return fn.Err[[]string](err)
	}
	defer body.Close()

	// Reddit returns [postListing, commentListing].
	var listings []listingResponse
	if err := json.NewDecoder(body).Decode(&listings); err != nil {
		return fn.Err[[]string](fmt.Errorf("decode comments: %w", err))
	}
	if len(listings) < 2 {
		return fn.Ok([]string(nil))
	}

	var comments []string
	for _, child := range listings[1].Data.Children {
		if child.Kind != "t1" || child.Data.Body == "" {
			continue
		}
		comments = append(comments, child.Data.Body)
	}
	return fn.Ok(comments)
}

func (c *Client) httpGet(ctx context.Context, url string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, fmt.Errorf("http %d from %s", resp.StatusCode, url)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

// Reddit JSON API response types.

type listingResponse struct {
	Data struct {
		Children []listingChild `json:"children"`
		After    string         `json:"after"`
	} `json:"data"`
}

type listingChild struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	SelfText    string  `json:"selftext"`
	Body        string  `json:"body"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}
