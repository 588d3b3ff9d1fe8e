// Package source fetches raw posts and their comment threads from Reddit's
// public JSON API. It is the content-source collaborator of the pipeline:
// everything network-facing (auth-free listing access, pacing, retries)
// lives here, nothing downstream performs I/O.
package source

import "time"

// RawItem is a fetched post with its comment bodies, immutable once
// fetched. Comments preserve the order the API returned them in.
type RawItem struct {
	ID          string    `json:"id"`
	Subreddit   string    `json:"subreddit"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Author      string    `json:"author"`
	URL         string    `json:"url"`
	Score       int       `json:"score"`
	NumComments int       `json:"num_comments"`
	CreatedAt   time.Time `json:"created_at"`
	Comments    []string  `json:"comments"`
	FetchedAt   time.Time `json:"fetched_at"`
}
