// Package normalize converts raw fetched items into canonical documents
// with provenance metadata. The transformation is pure: no I/O, no
// mutation of its inputs.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/threadsage/threadsage/engine/domain"
	"github.com/threadsage/threadsage/engine/source"
)

// Document is a normalized text unit derived from one RawItem.
type Document struct {
	ID   string
	Text string
	Meta map[string]string
}

// Normalize converts items into documents at the given granularity.
// Whitespace-only items are skipped, not errored; the count of skipped
// units is returned alongside the documents.
func Normalize(items []source.RawItem, granularity domain.Granularity) ([]Document, int) {
	var docs []Document
	skipped := 0

	for _, item := range items {
		switch granularity {
		case domain.GranularityComment:
			d, s := perComment(item)
			docs = append(docs, d...)
			skipped += s
		default:
			d, ok := wholePost(item)
			if !ok {
				skipped++
				continue
			}
			docs = append(docs, d)
		}
	}
	return docs, skipped
}

// wholePost renders one document per item: title, body, then every
// comment in thread order.
func wholePost(item source.RawItem) (Document, bool) {
	var b strings.Builder
	if t := strings.TrimSpace(item.Title); t != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", t)
	}
	if body := strings.TrimSpace(item.Body); body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	for _, c := range item.Comments {
		if c = strings.TrimSpace(c); c != "" {
			fmt.Fprintf(&b, "\nComment: %s\n", c)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return Document{}, false
	}
	return Document{
		ID:   "reddit:" + item.ID,
		Text: text,
		Meta: meta(item, "post"),
	}, true
}

// perComment renders the post title+body as one document and each comment
// as its own document, so a granularity choice never drops text.
func perComment(item source.RawItem) ([]Document, int) {
	var docs []Document
	skipped := 0

	var b strings.Builder
	if t := strings.TrimSpace(item.Title); t != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", t)
	}
	b.WriteString(strings.TrimSpace(item.Body))
	if text := strings.TrimSpace(b.String()); text != "" {
		docs = append(docs, Document{
			ID:   "reddit:" + item.ID,
			Text: text,
			Meta: meta(item, "post"),
		})
	} else {
		skipped++
	}

	for i, c := range item.Comments {
		text := strings.TrimSpace(c)
		if text == "" {
			skipped++
			continue
		}
		docs = append(docs, Document{
			ID:   fmt.Sprintf("reddit:%s/c%d", item.ID, i),
			Text: text,
			Meta: meta(item, "comment"),
		})
	}
	return docs, skipped
}

func meta(item source.RawItem, typ string) map[string]string {
	return map[string]string{
		"source_id": item.ID,
		"type":      typ,
		"subreddit": item.Subreddit,
		"author":    item.Author,
		"url":       item.URL,
		"created":   item.CreatedAt.Format(time.RFC3339),
	}
}
