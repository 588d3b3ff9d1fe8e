// Package chunk splits documents hierarchically: large parent windows that
// become the unit of retrieved context, then smaller overlapping child
// windows within each parent that become the unit of embedding. The split
// is deterministic and pure; size relationships are validated once by
// domain.Config, not per document.
package chunk

import (
	"fmt"

	"github.com/threadsage/threadsage/engine/normalize"
)

// ParentChunk is a contiguous window of one document's text.
type ParentChunk struct {
	ID    string
	DocID string
	Text  string
	Meta  map[string]string
}

// ChildChunk is a contiguous window of exactly one parent's text. Its
// Text is always a literal substring of the owning parent's Text.
type ChildChunk struct {
	ID       string
	ParentID string
	Text     string
}

// Sizes carries the window settings for one chunking pass.
type Sizes struct {
	ParentSize    int
	ParentOverlap int
	ChildSize     int
	ChildOverlap  int
}

// Chunk splits documents into parents and children. Parents appear in
// document order, children in parent order; the returned slices share
// that ordering with the ingestion run, which downstream relies on for
// deterministic tie-breaking.
func Chunk(docs []normalize.Document, s Sizes) ([]ParentChunk, []ChildChunk) {
	var parents []ParentChunk
	var children []ChildChunk

	for _, doc := range docs {
		for _, w := range windows(doc.Text, s.ParentSize, s.ParentOverlap) {
			parent := ParentChunk{
				ID:    fmt.Sprintf("%s#%d", doc.ID, w.start),
				DocID: doc.ID,
				Text:  w.text,
				Meta:  doc.Meta,
			}
			parents = append(parents, parent)

			for _, cw := range windows(parent.Text, s.ChildSize, s.ChildOverlap) {
				children = append(children, ChildChunk{
					ID:       fmt.Sprintf("%s#%d", parent.ID, cw.start),
					ParentID: parent.ID,
					Text:     cw.text,
				})
			}
		}
	}
	return parents, children
}

type window struct {
	start int
	text  string
}

// windows slides a size-wide window with step size-overlap across text,
// measured in runes so multi-byte content never splits mid-character.
// The final window is truncated to the remaining text, never padded or
// dropped, so the windows jointly cover every character. Text shorter
// than size yields a single verbatim window.
func windows(text string, size, overlap int) []window {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	step := size - overlap

	var out []window
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			out = append(out, window{start: start, text: string(runes[start:])})
			break
		}
		out = append(out, window{start: start, text: string(runes[start:end])})
	}
	return out
}
