package chunk

import (
	"strings"
	"testing"

	"github.com/threadsage/threadsage/engine/normalize"
)

func doc(id, text string) normalize.Document {
	return normalize.Document{ID: id, Text: text, Meta: map[string]string{"source_id": id}}
}

func TestChunkWindowBoundaries(t *testing.T) {
	long := strings.Repeat("a", 500)
	short := strings.Repeat("b", 50)

	parents, children := Chunk(
		[]normalize.Document{doc("d1", long), doc("d2", short)},
		Sizes{ParentSize: 200, ParentOverlap: 20, ChildSize: 50, ChildOverlap: 10},
	)

	// 500 chars at size 200 / step 180 gives offsets 0, 180, 360 with the
	// last window truncated to 140. The 50-char doc is one verbatim window.
	if len(parents) != 4 {
		t.Fatalf("expected 4 parents, got %d", len(parents))
	}
	wantLens := []int{200, 200, 140, 50}
	wantIDs := []string{"d1#0", "d1#180", "d1#360", "d2#0"}
	for i, p := range parents {
		if len(p.Text) != wantLens[i] {
			t.Errorf("parent %d: expected length %d, got %d", i, wantLens[i], len(p.Text))
		}
		if p.ID != wantIDs[i] {
			t.Errorf("parent %d: expected id %s, got %s", i, wantIDs[i], p.ID)
		}
	}
	if parents[3].Text != short {
		t.Error("doc shorter than parent size should yield the text verbatim")
	}

	// A 200-char parent at child size 50 / step 40 has offsets 0,40,80,120,160;
	// the 140-char parent stops at 120 and the 50-char parent is one window.
	counts := map[string]int{}
	for _, c := range children {
		counts[c.ParentID]++
	}
	wantChildren := map[string]int{"d1#0": 5, "d1#180": 5, "d1#360": 4, "d2#0": 1}
	for pid, want := range wantChildren {
		if counts[pid] != want {
			t.Errorf("parent %s: expected %d children, got %d", pid, want, counts[pid])
		}
	}
}

func TestChunkChildrenAreSubstrings(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog, again and again and again."
	parents, children := Chunk(
		[]normalize.Document{doc("d1", text)},
		Sizes{ParentSize: 30, ParentOverlap: 5, ChildSize: 10, ChildOverlap: 2},
	)

	byID := map[string]ParentChunk{}
	for _, p := range parents {
		byID[p.ID] = p
	}
	if len(children) == 0 {
		t.Fatal("expected children")
	}
	for _, c := range children {
		p, ok := byID[c.ParentID]
		if !ok {
			t.Fatalf("child %s points at unknown parent %s", c.ID, c.ParentID)
		}
		if !strings.Contains(p.Text, c.Text) {
			t.Errorf("child %s text %q not a substring of its parent", c.ID, c.Text)
		}
	}
}

func TestChunkEveryParentHasAChild(t *testing.T) {
	docs := []normalize.Document{
		doc("a", strings.Repeat("x", 1)),
		doc("b", strings.Repeat("y", 37)),
		doc("c", strings.Repeat("z", 1000)),
	}
	parents, children := Chunk(docs, Sizes{ParentSize: 120, ParentOverlap: 10, ChildSize: 40, ChildOverlap: 8})

	seen := map[string]bool{}
	for _, c := range children {
		seen[c.ParentID] = true
	}
	for _, p := range parents {
		if !seen[p.ID] {
			t.Errorf("parent %s has no children", p.ID)
		}
	}
}

func TestChunkCoversWholeDocument(t *testing.T) {
	text := strings.Repeat("abcdefghij", 47) // 470 chars, not a clean multiple
	parents, _ := Chunk(
		[]normalize.Document{doc("d1", text)},
		Sizes{ParentSize: 100, ParentOverlap: 15, ChildSize: 25, ChildOverlap: 5},
	)

	// Stitching consecutive parents back together, dropping each window's
	// leading overlap, must reproduce the document exactly.
	var b strings.Builder
	for i, p := range parents {
		if i == 0 {
			b.WriteString(p.Text)
			continue
		}
		b.WriteString(p.Text[15:])
	}
	if b.String() != text {
		t.Fatalf("parents do not cover the document: rebuilt %d chars, want %d", b.Len(), len(text))
	}
}

func TestChunkMultiByteText(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 30)
	parents, children := Chunk(
		[]normalize.Document{doc("d1", text)},
		Sizes{ParentSize: 50, ParentOverlap: 10, ChildSize: 20, ChildOverlap: 4},
	)

	for _, p := range parents {
		if !strings.Contains(text, p.Text) {
			t.Errorf("parent %s split mid-rune: %q", p.ID, p.Text)
		}
	}
	for _, c := range children {
		if strings.ContainsRune(c.Text, '�') {
			t.Errorf("child %s contains replacement char: %q", c.ID, c.Text)
		}
	}
}

func TestChunkEmptyDocYieldsNothing(t *testing.T) {
	parents, children := Chunk(
		[]normalize.Document{doc("d1", "")},
		Sizes{ParentSize: 100, ParentOverlap: 10, ChildSize: 20, ChildOverlap: 5},
	)
	if len(parents) != 0 || len(children) != 0 {
		t.Fatalf("empty document should yield nothing, got %d parents %d children", len(parents), len(children))
	}
}
