package util

import (
	"strings"
	"testing"
)

func TestChunkText(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := ChunkText(text, 10, 2)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	if chunks[0] != "abcdefghij" {
		t.Fatalf("unexpected first chunk: %s", chunks[0])
	}
}

func TestChunkTextNewlineNeverSplitsLines(t *testing.T) {
	lines := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		lines = append(lines, "030.101.010 EXCAVATION OF TRENCH m3 12,50 8,30 103,75")
	}
	text := strings.Join(lines, "\n")

	chunks := ChunkTextNewline(text, 500, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// Every chunk except the last must end exactly where a source line ends.
	for i, c := range chunks[:len(chunks)-1] {
		last := c[strings.LastIndex(c, "\n")+1:]
		if last != lines[0] {
			t.Fatalf("chunk %d ends mid-line: %q", i, last)
		}
	}
}

func TestChunkTextNewlineOverlap(t *testing.T) {
	text := strings.Repeat("line one\nline two\nline three\n", 50)
	chunks := ChunkTextNewline(text, 100, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected overlap to produce multiple chunks, got %d", len(chunks))
	}
	joined := strings.Join(chunks, "")
	if len(joined) < len(text)-len(chunks)*2 {
		t.Fatalf("chunks lost text: %d < %d", len(joined), len(text))
	}
}

func TestChunkPagesOverlapOnePage(t *testing.T) {
	pages := []string{"p1", "p2", "p3", "p4", "p5"}
	chunks := ChunkPages(pages, 3)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].PageStart != 1 || chunks[0].PageEnd != 3 {
		t.Fatalf("unexpected first range: %d-%d", chunks[0].PageStart, chunks[0].PageEnd)
	}
	if chunks[1].PageStart != 3 || chunks[1].PageEnd != 5 {
		t.Fatalf("expected one-page overlap, got %d-%d", chunks[1].PageStart, chunks[1].PageEnd)
	}
}

func TestCapChunksFoldsRemainder(t *testing.T) {
	chunks := make([]string, 40)
	for i := range chunks {
		chunks[i] = "x"
	}
	capped := CapChunks(chunks, 35)
	if len(capped) != 35 {
		t.Fatalf("expected 35 chunks, got %d", len(capped))
	}
	if !strings.Contains(capped[34], "\n") {
		t.Fatalf("expected remainder folded into final chunk")
	}
}
