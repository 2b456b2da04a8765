package util

import "strings"

// ChunkText splits text into fixed rune windows with overlap (raw boundary mode).
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 12000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(text)
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}
	out := make([]string, 0)
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[i:end]))
		if part != "" {
			out = append(out, part)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// ChunkTextNewline walks the same windows but moves each cut back to the
// nearest line break, searching no further than half the window, so a
// budget row is never split mid-line.
func ChunkTextNewline(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 12000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(text)
	out := make([]string, 0)
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			limit := end - chunkSize/2
			if limit < start+1 {
				limit = start + 1
			}
			for j := end - 1; j >= limit; j-- {
				if runes[j] == '\n' {
					end = j + 1
					break
				}
			}
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			out = append(out, part)
		}
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

type PageChunk struct {
	Text      string `json:"text"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
}

// SplitPages splits extracted text on form-feed page markers.
func SplitPages(text string) []string {
	parts := strings.Split(text, "\f")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ChunkPages groups pages perChunk at a time with a one-page overlap between
// consecutive chunks, so an item spanning a page boundary lands in at least
// one chunk whole. Page numbers are 1-based.
func ChunkPages(pages []string, perChunk int) []PageChunk {
	if perChunk < 2 {
		perChunk = 2
	}
	step := perChunk - 1
	out := make([]PageChunk, 0)
	for i := 0; i < len(pages); i += step {
		end := i + perChunk
		if end > len(pages) {
			end = len(pages)
		}
		out = append(out, PageChunk{
			Text:      strings.Join(pages[i:end], "\n"),
			PageStart: i + 1,
			PageEnd:   end,
		})
		if end == len(pages) {
			break
		}
	}
	return out
}

// CapChunks bounds a chunk list to max entries, folding any remainder into
// the final chunk rather than dropping text.
func CapChunks(chunks []string, max int) []string {
	if max <= 0 || len(chunks) <= max {
		return chunks
	}
	out := make([]string, max)
	copy(out, chunks[:max-1])
	out[max-1] = strings.Join(chunks[max-1:], "\n")
	return out
}

// TruncateChars bounds a string to max runes.
func TruncateChars(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
