package pdfs

import "strings"

const (
	// DefaultChunkSize is ~300-350 tokens of averaged English text.
	DefaultChunkSize = 1500
	DefaultOverlap   = 250
)

// SplitText cuts text into overlapping chunks of at most chunkSize
// characters, preferring paragraph, line and word boundaries near the cut
// point. Whitespace-only chunks are dropped.
func SplitText(text string, chunkSize, chunkOverlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultOverlap
		if chunkOverlap >= chunkSize {
			chunkOverlap = chunkSize / 4
		}
	}

	var chunks []string
	for start := 0; start < len(text); {
		end := start + chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, start, end)
		}
		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(text) {
			break
		}
		next := end - chunkOverlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// cutPoint backtracks from end toward start looking for a paragraph break,
// then a newline, then a space, within the last half of the window.
func cutPoint(text string, start, end int) int {
	floor := end - (end-start)/2
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(text[floor:end], sep); i >= 0 {
			return floor + i + len(sep)
		}
	}
	return end
}
