package textsplit

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the per-request character limit of OpenAI-compatible
// speech endpoints.
const DefaultMaxChars = 4096

// sentenceEnders are the boundary sequences a chunk may end on, including the
// quoted variants. A chunk is cut immediately after the matched sequence.
var sentenceEnders = []string{
	". ", ".\n", ".\r",
	"! ", "!\n", "!\r",
	"? ", "?\n", "?\r",
	`." `, `.' `,
	`!" `, `!' `,
	`?" `, `?' `,
}

// Split divides text into chunks of at most maxChars, preferring sentence
// boundaries, then word boundaries, then a hard cut. Chunks produced by a cut
// are trimmed of edge whitespace and empty chunks are dropped. Text that fits
// in a single chunk is returned untouched, whitespace included.
func Split(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	pos := 0

	for pos < len(text) {
		end := pos + maxChars

		// Last chunk takes the remainder verbatim.
		if end >= len(text) {
			if rest := strings.TrimSpace(text[pos:]); rest != "" {
				chunks = append(chunks, rest)
			}
			break
		}

		window := text[pos:end]

		// Prefer the sentence boundary closest to the window end.
		split := -1
		for _, ender := range sentenceEnders {
			if i := strings.LastIndex(window, ender); i != -1 && i+len(ender) > split {
				split = i + len(ender)
			}
		}

		// No sentence boundary: fall back to the last space.
		if split == -1 {
			if i := strings.LastIndex(window, " "); i != -1 {
				split = i + 1
			}
		}

		// Still nothing: hard cut at the limit, backed up to a rune boundary.
		if split == -1 {
			split = maxChars
			for split > 0 && !utf8.RuneStart(text[pos+split]) {
				split--
			}
			if split == 0 {
				// The rune at the window start is wider than maxChars;
				// take it whole so the cursor always advances.
				_, width := utf8.DecodeRuneInString(text[pos:])
				split = width
			}
		}

		chunk := strings.TrimSpace(text[pos : pos+split])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		pos += split
	}

	return chunks
}

// SplitStats describes how Split would carve a given text.
type SplitStats struct {
	TotalLength      int   `json:"total_length"`
	NumChunks        int   `json:"num_chunks"`
	ChunkSizes       []int `json:"chunk_sizes"`
	AverageChunkSize int   `json:"average_chunk_size"`
}

// Stats reports chunk counts and sizes for text without keeping the chunks.
func Stats(text string, maxChars int) SplitStats {
	chunks := Split(text, maxChars)
	stats := SplitStats{
		TotalLength: len(text),
		NumChunks:   len(chunks),
		ChunkSizes:  make([]int, 0, len(chunks)),
	}
	total := 0
	for _, c := range chunks {
		stats.ChunkSizes = append(stats.ChunkSizes, len(c))
		total += len(c)
	}
	if len(chunks) > 0 {
		stats.AverageChunkSize = (total + len(chunks)/2) / len(chunks)
	}
	return stats
}
