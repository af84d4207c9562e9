package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ChunkerVersion defines the version of the chunking algorithm.
// It is persisted with every indexed page so that a configuration or
// algorithm change can be detected and force a full rebuild.
type ChunkerVersion string

const (
	// ChunkerVersionV1 is the initial fixed-window chunker.
	ChunkerVersionV1 ChunkerVersion = "v1"
	// ChunkerVersionV2 adds sentence-boundary snapping near the window end.
	ChunkerVersionV2 ChunkerVersion = "v2"
)

const (
	// boundaryLookback is how far back from the window end a sentence
	// boundary is still preferred over a hard cut, in runes.
	boundaryLookback = 120
	// minChunkRunes is the narrowest window a boundary snap may leave. A
	// boundary closer to the window start than this is ignored so the full
	// window is emitted instead and no input runes go missing.
	minChunkRunes = 20
)

// Chunk represents a single piece of a page's text.
type Chunk struct {
	Position int    // Sequence number within the page (0-indexed)
	Content  string // The actual text content
	Hash     string // Stable hash of the content (SHA-256)
}

// Chunker defines the interface for splitting page text into chunks.
// Chunking must be deterministic: identical input and configuration always
// produce an identical chunk sequence, which makes re-indexing idempotent.
type Chunker interface {
	Chunk(text string) ([]Chunk, error)
	Version() ChunkerVersion
}

type windowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker creates a sliding-window Chunker producing chunks of at
// most size runes where consecutive chunks share up to overlap runes.
// The overlap must be strictly smaller than the size.
func NewWindowChunker(size, overlap int) (Chunker, error) {
	if size <= 0 {
		return nil, NewConfigError("chunk_size", "must be positive")
	}
	if overlap < 0 {
		return nil, NewConfigError("chunk_overlap", "must not be negative")
	}
	if overlap >= size {
		return nil, NewConfigError("chunk_overlap", "must be smaller than chunk_size")
	}
	return &windowChunker{size: size, overlap: overlap}, nil
}

func (c *windowChunker) Version() ChunkerVersion {
	return ChunkerVersionV2
}

// Chunk splits the text into overlapping windows, preferring to end each
// window at a sentence boundary close to the size limit. Empty text yields
// zero chunks; text shorter than the window yields exactly one chunk.
func (c *windowChunker) Chunk(text string) ([]Chunk, error) {
	normalized := normalizeText(text)
	if normalized == "" {
		return nil, nil
	}

	runes := []rune(normalized)
	if len(runes) <= c.size {
		return []Chunk{newChunk(0, normalized)}, nil
	}

	var chunks []Chunk
	start := 0

	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			// Snap to the last sentence boundary inside the window when one
			// exists close enough to the end and the snapped window stays at
			// least minChunkRunes wide.
			if b := lastSentenceBoundary(runes, start, end); b-start >= minChunkRunes && end-b <= boundaryLookback {
				end = b
			}
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, newChunk(len(chunks), content))
		}

		if end == len(runes) {
			break
		}

		// Step forward, sharing overlap runes with the previous window. The
		// overlap is capped at half the emitted window so progress is
		// guaranteed even for small boundary-snapped chunks.
		step := min(c.overlap, (end-start)/2)
		start = end - step
	}

	return chunks, nil
}

func newChunk(position int, content string) Chunk {
	hashBytes := sha256.Sum256([]byte(content))
	return Chunk{
		Position: position,
		Content:  content,
		Hash:     hex.EncodeToString(hashBytes[:]),
	}
}

func normalizeText(text string) string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.TrimSpace(normalized)
}
