package retrieval

import (
	"fmt"
)

// BuildConfig bounds the assembled context.
type BuildConfig struct {
	MaxChunks int
	MaxChars  int
	PerURLCap int
}

// BuildContext assembles the generation context from ranked candidates.
// Candidates are admitted in rank order, at most PerURLCap per URL, until
// MaxChunks or MaxChars would be exceeded. A chunk that does not fit whole is
// skipped, never truncated, so every admitted chunk stays intelligible.
// Empty candidates produce an empty payload, which the answer pipeline turns
// into a fallback response rather than an error.
func BuildContext(candidates []Candidate, cfg BuildConfig) ContextPayload {
	var payload ContextPayload

	perURL := make(map[string]int)
	seenSource := make(map[string]bool)
	usedChars := 0

	for _, c := range candidates {
		if cfg.MaxChunks > 0 && len(payload.Entries) >= cfg.MaxChunks {
			break
		}
		if cfg.PerURLCap > 0 && perURL[c.URL] >= cfg.PerURLCap {
			continue
		}

		text := formatEntry(c)
		if cfg.MaxChars > 0 && usedChars+len(text) > cfg.MaxChars {
			continue
		}

		payload.Entries = append(payload.Entries, ContextEntry{
			ChunkID: c.ChunkID,
			URL:     c.URL,
			Title:   c.Title,
			Text:    text,
		})
		usedChars += len(text)
		perURL[c.URL]++

		if !seenSource[c.URL] {
			payload.Sources = append(payload.Sources, c.URL)
			seenSource[c.URL] = true
		}
	}

	return payload
}

func formatEntry(c Candidate) string {
	title := c.Title
	if title == "" {
		title = c.URL
	}
	return fmt.Sprintf("[source: %s (%s)]\n%s", title, c.URL, c.Content)
}
