package retrieval

import "time"

// Candidate is one retrieved chunk moving through the rerank and context
// assembly stages. Distance is the retriever's L2 distance (lower is better);
// Score is the cross-encoder relevance when reranking ran (higher is better).
type Candidate struct {
	ChunkID  int64
	Content  string
	URL      string
	Title    string
	LastSeen time.Time
	Distance float32
	Score    float32
	Reranked bool
}

// ContextEntry is one chunk admitted into the generation context, already
// prefixed with its source marker.
type ContextEntry struct {
	ChunkID int64
	URL     string
	Title   string
	Text    string
}

// ContextPayload is the assembled generation context: the admitted entries in
// rank order plus the deduplicated source URLs in first-appearance order.
type ContextPayload struct {
	Entries []ContextEntry
	Sources []string
}

// Empty reports whether no chunk made it into the context.
func (p ContextPayload) Empty() bool {
	return len(p.Entries) == 0
}
