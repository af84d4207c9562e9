package domain

import "context"

// RerankCandidate represents a chunk candidate for cross-encoder reranking.
type RerankCandidate struct {
	// ChunkID identifies the chunk (used to map results back).
	ChunkID int64
	// Content is the text content to be scored against the query.
	Content string
	// Score is the initial retrieval score (for debugging/logging).
	Score float32
}

// RerankResult represents a reranked chunk with cross-encoder relevance score.
type RerankResult struct {
	// ChunkID matches the candidate for result mapping.
	ChunkID int64
	// Score is the cross-encoder relevance score, higher is more relevant.
	Score float32
}

// Reranker defines the interface for cross-encoder reranking of a bounded
// candidate set. If an error occurs, callers fall back to the retriever's
// distance order.
type Reranker interface {
	// Rerank scores candidates against the query using a cross-encoder model.
	// Returns results sorted by score descending.
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankResult, error)

	// ModelName returns the model identifier for logging/debugging.
	ModelName() string
}
