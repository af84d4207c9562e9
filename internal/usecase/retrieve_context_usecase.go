package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recall/internal/domain"
	"recall/internal/usecase/retrieval"
)

// RetrieveContextInput defines the input parameters for a retrieval.
type RetrieveContextInput struct {
	Query string
	K     int
	From  time.Time
	To    time.Time
}

// RetrieveContextOutput carries the ranked candidates.
type RetrieveContextOutput struct {
	Candidates []retrieval.Candidate
}

// RetrieveContextUsecase embeds the query and finds the nearest indexed
// chunks of current page versions.
type RetrieveContextUsecase interface {
	Execute(ctx context.Context, input RetrieveContextInput) (*RetrieveContextOutput, error)
}

type retrieveContextUsecase struct {
	chunkRepo    domain.ChunkRepository
	encoder      domain.VectorEncoder
	defaultLimit int
}

// NewRetrieveContextUsecase creates a new RetrieveContextUsecase.
func NewRetrieveContextUsecase(
	chunkRepo domain.ChunkRepository,
	encoder domain.VectorEncoder,
	defaultLimit int,
) RetrieveContextUsecase {
	return &retrieveContextUsecase{
		chunkRepo:    chunkRepo,
		encoder:      encoder,
		defaultLimit: defaultLimit,
	}
}

func (u *retrieveContextUsecase) Execute(ctx context.Context, input RetrieveContextInput) (*RetrieveContextOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	limit := input.K
	if limit <= 0 {
		limit = u.defaultLimit
	}

	embeddings, err := u.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, domain.NewEmbeddingError(
			fmt.Sprintf("expected 1 query vector, got %d", len(embeddings)), nil)
	}

	filter := domain.SearchFilter{From: input.From, To: input.To}
	results, err := u.chunkRepo.Search(ctx, embeddings[0], limit, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	// An empty index or a query far from everything is a valid empty result.
	candidates := make([]retrieval.Candidate, 0, len(results))
	for _, res := range results {
		candidates = append(candidates, retrieval.Candidate{
			ChunkID:  res.Chunk.ID,
			Content:  res.Chunk.Content,
			URL:      res.URL,
			Title:    res.Title,
			LastSeen: res.LastSeen,
			Distance: res.Distance,
		})
	}

	return &RetrieveContextOutput{Candidates: candidates}, nil
}
