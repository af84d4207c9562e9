package usecase_test

import (
	"context"
	"testing"
	"time"

	"recall/internal/domain"
	"recall/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRetrieveContext_Success(t *testing.T) {
	chunkRepo := new(MockChunkRepository)
	encoder := &stubEncoder{dim: 4, version: "all-minilm"}
	uc := usecase.NewRetrieveContextUsecase(chunkRepo, encoder, 10)

	results := []domain.SearchResult{
		{Chunk: domain.PageChunk{ID: 1, Content: "nearest"}, Distance: 0.1, URL: "https://a", Title: "A"},
		{Chunk: domain.PageChunk{ID: 2, Content: "second"}, Distance: 0.3, URL: "https://b", Title: "B"},
	}
	chunkRepo.On("Search", mock.Anything, mock.Anything, 10, domain.SearchFilter{}).Return(results, nil)

	out, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{Query: "find me"})
	require.NoError(t, err)

	require.Len(t, out.Candidates, 2)
	assert.Equal(t, int64(1), out.Candidates[0].ChunkID)
	assert.Equal(t, float32(0.1), out.Candidates[0].Distance)
	assert.Equal(t, "https://a", out.Candidates[0].URL)
	assert.Equal(t, 1, encoder.calls)
}

func TestRetrieveContext_EmptyQuery(t *testing.T) {
	chunkRepo := new(MockChunkRepository)
	encoder := &stubEncoder{dim: 4}
	uc := usecase.NewRetrieveContextUsecase(chunkRepo, encoder, 10)

	_, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{Query: "   "})
	assert.Error(t, err)
	assert.Equal(t, 0, encoder.calls)
}

func TestRetrieveContext_EmptyIndexIsValid(t *testing.T) {
	chunkRepo := new(MockChunkRepository)
	encoder := &stubEncoder{dim: 4}
	uc := usecase.NewRetrieveContextUsecase(chunkRepo, encoder, 10)

	chunkRepo.On("Search", mock.Anything, mock.Anything, 10, domain.SearchFilter{}).
		Return([]domain.SearchResult{}, nil)

	out, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, out.Candidates)
}

func TestRetrieveContext_EmbeddingErrorSurfaced(t *testing.T) {
	chunkRepo := new(MockChunkRepository)
	encoder := &stubEncoder{dim: 4, err: domain.NewEmbeddingError("backend down", nil)}
	uc := usecase.NewRetrieveContextUsecase(chunkRepo, encoder, 10)

	_, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{Query: "q"})
	require.Error(t, err)
	chunkRepo.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetrieveContext_DateFilterForwarded(t *testing.T) {
	chunkRepo := new(MockChunkRepository)
	encoder := &stubEncoder{dim: 4}
	uc := usecase.NewRetrieveContextUsecase(chunkRepo, encoder, 10)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	filter := domain.SearchFilter{From: from, To: to}

	chunkRepo.On("Search", mock.Anything, mock.Anything, 5, filter).
		Return([]domain.SearchResult{}, nil)

	_, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{Query: "q", K: 5, From: from, To: to})
	require.NoError(t, err)
	chunkRepo.AssertExpectations(t)
}
