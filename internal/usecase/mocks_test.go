package usecase_test

import (
	"context"
	"time"

	"recall/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// --- Shared mocks ---

type MockPageRepository struct {
	mock.Mock
}

func (m *MockPageRepository) GetByURL(ctx context.Context, url string) (*domain.Page, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Page), args.Error(1)
}

func (m *MockPageRepository) Create(ctx context.Context, page *domain.Page) error {
	args := m.Called(ctx, page)
	return args.Error(0)
}

func (m *MockPageRepository) RecordVisit(ctx context.Context, pageID uuid.UUID, visitedAt time.Time) error {
	args := m.Called(ctx, pageID, visitedAt)
	return args.Error(0)
}

func (m *MockPageRepository) UpdateCurrentVersion(ctx context.Context, pageID uuid.UUID, versionID uuid.UUID) error {
	args := m.Called(ctx, pageID, versionID)
	return args.Error(0)
}

func (m *MockPageRepository) GetLatestVersion(ctx context.Context, pageID uuid.UUID) (*domain.PageVersion, error) {
	args := m.Called(ctx, pageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PageVersion), args.Error(1)
}

func (m *MockPageRepository) CreateVersion(ctx context.Context, version *domain.PageVersion) error {
	args := m.Called(ctx, version)
	return args.Error(0)
}

func (m *MockPageRepository) ListCurrentVersions(ctx context.Context) ([]domain.PageVersion, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PageVersion), args.Error(1)
}

type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) BulkInsertChunks(ctx context.Context, chunks []domain.PageChunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) GetChunksByVersionID(ctx context.Context, versionID uuid.UUID) ([]domain.PageChunk, error) {
	args := m.Called(ctx, versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PageChunk), args.Error(1)
}

func (m *MockChunkRepository) Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	args := m.Called(ctx, queryVector, limit, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchResult), args.Error(1)
}

func (m *MockChunkRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChunkRepository) DeleteAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockChunkRepository) SetEmbeddingDim(ctx context.Context, dim int) error {
	args := m.Called(ctx, dim)
	return args.Error(0)
}

type MockIndexMetaRepository struct {
	mock.Mock
}

func (m *MockIndexMetaRepository) Get(ctx context.Context) (*domain.IndexMeta, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexMeta), args.Error(1)
}

func (m *MockIndexMetaRepository) Put(ctx context.Context, meta *domain.IndexMeta) error {
	args := m.Called(ctx, meta)
	return args.Error(0)
}

type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// stubEncoder returns deterministic vectors without a backend.
type stubEncoder struct {
	dim     int
	version string
	err     error
	calls   int
}

func (s *stubEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, s.dim)
		vec[0] = float32(len(texts[i]))
		vecs[i] = vec
	}
	return vecs, nil
}

func (s *stubEncoder) Version() string { return s.version }
func (s *stubEncoder) Dimension() int  { return s.dim }

// stubLLMClient returns a fixed answer, optionally as a stream.
type stubLLMClient struct {
	text      string
	err       error
	streamErr error
	calls     int
}

func (s *stubLLMClient) Generate(ctx context.Context, prompt string, maxTokens int) (*domain.LLMResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.LLMResponse{Text: s.text, Done: true}, nil
}

func (s *stubLLMClient) GenerateStream(ctx context.Context, prompt string, maxTokens int) (<-chan domain.LLMStreamChunk, <-chan error, error) {
	s.calls++
	if s.err != nil {
		return nil, nil, s.err
	}

	chunks := make(chan domain.LLMStreamChunk, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		if s.streamErr != nil {
			chunks <- domain.LLMStreamChunk{Response: "partial"}
			errs <- s.streamErr
			return
		}
		for _, word := range []string{s.text[:len(s.text)/2], s.text[len(s.text)/2:]} {
			chunks <- domain.LLMStreamChunk{Response: word}
		}
		chunks <- domain.LLMStreamChunk{Done: true}
	}()

	return chunks, errs, nil
}

func (s *stubLLMClient) Version() string { return "stub-llm" }
