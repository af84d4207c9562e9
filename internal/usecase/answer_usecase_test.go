package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"recall/internal/domain"
	"recall/internal/usecase"
	"recall/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Execute(ctx context.Context, input usecase.RetrieveContextInput) (*usecase.RetrieveContextOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.RetrieveContextOutput), args.Error(1)
}

func defaultBuildCfg() retrieval.BuildConfig {
	return retrieval.BuildConfig{MaxChunks: 5, MaxChars: 6000, PerURLCap: 2}
}

func newAnswerUsecase(retriever usecase.RetrieveContextUsecase, llm *stubLLMClient, cache *usecase.ResponseCache) usecase.AnswerUsecase {
	return usecase.NewAnswerUsecase(
		retriever,
		nil,
		retrieval.RerankConfig{Enabled: false},
		defaultBuildCfg(),
		usecase.NewHistoryPromptBuilder(),
		llm,
		cache,
		768,
		testLogger(),
	)
}

func someCandidates() []retrieval.Candidate {
	return []retrieval.Candidate{
		{ChunkID: 1, Content: "Go generics were added in 1.18.", URL: "https://go.dev/blog", Title: "Go Blog", Distance: 0.1},
		{ChunkID: 2, Content: "Type parameters enable generic code.", URL: "https://go.dev/doc", Title: "Go Docs", Distance: 0.2},
	}
}

func TestChat_Success(t *testing.T) {
	retriever := new(MockRetriever)
	llm := &stubLLMClient{text: "Generics arrived in Go 1.18."}
	cache := usecase.NewResponseCache(16, time.Minute)
	uc := newAnswerUsecase(retriever, llm, cache)

	retriever.On("Execute", mock.Anything, mock.Anything).
		Return(&usecase.RetrieveContextOutput{Candidates: someCandidates()}, nil)

	out, err := uc.Chat(context.Background(), usecase.AnswerInput{Query: "when did go get generics"})
	require.NoError(t, err)

	assert.Equal(t, "Generics arrived in Go 1.18.", out.Answer)
	assert.Equal(t, []string{"https://go.dev/blog", "https://go.dev/doc"}, out.Sources)
	assert.False(t, out.Fallback)
	assert.False(t, out.Cached)
}

func TestChat_EmptyContext_FallbackNotCached(t *testing.T) {
	retriever := new(MockRetriever)
	llm := &stubLLMClient{text: "should never be called"}
	cache := usecase.NewResponseCache(16, time.Minute)
	uc := newAnswerUsecase(retriever, llm, cache)

	retriever.On("Execute", mock.Anything, mock.Anything).
		Return(&usecase.RetrieveContextOutput{Candidates: nil}, nil)

	out, err := uc.Chat(context.Background(), usecase.AnswerInput{Query: "anything"})
	require.NoError(t, err)

	assert.True(t, out.Fallback)
	assert.NotEmpty(t, out.Answer)
	assert.Equal(t, 0, llm.calls)
	assert.Equal(t, 0, cache.Len())
}

func TestChat_SecondCallServedFromCache(t *testing.T) {
	retriever := new(MockRetriever)
	llm := &stubLLMClient{text: "answer"}
	cache := usecase.NewResponseCache(16, time.Minute)
	uc := newAnswerUsecase(retriever, llm, cache)

	retriever.On("Execute", mock.Anything, mock.Anything).
		Return(&usecase.RetrieveContextOutput{Candidates: someCandidates()}, nil)

	first, err := uc.Chat(context.Background(), usecase.AnswerInput{Query: "q"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := uc.Chat(context.Background(), usecase.AnswerInput{Query: "q"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, llm.calls)
}

func TestChat_GenerationFailure_NotCached(t *testing.T) {
	retriever := new(MockRetriever)
	llm := &stubLLMClient{err: errors.New("model not loaded")}
	cache := usecase.NewResponseCache(16, time.Minute)
	uc := newAnswerUsecase(retriever, llm, cache)

	retriever.On("Execute", mock.Anything, mock.Anything).
		Return(&usecase.RetrieveContextOutput{Candidates: someCandidates()}, nil)

	_, err := uc.Chat(context.Background(), usecase.AnswerInput{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestChat_ConcurrentIdenticalRequests_SingleGeneration(t *testing.T) {
	retriever := new(MockRetriever)
	cache := usecase.NewResponseCache(16, time.Minute)

	var mu sync.Mutex
	generations := 0
	slowLLM := &slowStubLLM{
		delay: 50 * time.Millisecond,
		onGenerate: func() {
			mu.Lock()
			generations++
			mu.Unlock()
		},
	}

	uc := usecase.NewAnswerUsecase(
		retriever, nil, retrieval.RerankConfig{}, defaultBuildCfg(),
		usecase.NewHistoryPromptBuilder(), slowLLM, cache, 768, testLogger(),
	)

	retriever.On("Execute", mock.Anything, mock.Anything).
		Return(&usecase.RetrieveContextOutput{Candidates: someCandidates()}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := uc.Chat(context.Background(), usecase.AnswerInput{Query: "same question"})
			assert.NoError(t, err)
			assert.Equal(t, "slow answer", out.Answer)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, generations)
}

func TestChatStream_DeltasAndDone(t *testing.T) {
	retriever := new(MockRetriever)
	llm := &stubLLMClient{text: "streamed answer"}
	cache := usecase.NewResponseCache(16, time.Minute)
	uc := newAnswerUsecase(retriever, llm, cache)

	retriever.On("Execute", mock.Anything, mock.Anything).
		Return(&usecase.RetrieveContextOutput{Candidates: someCandidates()}, nil)

	events := collectEvents(t, uc.ChatStream(context.Background(), usecase.AnswerInput{Query: "q"}))

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, usecase.StreamEventKindMeta, events[0].Kind)
	assert.Equal(t, usecase.StreamEventKindDone, events[len(events)-1].Kind)

	var text string
	for _, e := range events {
		if e.Kind == usecase.StreamEventKindDelta {
			text += e.Payload.(string)
		}
	}
	assert.Equal(t, "streamed answer", text)

	// Finished stream populates the cache for the non-streaming path.
	assert.Equal(t, 1, cache.Len())
}

func TestChatStream_ErrorMidStream_NotCached(t *testing.T) {
	retriever := new(MockRetriever)
	llm := &stubLLMClient{text: "will fail", streamErr: errors.New("connection reset")}
	cache := usecase.NewResponseCache(16, time.Minute)
	uc := newAnswerUsecase(retriever, llm, cache)

	retriever.On("Execute", mock.Anything, mock.Anything).
		Return(&usecase.RetrieveContextOutput{Candidates: someCandidates()}, nil)

	events := collectEvents(t, uc.ChatStream(context.Background(), usecase.AnswerInput{Query: "q"}))

	last := events[len(events)-1]
	assert.Equal(t, usecase.StreamEventKindError, last.Kind)
	assert.Equal(t, 0, cache.Len())
}

func TestChatStream_EmptyContext_Fallback(t *testing.T) {
	retriever := new(MockRetriever)
	llm := &stubLLMClient{text: "unused"}
	cache := usecase.NewResponseCache(16, time.Minute)
	uc := newAnswerUsecase(retriever, llm, cache)

	retriever.On("Execute", mock.Anything, mock.Anything).
		Return(&usecase.RetrieveContextOutput{Candidates: nil}, nil)

	events := collectEvents(t, uc.ChatStream(context.Background(), usecase.AnswerInput{Query: "q"}))

	last := events[len(events)-1]
	require.Equal(t, usecase.StreamEventKindDone, last.Kind)
	out := last.Payload.(*usecase.AnswerOutput)
	assert.True(t, out.Fallback)
	assert.Equal(t, 0, llm.calls)
	assert.Equal(t, 0, cache.Len())
}

func collectEvents(t *testing.T, ch <-chan usecase.StreamEvent) []usecase.StreamEvent {
	t.Helper()
	var events []usecase.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatal("stream did not finish in time")
		}
	}
}

// slowStubLLM simulates a slow generation for the single-flight test.
type slowStubLLM struct {
	delay      time.Duration
	onGenerate func()
}

func (s *slowStubLLM) Generate(ctx context.Context, prompt string, maxTokens int) (*domain.LLMResponse, error) {
	s.onGenerate()
	time.Sleep(s.delay)
	return &domain.LLMResponse{Text: "slow answer", Done: true}, nil
}

func (s *slowStubLLM) GenerateStream(ctx context.Context, prompt string, maxTokens int) (<-chan domain.LLMStreamChunk, <-chan error, error) {
	return nil, nil, errors.New("streaming not supported")
}

func (s *slowStubLLM) Version() string { return "slow-stub" }
