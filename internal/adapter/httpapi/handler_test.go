package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"recall/internal/adapter/httpapi"
	"recall/internal/domain"
	"recall/internal/usecase"
	"recall/internal/usecase/retrieval"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetrieveUsecase struct {
	output *usecase.RetrieveContextOutput
	err    error
}

func (s *stubRetrieveUsecase) Execute(ctx context.Context, input usecase.RetrieveContextInput) (*usecase.RetrieveContextOutput, error) {
	return s.output, s.err
}

type stubAnswerUsecase struct {
	output *usecase.AnswerOutput
	err    error
	events []usecase.StreamEvent
}

func (s *stubAnswerUsecase) Chat(ctx context.Context, input usecase.AnswerInput) (*usecase.AnswerOutput, error) {
	return s.output, s.err
}

func (s *stubAnswerUsecase) ChatStream(ctx context.Context, input usecase.AnswerInput) <-chan usecase.StreamEvent {
	events := make(chan usecase.StreamEvent, len(s.events))
	for _, ev := range s.events {
		events <- ev
	}
	close(events)
	return events
}

type stubIndexUsecase struct {
	status *usecase.IndexStatus
	err    error
}

func (s *stubIndexUsecase) AddPage(ctx context.Context, url, title, text string, visitedAt time.Time) error {
	return nil
}
func (s *stubIndexUsecase) RebuildAll(ctx context.Context) error    { return nil }
func (s *stubIndexUsecase) VerifyIndex(ctx context.Context) error   { return nil }
func (s *stubIndexUsecase) Size(ctx context.Context) (int64, error) { return 0, nil }
func (s *stubIndexUsecase) Status(ctx context.Context) (*usecase.IndexStatus, error) {
	return s.status, s.err
}

type stubJobRepo struct {
	enqueued []*domain.IndexJob
	err      error
}

func (s *stubJobRepo) Enqueue(ctx context.Context, job *domain.IndexJob) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, job)
	return nil
}

func (s *stubJobRepo) AcquireNext(ctx context.Context) (*domain.IndexJob, error) { return nil, nil }
func (s *stubJobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error {
	return nil
}
func (s *stubJobRepo) RequeueFailed(ctx context.Context, maxAttempts int) (int64, error) {
	return 0, nil
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(ctx context.Context) error { return s.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newContext(e *echo.Echo, method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Search(t *testing.T) {
	e := echo.New()
	lastSeen := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	retrieve := &stubRetrieveUsecase{
		output: &usecase.RetrieveContextOutput{
			Candidates: []retrieval.Candidate{
				{ChunkID: 3, Content: "nearest chunk", URL: "https://go.dev/blog", Title: "Go Blog", LastSeen: lastSeen, Distance: 0.12},
				{ChunkID: 9, Content: "second chunk", URL: "https://go.dev/doc", Title: "Go Docs", LastSeen: lastSeen, Distance: 0.4},
			},
		},
	}
	handler := httpapi.NewHandler(retrieve, nil, nil, nil, nil, testLogger())

	c, rec := newContext(e, http.MethodPost, "/v1/search", `{"query":"generics","k":2}`)
	require.NoError(t, handler.Search(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(3), resp.Results[0].ChunkID)
	assert.Equal(t, "https://go.dev/blog", resp.Results[0].URL)
	assert.Equal(t, float32(0.12), resp.Results[0].Distance)
}

func TestHandler_Search_EmptyQuery(t *testing.T) {
	e := echo.New()
	handler := httpapi.NewHandler(&stubRetrieveUsecase{}, nil, nil, nil, nil, testLogger())

	c, rec := newContext(e, http.MethodPost, "/v1/search", `{"query":"  "}`)
	require.NoError(t, handler.Search(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Search_EmptyIndex(t *testing.T) {
	e := echo.New()
	retrieve := &stubRetrieveUsecase{output: &usecase.RetrieveContextOutput{}}
	handler := httpapi.NewHandler(retrieve, nil, nil, nil, nil, testLogger())

	c, rec := newContext(e, http.MethodPost, "/v1/search", `{"query":"anything"}`)
	require.NoError(t, handler.Search(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Results)
}

func TestHandler_Chat(t *testing.T) {
	e := echo.New()
	answer := &stubAnswerUsecase{
		output: &usecase.AnswerOutput{
			Answer:  "You read about generics on the Go blog.",
			Sources: []string{"https://go.dev/blog"},
		},
	}
	handler := httpapi.NewHandler(nil, answer, nil, nil, nil, testLogger())

	c, rec := newContext(e, http.MethodPost, "/v1/chat", `{"query":"what did I read about generics"}`)
	require.NoError(t, handler.Chat(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "You read about generics on the Go blog.", resp.Answer)
	assert.Equal(t, []string{"https://go.dev/blog"}, resp.Sources)
	assert.False(t, resp.Fallback)
}

func TestHandler_Chat_Fallback(t *testing.T) {
	e := echo.New()
	answer := &stubAnswerUsecase{
		output: &usecase.AnswerOutput{
			Answer:   "I couldn't find anything relevant in your browsing history for that question.",
			Sources:  []string{},
			Fallback: true,
		},
	}
	handler := httpapi.NewHandler(nil, answer, nil, nil, nil, testLogger())

	c, rec := newContext(e, http.MethodPost, "/v1/chat", `{"query":"quantum basket weaving"}`)
	require.NoError(t, handler.Chat(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Fallback)
	assert.Empty(t, resp.Sources)
}

func TestHandler_Chat_UsecaseError(t *testing.T) {
	e := echo.New()
	answer := &stubAnswerUsecase{err: errors.New("generation failed")}
	handler := httpapi.NewHandler(nil, answer, nil, nil, nil, testLogger())

	c, rec := newContext(e, http.MethodPost, "/v1/chat", `{"query":"q"}`)
	require.NoError(t, handler.Chat(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_ChatStream(t *testing.T) {
	e := echo.New()
	answer := &stubAnswerUsecase{
		events: []usecase.StreamEvent{
			{Kind: usecase.StreamEventKindMeta, Payload: usecase.StreamMeta{Sources: []string{"https://go.dev/blog"}}},
			{Kind: usecase.StreamEventKindDelta, Payload: "streamed "},
			{Kind: usecase.StreamEventKindDelta, Payload: "answer"},
			{Kind: usecase.StreamEventKindDone, Payload: &usecase.AnswerOutput{Answer: "streamed answer", Sources: []string{"https://go.dev/blog"}}},
		},
	}
	handler := httpapi.NewHandler(nil, answer, nil, nil, nil, testLogger())

	c, rec := newContext(e, http.MethodPost, "/v1/chat/stream", `{"query":"streaming"}`)
	require.NoError(t, handler.ChatStream(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: meta")
	assert.Contains(t, body, "event: delta")
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, `"streamed "`)
	assert.Contains(t, body, "https://go.dev/blog")
}

// noFlushWriter hides the recorder's http.Flusher so the response writer
// looks like one that cannot stream.
type noFlushWriter struct {
	http.ResponseWriter
}

func TestHandler_ChatStream_WriterCannotFlush(t *testing.T) {
	e := echo.New()
	answer := &stubAnswerUsecase{
		events: []usecase.StreamEvent{
			{Kind: usecase.StreamEventKindDelta, Payload: "never sent"},
		},
	}
	handler := httpapi.NewHandler(nil, answer, nil, nil, nil, testLogger())

	c, rec := newContext(e, http.MethodPost, "/v1/chat/stream", `{"query":"streaming"}`)
	c.Response().Writer = &noFlushWriter{ResponseWriter: c.Response().Writer}

	require.NoError(t, handler.ChatStream(c))

	// The capability check runs before any header is committed, so the
	// client sees a real error status instead of a 200 with no events.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.NotContains(t, rec.Body.String(), "never sent")
}

func TestHandler_IndexStatus(t *testing.T) {
	e := echo.New()
	indexedAt := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	index := &stubIndexUsecase{
		status: &usecase.IndexStatus{
			ChunkCount:      42,
			LastIndexedAt:   indexedAt,
			EmbedderVersion: "all-minilm",
			ChunkerVersion:  "window-500-50",
			EmbeddingDim:    384,
		},
	}
	handler := httpapi.NewHandler(nil, nil, index, nil, nil, testLogger())

	c, rec := newContext(e, http.MethodGet, "/v1/index/status", "")
	require.NoError(t, handler.IndexStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.IndexStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.ChunkCount)
	assert.Equal(t, "all-minilm", resp.EmbedderVersion)
	assert.Equal(t, 384, resp.EmbeddingDim)
}

func TestHandler_IngestPage(t *testing.T) {
	e := echo.New()
	repo := &stubJobRepo{}
	handler := httpapi.NewHandler(nil, nil, nil, repo, nil, testLogger())

	body := `{"url":"https://go.dev/blog/generics","title":"Generics","content":"Type parameters arrived in Go 1.18."}`
	c, rec := newContext(e, http.MethodPost, "/internal/pages", body)
	require.NoError(t, handler.IngestPage(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, repo.enqueued, 1)
	job := repo.enqueued[0]
	assert.Equal(t, "https://go.dev/blog/generics", job.URL)
	assert.Equal(t, "new", job.Status)
	assert.False(t, job.VisitedAt.IsZero())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
	assert.NotEmpty(t, resp["job_id"])
}

func TestHandler_IngestPage_MissingFields(t *testing.T) {
	e := echo.New()
	repo := &stubJobRepo{}
	handler := httpapi.NewHandler(nil, nil, nil, repo, nil, testLogger())

	t.Run("missing url", func(t *testing.T) {
		c, rec := newContext(e, http.MethodPost, "/internal/pages", `{"content":"body"}`)
		require.NoError(t, handler.IngestPage(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing content", func(t *testing.T) {
		c, rec := newContext(e, http.MethodPost, "/internal/pages", `{"url":"https://a"}`)
		require.NoError(t, handler.IngestPage(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Empty(t, repo.enqueued)
}

func TestHandler_Readyz(t *testing.T) {
	e := echo.New()

	t.Run("store reachable", func(t *testing.T) {
		handler := httpapi.NewHandler(nil, nil, nil, nil, &stubPinger{}, testLogger())
		c, rec := newContext(e, http.MethodGet, "/readyz", "")
		require.NoError(t, handler.Readyz(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("store down", func(t *testing.T) {
		handler := httpapi.NewHandler(nil, nil, nil, nil, &stubPinger{err: errors.New("connection refused")}, testLogger())
		c, rec := newContext(e, http.MethodGet, "/readyz", "")
		require.NoError(t, handler.Readyz(c))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
