package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"recall/internal/domain"
	"recall/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Pinger reports whether the backing store is reachable. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	retrieveUsecase usecase.RetrieveContextUsecase
	answerUsecase   usecase.AnswerUsecase
	indexUsecase    usecase.IndexPageUsecase
	jobRepo         domain.IndexJobRepository
	db              Pinger
	logger          *slog.Logger
}

func NewHandler(
	retrieveUsecase usecase.RetrieveContextUsecase,
	answerUsecase usecase.AnswerUsecase,
	indexUsecase usecase.IndexPageUsecase,
	jobRepo domain.IndexJobRepository,
	db Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		retrieveUsecase: retrieveUsecase,
		answerUsecase:   answerUsecase,
		indexUsecase:    indexUsecase,
		jobRepo:         jobRepo,
		db:              db,
		logger:          logger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	e.GET("/readyz", h.Readyz)

	v1 := e.Group("/v1")
	v1.POST("/search", h.Search)
	v1.POST("/chat", h.Chat)
	v1.POST("/chat/stream", h.ChatStream)
	v1.GET("/index/status", h.IndexStatus)

	internal := e.Group("/internal")
	internal.POST("/pages", h.IngestPage)
}

type SearchRequest struct {
	Query string     `json:"query"`
	K     int        `json:"k,omitempty"`
	From  *time.Time `json:"from,omitempty"`
	To    *time.Time `json:"to,omitempty"`
}

type SearchResultItem struct {
	ChunkID  int64     `json:"chunk_id"`
	Content  string    `json:"content"`
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	LastSeen time.Time `json:"last_seen"`
	Distance float32   `json:"distance"`
}

type SearchResponse struct {
	Results []SearchResultItem `json:"results"`
}

// Search returns the nearest indexed chunks for a query.
// (POST /v1/search)
func (h *Handler) Search(ctx echo.Context) error {
	var req SearchRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if strings.TrimSpace(req.Query) == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	input := usecase.RetrieveContextInput{Query: req.Query, K: req.K}
	if req.From != nil {
		input.From = *req.From
	}
	if req.To != nil {
		input.To = *req.To
	}

	output, err := h.retrieveUsecase.Execute(ctx.Request().Context(), input)
	if err != nil {
		h.logger.Error("search_failed", slog.String("error", err.Error()))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	results := make([]SearchResultItem, 0, len(output.Candidates))
	for _, c := range output.Candidates {
		results = append(results, SearchResultItem{
			ChunkID:  c.ChunkID,
			Content:  c.Content,
			URL:      c.URL,
			Title:    c.Title,
			LastSeen: c.LastSeen,
			Distance: c.Distance,
		})
	}

	return ctx.JSON(http.StatusOK, SearchResponse{Results: results})
}

type ChatRequest struct {
	Query     string     `json:"query"`
	K         int        `json:"k,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	MaxTokens int        `json:"max_tokens,omitempty"`
}

type ChatResponse struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Fallback bool     `json:"fallback"`
	Cached   bool     `json:"cached"`
}

func chatInput(req ChatRequest) usecase.AnswerInput {
	input := usecase.AnswerInput{Query: req.Query, K: req.K, MaxTokens: req.MaxTokens}
	if req.From != nil {
		input.From = *req.From
	}
	if req.To != nil {
		input.To = *req.To
	}
	return input
}

// Chat answers a question grounded on the indexed browsing history.
// (POST /v1/chat)
func (h *Handler) Chat(ctx echo.Context) error {
	var req ChatRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if strings.TrimSpace(req.Query) == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	output, err := h.answerUsecase.Chat(ctx.Request().Context(), chatInput(req))
	if err != nil {
		h.logger.Error("chat_failed", slog.String("error", err.Error()))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusOK, ChatResponse{
		Answer:   output.Answer,
		Sources:  output.Sources,
		Fallback: output.Fallback,
		Cached:   output.Cached,
	})
}

// ChatStream answers a question as a server-sent event stream. Events are
// meta (sources), delta (answer fragments), then done or error.
// (POST /v1/chat/stream)
func (h *Handler) ChatStream(ctx echo.Context) error {
	var req ChatRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if strings.TrimSpace(req.Query) == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	// Check the flushing capability before committing the status line, so a
	// non-streaming writer can still get a proper error response.
	flusher, canFlush := ctx.Response().Writer.(http.Flusher)
	if !canFlush {
		return ctx.String(http.StatusInternalServerError, "streaming not supported")
	}

	ctx.Response().Header().Set("Content-Type", "text/event-stream")
	ctx.Response().Header().Set("Cache-Control", "no-cache")
	ctx.Response().Header().Set("Connection", "keep-alive")
	ctx.Response().WriteHeader(http.StatusOK)

	events := h.answerUsecase.ChatStream(ctx.Request().Context(), chatInput(req))
	for ev := range events {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			h.logger.Error("stream_event_marshal_failed", slog.String("error", err.Error()))
			continue
		}
		fmt.Fprintf(ctx.Response().Writer, "event: %s\ndata: %s\n\n", ev.Kind, data)
		flusher.Flush()
	}

	return nil
}

type IndexStatusResponse struct {
	ChunkCount      int64     `json:"chunk_count"`
	LastIndexedAt   time.Time `json:"last_indexed_at"`
	EmbedderVersion string    `json:"embedder_version"`
	ChunkerVersion  string    `json:"chunker_version"`
	EmbeddingDim    int       `json:"embedding_dim"`
}

// IndexStatus reports the index bookkeeping summary.
// (GET /v1/index/status)
func (h *Handler) IndexStatus(ctx echo.Context) error {
	status, err := h.indexUsecase.Status(ctx.Request().Context())
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusOK, IndexStatusResponse{
		ChunkCount:      status.ChunkCount,
		LastIndexedAt:   status.LastIndexedAt,
		EmbedderVersion: status.EmbedderVersion,
		ChunkerVersion:  status.ChunkerVersion,
		EmbeddingDim:    status.EmbeddingDim,
	})
}

type IngestPageRequest struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	VisitedAt *time.Time `json:"visited_at,omitempty"`
}

// IngestPage enqueues a visited page for background indexing.
// (POST /internal/pages)
func (h *Handler) IngestPage(ctx echo.Context) error {
	var req IngestPageRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if strings.TrimSpace(req.URL) == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "missing url"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "missing content"})
	}

	visitedAt := time.Now()
	if req.VisitedAt != nil {
		visitedAt = *req.VisitedAt
	}

	job := &domain.IndexJob{
		ID:        uuid.New(),
		URL:       req.URL,
		Title:     req.Title,
		Content:   req.Content,
		VisitedAt: visitedAt,
		Status:    "new",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := h.jobRepo.Enqueue(ctx.Request().Context(), job); err != nil {
		h.logger.Error("enqueue_failed",
			slog.String("url", req.URL),
			slog.String("error", err.Error()))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusAccepted, map[string]string{"job_id": job.ID.String(), "status": "queued"})
}

// Healthz reports process liveness.
// (GET /healthz)
func (h *Handler) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports whether the store is reachable.
// (GET /readyz)
func (h *Handler) Readyz(ctx echo.Context) error {
	if h.db != nil {
		if err := h.db.Ping(ctx.Request().Context()); err != nil {
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		}
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
