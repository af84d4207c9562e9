package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"recall/internal/domain"
	"recall/internal/infra/httpclient"
)

// Embedder turns text into fixed-dimension vectors via Ollama's embed
// endpoint. Every returned vector is checked against the configured
// dimension; a mismatch means the wrong model is loaded and would silently
// poison the index if allowed through.
type Embedder struct {
	BaseURL string
	Model   string
	Dim     int
	Client  *http.Client
}

// NewEmbedder constructs an Embedder for the given endpoint, model and
// expected vector dimension.
func NewEmbedder(baseURL, model string, dim, timeoutSeconds int) *Embedder {
	timeout := 30 * time.Second
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &Embedder{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Dim:     dim,
		Client:  httpclient.NewPooledClient(timeout),
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *Embedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, domain.NewEmbeddingError("no texts to encode", nil)
	}

	slog.Info("embed_started",
		slog.Int("text_count", len(texts)),
		slog.String("model", e.Model),
	)
	start := time.Now()

	reqBody := embedRequest{
		Model: e.Model,
		Input: texts,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embed", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		slog.Error("embed_failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil, domain.NewEmbeddingError("embedding backend unavailable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Error("embed_bad_status",
			slog.Int("status", resp.StatusCode),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil, domain.NewEmbeddingError(fmt.Sprintf("embedding backend returned status %d", resp.StatusCode), nil)
	}

	var respBody embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, domain.NewEmbeddingError("failed to decode embedding response", err)
	}

	if len(respBody.Embeddings) != len(texts) {
		return nil, domain.NewEmbeddingError(
			fmt.Sprintf("expected %d vectors, got %d", len(texts), len(respBody.Embeddings)), nil)
	}
	for i, vec := range respBody.Embeddings {
		if len(vec) != e.Dim {
			return nil, domain.NewEmbeddingError(
				fmt.Sprintf("vector %d has dimension %d, expected %d", i, len(vec), e.Dim), nil)
		}
	}

	slog.Info("embed_completed",
		slog.Int("embedding_count", len(respBody.Embeddings)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return respBody.Embeddings, nil
}

// Version returns the wrapped model name.
func (e *Embedder) Version() string {
	return e.Model
}

// Dimension returns the expected vector width.
func (e *Embedder) Dimension() int {
	return e.Dim
}

var _ domain.VectorEncoder = (*Embedder)(nil)
