package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"recall/internal/domain"
)

// RerankConfig holds reranking stage parameters.
type RerankConfig struct {
	Enabled bool
	TopK    int
	Timeout time.Duration
}

// Rerank applies cross-encoder reranking to the candidates. The pool is
// bounded to cfg.TopK to keep cross-encoder inference within its timeout.
// On any reranker failure the candidates keep their distance order, so the
// stage is never a correctness risk.
func Rerank(
	ctx context.Context,
	query string,
	candidates []Candidate,
	reranker domain.Reranker,
	cfg RerankConfig,
	logger *slog.Logger,
) []Candidate {
	if !cfg.Enabled || reranker == nil || len(candidates) == 0 {
		return candidates
	}

	rerankStart := time.Now()

	pool := candidates
	if cfg.TopK > 0 && len(pool) > cfg.TopK {
		pool = pool[:cfg.TopK]
	}

	rerankCandidates := make([]domain.RerankCandidate, len(pool))
	for i, c := range pool {
		rerankCandidates[i] = domain.RerankCandidate{
			ChunkID: c.ChunkID,
			Content: c.Content,
			Score:   c.Distance,
		}
	}

	rerankCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		rerankCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	reranked, err := reranker.Rerank(rerankCtx, query, rerankCandidates)
	rerankDuration := time.Since(rerankStart)

	if err != nil {
		logger.Warn("reranking_failed_using_distance_order",
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", rerankDuration.Milliseconds()))
		return candidates
	}

	logger.Info("reranking_completed",
		slog.Int("candidate_count", len(rerankCandidates)),
		slog.Int("reranked_count", len(reranked)),
		slog.String("model", reranker.ModelName()),
		slog.Int64("duration_ms", rerankDuration.Milliseconds()))

	scores := make(map[int64]float32, len(reranked))
	for _, r := range reranked {
		scores[r.ChunkID] = r.Score
	}

	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		if score, ok := scores[out[i].ChunkID]; ok {
			out[i].Score = score
			out[i].Reranked = true
		}
	}

	// Reranked candidates sort by descending relevance ahead of the rest;
	// unscored candidates keep their distance order behind them.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Reranked != out[j].Reranked {
			return out[i].Reranked
		}
		if out[i].Reranked {
			if out[i].Score != out[j].Score {
				return out[i].Score > out[j].Score
			}
			return out[i].ChunkID < out[j].ChunkID
		}
		return false
	})

	return out
}
