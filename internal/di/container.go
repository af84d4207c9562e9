package di

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"recall/internal/adapter/ollama"
	"recall/internal/adapter/repository"
	"recall/internal/domain"
	"recall/internal/infra/config"
	"recall/internal/usecase"
	"recall/internal/usecase/retrieval"
	"recall/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Repositories
	PageRepo  domain.PageRepository
	ChunkRepo domain.ChunkRepository
	MetaRepo  domain.IndexMetaRepository
	JobRepo   domain.IndexJobRepository

	// Usecases
	IndexUsecase    usecase.IndexPageUsecase
	RetrieveUsecase usecase.RetrieveContextUsecase
	AnswerUsecase   usecase.AnswerUsecase

	// Shared state
	ResponseCache *usecase.ResponseCache

	// Worker
	Worker *worker.IndexWorker
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) (*ApplicationComponents, error) {
	// Repositories
	pageRepo := repository.NewPageRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	metaRepo := repository.NewIndexMetaRepository(pool)
	jobRepo := repository.NewIndexJobRepository(pool)
	txManager := repository.NewPostgresTransactionManager(pool)

	// Domain services
	hasher := domain.NewSourceHashPolicy()
	chunker, err := domain.NewWindowChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	// External clients
	embedder := ollama.NewEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.EmbedderTimeout)
	generator := ollama.NewGenerator(cfg.OllamaURL, cfg.GeneratorModel, cfg.GeneratorTimeout)

	// Response cache, shared between the answer path (reads) and the index
	// path (invalidation on rebuild).
	responseCache := usecase.NewResponseCache(cfg.CacheSize, time.Duration(cfg.CacheTTLMinutes)*time.Minute)

	// Index usecase
	indexUsecase := usecase.NewIndexPageUsecase(
		pageRepo, chunkRepo, metaRepo, txManager,
		hasher, chunker, embedder, responseCache, log,
	)

	// Retrieve usecase
	retrieveUsecase := usecase.NewRetrieveContextUsecase(chunkRepo, embedder, cfg.SearchLimit)

	// Optional reranking stage
	var reranker domain.Reranker
	rerankCfg := retrieval.RerankConfig{
		Enabled: cfg.RerankEnabled,
		TopK:    cfg.RerankTopK,
		Timeout: time.Duration(cfg.RerankTimeout) * time.Second,
	}
	if cfg.RerankEnabled {
		reranker = ollama.NewRerankerClient(
			cfg.RerankURL,
			cfg.RerankModel,
			time.Duration(cfg.RerankTimeout)*time.Second,
			log,
		)
		log.Info("reranker_enabled",
			slog.String("url", cfg.RerankURL),
			slog.String("model", cfg.RerankModel))
	}

	buildCfg := retrieval.BuildConfig{
		MaxChunks: cfg.MaxContextChunks,
		MaxChars:  cfg.MaxContextChars,
		PerURLCap: cfg.PerURLCap,
	}

	// Answer usecase
	answerUsecase := usecase.NewAnswerUsecase(
		retrieveUsecase, reranker, rerankCfg, buildCfg,
		usecase.NewHistoryPromptBuilder(),
		generator, responseCache, cfg.AnswerMaxTokens, log,
	)

	// Worker
	indexWorker := worker.NewIndexWorker(
		jobRepo, indexUsecase,
		time.Duration(cfg.IndexIntervalSeconds)*time.Second,
		cfg.WorkerMaxAttempts,
		cfg.EmbedRateLimit,
		log,
	)

	return &ApplicationComponents{
		PageRepo:        pageRepo,
		ChunkRepo:       chunkRepo,
		MetaRepo:        metaRepo,
		JobRepo:         jobRepo,
		IndexUsecase:    indexUsecase,
		RetrieveUsecase: retrieveUsecase,
		AnswerUsecase:   answerUsecase,
		ResponseCache:   responseCache,
		Worker:          indexWorker,
	}, nil
}
