package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"recall/internal/domain"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds the parallel embedding batches during a rebuild so
// the embedding backend is not flooded.
const embedConcurrency = 4

// IndexStatus summarizes the index bookkeeping for operators.
type IndexStatus struct {
	ChunkCount      int64
	LastIndexedAt   time.Time
	EmbedderVersion string
	ChunkerVersion  string
	EmbeddingDim    int
}

// IndexPageUsecase maintains the page index. All writes go through the single
// background worker, so methods here never race each other.
type IndexPageUsecase interface {
	// AddPage indexes one visited page. It is idempotent: re-adding
	// unchanged content only bumps the visit bookkeeping.
	AddPage(ctx context.Context, url, title, text string, visitedAt time.Time) error

	// RebuildAll re-derives every chunk and vector from the stored page
	// contents. The swap is atomic: readers see the old index until commit.
	RebuildAll(ctx context.Context) error

	// VerifyIndex cross-checks the bookkeeping row against the stored
	// vectors and the configured pipeline versions.
	VerifyIndex(ctx context.Context) error

	// Size returns the number of indexed chunks.
	Size(ctx context.Context) (int64, error)

	// Status returns the bookkeeping summary.
	Status(ctx context.Context) (*IndexStatus, error)
}

// CacheInvalidator is notified when the index content changes wholesale and
// previously cached answers may no longer reflect it.
type CacheInvalidator interface {
	Invalidate()
}

type indexPageUsecase struct {
	pageRepo  domain.PageRepository
	chunkRepo domain.ChunkRepository
	metaRepo  domain.IndexMetaRepository
	txManager domain.TransactionManager
	hasher    domain.SourceHashPolicy
	chunker   domain.Chunker
	encoder   domain.VectorEncoder
	cache     CacheInvalidator
	logger    *slog.Logger
}

// NewIndexPageUsecase creates a new IndexPageUsecase. The cache may be nil
// when no response cache is wired (recallctl).
func NewIndexPageUsecase(
	pageRepo domain.PageRepository,
	chunkRepo domain.ChunkRepository,
	metaRepo domain.IndexMetaRepository,
	txManager domain.TransactionManager,
	hasher domain.SourceHashPolicy,
	chunker domain.Chunker,
	encoder domain.VectorEncoder,
	cache CacheInvalidator,
	logger *slog.Logger,
) IndexPageUsecase {
	return &indexPageUsecase{
		pageRepo:  pageRepo,
		chunkRepo: chunkRepo,
		metaRepo:  metaRepo,
		txManager: txManager,
		hasher:    hasher,
		chunker:   chunker,
		encoder:   encoder,
		cache:     cache,
		logger:    logger,
	}
}

func (u *indexPageUsecase) AddPage(ctx context.Context, url, title, text string, visitedAt time.Time) error {
	if url == "" {
		return fmt.Errorf("url is empty")
	}
	if visitedAt.IsZero() {
		visitedAt = time.Now()
	}

	sourceHash := u.hasher.Compute(title, text)

	page, err := u.pageRepo.GetByURL(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to get page: %w", err)
	}

	var latestVer *domain.PageVersion
	if page != nil {
		latestVer, err = u.pageRepo.GetLatestVersion(ctx, page.ID)
		if err != nil {
			return fmt.Errorf("failed to get latest version: %w", err)
		}
	}

	// Unchanged content: record the visit, keep the index as is.
	if latestVer != nil && latestVer.SourceHash == sourceHash {
		u.logger.Debug("page_unchanged", slog.String("url", url))
		return u.txManager.RunInTx(ctx, func(ctx context.Context) error {
			return u.pageRepo.RecordVisit(ctx, page.ID, visitedAt)
		})
	}

	chunks, err := u.chunker.Chunk(text)
	if err != nil {
		return fmt.Errorf("failed to chunk page: %w", err)
	}

	// A page with no extractable text is a valid no-op, not a failure.
	if len(chunks) == 0 {
		u.logger.Info("page_empty_skipped", slog.String("url", url))
		if page == nil {
			return nil
		}
		return u.txManager.RunInTx(ctx, func(ctx context.Context) error {
			return u.pageRepo.RecordVisit(ctx, page.ID, visitedAt)
		})
	}

	// Embed outside the transaction: the backend call is the slow part and
	// must not hold row locks.
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	embeddings, err := u.encoder.Encode(ctx, contents)
	if err != nil {
		return fmt.Errorf("failed to encode chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return domain.NewEmbeddingError(
			fmt.Sprintf("expected %d vectors, got %d", len(chunks), len(embeddings)), nil)
	}

	now := time.Now()
	newVersionID := uuid.New()

	pageChunks := make([]domain.PageChunk, len(chunks))
	for i, c := range chunks {
		pageChunks[i] = domain.PageChunk{
			VersionID: newVersionID,
			Position:  c.Position,
			Content:   c.Content,
			Embedding: pgvector.NewVector(embeddings[i]),
			CreatedAt: now,
		}
	}

	return u.txManager.RunInTx(ctx, func(ctx context.Context) error {
		if page == nil {
			page = &domain.Page{
				ID:         uuid.New(),
				URL:        url,
				Title:      title,
				FirstSeen:  visitedAt,
				LastSeen:   visitedAt,
				VisitCount: 1,
			}
			if err := u.pageRepo.Create(ctx, page); err != nil {
				return fmt.Errorf("failed to create page: %w", err)
			}
		} else {
			if err := u.pageRepo.RecordVisit(ctx, page.ID, visitedAt); err != nil {
				return fmt.Errorf("failed to record visit: %w", err)
			}
		}

		newVer := &domain.PageVersion{
			ID:              newVersionID,
			PageID:          page.ID,
			VersionNumber:   1,
			Title:           title,
			SourceHash:      sourceHash,
			ChunkerVersion:  string(u.chunker.Version()),
			EmbedderVersion: u.encoder.Version(),
			Content:         text,
			CreatedAt:       now,
		}
		if latestVer != nil {
			newVer.VersionNumber = latestVer.VersionNumber + 1
		}
		if err := u.pageRepo.CreateVersion(ctx, newVer); err != nil {
			return fmt.Errorf("failed to create version: %w", err)
		}

		if err := u.chunkRepo.BulkInsertChunks(ctx, pageChunks); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}

		if err := u.pageRepo.UpdateCurrentVersion(ctx, page.ID, newVersionID); err != nil {
			return fmt.Errorf("failed to update current version: %w", err)
		}

		return u.refreshMeta(ctx, now)
	})
}

// RebuildAll re-chunks and re-embeds the whole corpus. Embedding runs in
// parallel before the transaction opens; until commit every reader keeps
// seeing the old index.
func (u *indexPageUsecase) RebuildAll(ctx context.Context) error {
	start := time.Now()

	versions, err := u.pageRepo.ListCurrentVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list current versions: %w", err)
	}

	u.logger.Info("rebuild_started", slog.Int("page_count", len(versions)))

	type rebuiltPage struct {
		old    domain.PageVersion
		chunks []domain.Chunk
		vecs   [][]float32
	}

	rebuilt := make([]rebuiltPage, len(versions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, ver := range versions {
		g.Go(func() error {
			chunks, err := u.chunker.Chunk(ver.Content)
			if err != nil {
				return fmt.Errorf("failed to chunk %s: %w", ver.ID, err)
			}
			if len(chunks) == 0 {
				rebuilt[i] = rebuiltPage{old: ver}
				return nil
			}

			contents := make([]string, len(chunks))
			for j, c := range chunks {
				contents[j] = c.Content
			}
			vecs, err := u.encoder.Encode(gctx, contents)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", ver.ID, err)
			}
			if len(vecs) != len(chunks) {
				return domain.NewEmbeddingError(
					fmt.Sprintf("expected %d vectors, got %d", len(chunks), len(vecs)), nil)
			}

			rebuilt[i] = rebuiltPage{old: ver, chunks: chunks, vecs: vecs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	now := time.Now()

	err = u.txManager.RunInTx(ctx, func(ctx context.Context) error {
		meta, err := u.metaRepo.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to get index meta: %w", err)
		}

		if err := u.chunkRepo.DeleteAll(ctx); err != nil {
			return fmt.Errorf("failed to clear chunks: %w", err)
		}

		// The vector column is typed with its width. When the embedder
		// dimension changed, retype the now-empty column before inserting
		// vectors of the new width.
		if meta != nil && meta.EmbeddingDim != u.encoder.Dimension() {
			u.logger.Info("embedding_dim_changed",
				slog.Int("stored", meta.EmbeddingDim),
				slog.Int("configured", u.encoder.Dimension()))
			if err := u.chunkRepo.SetEmbeddingDim(ctx, u.encoder.Dimension()); err != nil {
				return fmt.Errorf("failed to change embedding dimension: %w", err)
			}
		}

		for _, rp := range rebuilt {
			newVersionID := uuid.New()
			newVer := &domain.PageVersion{
				ID:              newVersionID,
				PageID:          rp.old.PageID,
				VersionNumber:   rp.old.VersionNumber + 1,
				Title:           rp.old.Title,
				SourceHash:      u.hasher.Compute(rp.old.Title, rp.old.Content),
				ChunkerVersion:  string(u.chunker.Version()),
				EmbedderVersion: u.encoder.Version(),
				Content:         rp.old.Content,
				CreatedAt:       now,
			}
			if err := u.pageRepo.CreateVersion(ctx, newVer); err != nil {
				return fmt.Errorf("failed to create rebuilt version: %w", err)
			}

			pageChunks := make([]domain.PageChunk, len(rp.chunks))
			for j, c := range rp.chunks {
				pageChunks[j] = domain.PageChunk{
					VersionID: newVersionID,
					Position:  c.Position,
					Content:   c.Content,
					Embedding: pgvector.NewVector(rp.vecs[j]),
					CreatedAt: now,
				}
			}
			if err := u.chunkRepo.BulkInsertChunks(ctx, pageChunks); err != nil {
				return fmt.Errorf("failed to insert rebuilt chunks: %w", err)
			}

			if err := u.pageRepo.UpdateCurrentVersion(ctx, rp.old.PageID, newVersionID); err != nil {
				return fmt.Errorf("failed to flip current version: %w", err)
			}
		}

		return u.refreshMeta(ctx, now)
	})
	if err != nil {
		return err
	}

	// Cached answers were generated against the old index.
	if u.cache != nil {
		u.cache.Invalidate()
	}

	u.logger.Info("rebuild_completed",
		slog.Int("page_count", len(versions)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (u *indexPageUsecase) VerifyIndex(ctx context.Context) error {
	meta, err := u.metaRepo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get index meta: %w", err)
	}

	count, err := u.chunkRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}

	if meta == nil {
		if count != 0 {
			return domain.NewIndexCorruptionError(
				fmt.Sprintf("no metadata but %d chunks stored", count))
		}
		return nil
	}

	if meta.EmbeddingDim != u.encoder.Dimension() {
		return domain.NewIndexCorruptionError(
			fmt.Sprintf("stored dimension %d, configured %d", meta.EmbeddingDim, u.encoder.Dimension()))
	}
	if meta.EmbedderVersion != u.encoder.Version() {
		return domain.NewIndexCorruptionError(
			fmt.Sprintf("stored embedder %q, configured %q", meta.EmbedderVersion, u.encoder.Version()))
	}
	if meta.ChunkerVersion != string(u.chunker.Version()) {
		return domain.NewIndexCorruptionError(
			fmt.Sprintf("stored chunker %q, configured %q", meta.ChunkerVersion, u.chunker.Version()))
	}
	if meta.ChunkCount != count {
		return domain.NewIndexCorruptionError(
			fmt.Sprintf("metadata records %d chunks, store holds %d", meta.ChunkCount, count))
	}

	return nil
}

func (u *indexPageUsecase) Size(ctx context.Context) (int64, error) {
	return u.chunkRepo.Count(ctx)
}

func (u *indexPageUsecase) Status(ctx context.Context) (*IndexStatus, error) {
	meta, err := u.metaRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get index meta: %w", err)
	}
	if meta == nil {
		return &IndexStatus{}, nil
	}
	return &IndexStatus{
		ChunkCount:      meta.ChunkCount,
		LastIndexedAt:   meta.LastIndexedAt,
		EmbedderVersion: meta.EmbedderVersion,
		ChunkerVersion:  meta.ChunkerVersion,
		EmbeddingDim:    meta.EmbeddingDim,
	}, nil
}

// refreshMeta rewrites the bookkeeping row from the live chunk count. Must
// run inside the same transaction as the index mutation it records.
func (u *indexPageUsecase) refreshMeta(ctx context.Context, at time.Time) error {
	count, err := u.chunkRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}
	meta := &domain.IndexMeta{
		EmbeddingDim:    u.encoder.Dimension(),
		EmbedderVersion: u.encoder.Version(),
		ChunkerVersion:  string(u.chunker.Version()),
		ChunkCount:      count,
		LastIndexedAt:   at,
	}
	if err := u.metaRepo.Put(ctx, meta); err != nil {
		return fmt.Errorf("failed to update index meta: %w", err)
	}
	return nil
}
