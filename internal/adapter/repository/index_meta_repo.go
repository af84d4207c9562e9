package repository

import (
	"context"
	"errors"
	"fmt"

	"recall/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type indexMetaRepository struct {
	pool *pgxpool.Pool
}

// NewIndexMetaRepository creates a new IndexMetaRepository.
func NewIndexMetaRepository(pool *pgxpool.Pool) domain.IndexMetaRepository {
	return &indexMetaRepository{pool: pool}
}

func (r *indexMetaRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := extractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

func (r *indexMetaRepository) Get(ctx context.Context) (*domain.IndexMeta, error) {
	query := `
		SELECT embedding_dim, embedder_version, chunker_version, chunk_count, last_indexed_at
		FROM index_meta
		WHERE id = TRUE
	`
	row := r.getExecutor(ctx).QueryRow(ctx, query)

	var meta domain.IndexMeta
	err := row.Scan(&meta.EmbeddingDim, &meta.EmbedderVersion, &meta.ChunkerVersion, &meta.ChunkCount, &meta.LastIndexedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan index meta: %w", err)
	}
	return &meta, nil
}

func (r *indexMetaRepository) Put(ctx context.Context, meta *domain.IndexMeta) error {
	query := `
		INSERT INTO index_meta (id, embedding_dim, embedder_version, chunker_version, chunk_count, last_indexed_at)
		VALUES (TRUE, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			embedding_dim    = EXCLUDED.embedding_dim,
			embedder_version = EXCLUDED.embedder_version,
			chunker_version  = EXCLUDED.chunker_version,
			chunk_count      = EXCLUDED.chunk_count,
			last_indexed_at  = EXCLUDED.last_indexed_at
	`
	_, err := r.getExecutor(ctx).Exec(ctx, query,
		meta.EmbeddingDim, meta.EmbedderVersion, meta.ChunkerVersion, meta.ChunkCount, meta.LastIndexedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert index meta: %w", err)
	}
	return nil
}
