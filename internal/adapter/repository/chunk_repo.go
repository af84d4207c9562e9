package repository

import (
	"context"
	"fmt"

	"recall/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type chunkRepository struct {
	pool *pgxpool.Pool
}

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(pool *pgxpool.Pool) domain.ChunkRepository {
	return &chunkRepository{pool: pool}
}

type dbExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *chunkRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := extractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

// BulkInsertChunks inserts the chunks of one page version. Chunk ids come
// from the table sequence so they stay strictly increasing across rebuilds.
func (r *chunkRepository) BulkInsertChunks(ctx context.Context, chunks []domain.PageChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(chunks))
	for i, chunk := range chunks {
		rows[i] = []interface{}{
			chunk.VersionID,
			chunk.Position,
			chunk.Content,
			chunk.Embedding,
			chunk.CreatedAt,
		}
	}

	_, err := r.getExecutor(ctx).CopyFrom(
		ctx,
		pgx.Identifier{"chunks"},
		[]string{"version_id", "position", "content", "embedding", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert chunks: %w", err)
	}

	return nil
}

func (r *chunkRepository) GetChunksByVersionID(ctx context.Context, versionID uuid.UUID) ([]domain.PageChunk, error) {
	query := `
		SELECT id, version_id, position, content, embedding, created_at
		FROM chunks
		WHERE version_id = $1
		ORDER BY position ASC
	`
	rows, err := r.getExecutor(ctx).Query(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.PageChunk
	for rows.Next() {
		var c domain.PageChunk
		if err := rows.Scan(&c.ID, &c.VersionID, &c.Position, &c.Content, &c.Embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return chunks, nil
}

// Search runs a nearest-neighbor scan restricted to chunks whose version is
// the current one for its page. Ties on distance break on the lower chunk id
// so repeated queries return identical orderings.
func (r *chunkRepository) Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT c.id, c.version_id, c.position, c.content, c.created_at,
		       c.embedding <-> $1 AS distance,
		       p.url, p.title, p.last_seen
		FROM chunks c
		JOIN page_versions v ON v.id = c.version_id
		JOIN pages p ON p.current_version_id = v.id
		WHERE ($3::timestamptz IS NULL OR p.last_seen >= $3)
		  AND ($4::timestamptz IS NULL OR p.last_seen <= $4)
		ORDER BY distance ASC, c.id ASC
		LIMIT $2
	`

	var from, to interface{}
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}

	rows, err := r.getExecutor(ctx).Query(ctx, query, pgvector.NewVector(queryVector), limit, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	results := make([]domain.SearchResult, 0, limit)
	for rows.Next() {
		var res domain.SearchResult
		if err := rows.Scan(
			&res.Chunk.ID, &res.Chunk.VersionID, &res.Chunk.Position, &res.Chunk.Content, &res.Chunk.CreatedAt,
			&res.Distance, &res.URL, &res.Title, &res.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

func (r *chunkRepository) Count(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM chunks c
		JOIN pages p ON p.current_version_id = c.version_id
	`
	var count int64
	if err := r.getExecutor(ctx).QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (r *chunkRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// SetEmbeddingDim retypes the vector column. The column type carries the
// dimension, so switching to an embedder of a different width needs DDL.
// Must run on an empty table: existing rows of another width do not cast.
func (r *chunkRepository) SetEmbeddingDim(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}
	ddl := fmt.Sprintf(`ALTER TABLE chunks ALTER COLUMN embedding TYPE vector(%d)`, dim)
	if _, err := r.getExecutor(ctx).Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to retype embedding column to vector(%d): %w", dim, err)
	}
	return nil
}
