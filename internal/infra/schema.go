package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS pages (
    id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    url                TEXT NOT NULL UNIQUE,
    title              TEXT NOT NULL DEFAULT '',
    first_seen         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_seen          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    visit_count        INTEGER NOT NULL DEFAULT 1,
    current_version_id UUID
);

CREATE TABLE IF NOT EXISTS page_versions (
    id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    page_id          UUID NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
    version_number   INTEGER NOT NULL,
    title            TEXT NOT NULL DEFAULT '',
    source_hash      TEXT NOT NULL,
    chunker_version  TEXT NOT NULL,
    embedder_version TEXT NOT NULL,
    content          TEXT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_page_versions_page_id
    ON page_versions(page_id, version_number DESC);

CREATE TABLE IF NOT EXISTS chunks (
    id         BIGSERIAL PRIMARY KEY,
    version_id UUID NOT NULL REFERENCES page_versions(id) ON DELETE CASCADE,
    position   INTEGER NOT NULL,
    content    TEXT NOT NULL,
    embedding  vector(%d) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (version_id, position)
);

CREATE TABLE IF NOT EXISTS index_meta (
    id               BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
    embedding_dim    INTEGER NOT NULL,
    embedder_version TEXT NOT NULL,
    chunker_version  TEXT NOT NULL,
    chunk_count      BIGINT NOT NULL DEFAULT 0,
    last_indexed_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS index_jobs (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    url           TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    content       TEXT NOT NULL,
    visited_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    status        TEXT NOT NULL DEFAULT 'new',
    error_message TEXT,
    attempts      INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_index_jobs_new
    ON index_jobs(created_at) WHERE status = 'new';
`

// EnsureSchema creates the tables if they don't exist. The embedding
// dimension is baked into the chunks table; on an existing database a
// dimension change is applied by the rebuild, which retypes the column
// after clearing the old vectors.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDim int) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(schemaDDL, embeddingDim)); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
