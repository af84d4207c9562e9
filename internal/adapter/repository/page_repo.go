package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recall/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pageRepository struct {
	pool *pgxpool.Pool
}

// NewPageRepository creates a new PageRepository.
func NewPageRepository(pool *pgxpool.Pool) domain.PageRepository {
	return &pageRepository{pool: pool}
}

func (r *pageRepository) getExecutor(ctx context.Context) interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
} {
	tx := extractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

func (r *pageRepository) GetByURL(ctx context.Context, url string) (*domain.Page, error) {
	query := `
		SELECT id, url, title, first_seen, last_seen, visit_count, current_version_id
		FROM pages
		WHERE url = $1
	`
	row := r.getExecutor(ctx).QueryRow(ctx, query, url)

	var page domain.Page
	err := row.Scan(&page.ID, &page.URL, &page.Title, &page.FirstSeen, &page.LastSeen, &page.VisitCount, &page.CurrentVersionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan page: %w", err)
	}
	return &page, nil
}

func (r *pageRepository) Create(ctx context.Context, page *domain.Page) error {
	query := `
		INSERT INTO pages (id, url, title, first_seen, last_seen, visit_count, current_version_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.getExecutor(ctx).Exec(ctx, query,
		page.ID, page.URL, page.Title, page.FirstSeen, page.LastSeen, page.VisitCount, page.CurrentVersionID)
	if err != nil {
		return fmt.Errorf("failed to insert page: %w", err)
	}
	return nil
}

func (r *pageRepository) RecordVisit(ctx context.Context, pageID uuid.UUID, visitedAt time.Time) error {
	query := `
		UPDATE pages
		SET visit_count = visit_count + 1,
		    last_seen   = GREATEST(last_seen, $1)
		WHERE id = $2
	`
	_, err := r.getExecutor(ctx).Exec(ctx, query, visitedAt, pageID)
	if err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

func (r *pageRepository) UpdateCurrentVersion(ctx context.Context, pageID uuid.UUID, versionID uuid.UUID) error {
	query := `
		UPDATE pages
		SET current_version_id = $1
		WHERE id = $2
	`
	_, err := r.getExecutor(ctx).Exec(ctx, query, versionID, pageID)
	if err != nil {
		return fmt.Errorf("failed to update current version: %w", err)
	}
	return nil
}

func (r *pageRepository) GetLatestVersion(ctx context.Context, pageID uuid.UUID) (*domain.PageVersion, error) {
	query := `
		SELECT id, page_id, version_number, title, source_hash, chunker_version, embedder_version, content, created_at
		FROM page_versions
		WHERE page_id = $1
		ORDER BY version_number DESC
		LIMIT 1
	`
	row := r.getExecutor(ctx).QueryRow(ctx, query, pageID)

	var ver domain.PageVersion
	err := row.Scan(&ver.ID, &ver.PageID, &ver.VersionNumber, &ver.Title, &ver.SourceHash, &ver.ChunkerVersion, &ver.EmbedderVersion, &ver.Content, &ver.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}
	return &ver, nil
}

func (r *pageRepository) CreateVersion(ctx context.Context, version *domain.PageVersion) error {
	query := `
		INSERT INTO page_versions (id, page_id, version_number, title, source_hash, chunker_version, embedder_version, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.getExecutor(ctx).Exec(ctx, query,
		version.ID, version.PageID, version.VersionNumber, version.Title, version.SourceHash,
		version.ChunkerVersion, version.EmbedderVersion, version.Content, version.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return nil
}

func (r *pageRepository) ListCurrentVersions(ctx context.Context) ([]domain.PageVersion, error) {
	query := `
		SELECT v.id, v.page_id, v.version_number, v.title, v.source_hash, v.chunker_version, v.embedder_version, v.content, v.created_at
		FROM page_versions v
		JOIN pages p ON p.current_version_id = v.id
		ORDER BY v.created_at ASC, v.id ASC
	`
	rows, err := r.getExecutor(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query current versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.PageVersion
	for rows.Next() {
		var ver domain.PageVersion
		if err := rows.Scan(&ver.ID, &ver.PageID, &ver.VersionNumber, &ver.Title, &ver.SourceHash, &ver.ChunkerVersion, &ver.EmbedderVersion, &ver.Content, &ver.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, ver)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return versions, nil
}
