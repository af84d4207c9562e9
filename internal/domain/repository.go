package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Page represents a visited page known to the index.
type Page struct {
	ID               uuid.UUID
	URL              string
	Title            string
	FirstSeen        time.Time
	LastSeen         time.Time
	VisitCount       int
	CurrentVersionID *uuid.UUID // Nil until the page has been indexed once
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PageVersion represents an immutable content version of a page. The raw
// normalized text is retained so a full index rebuild can re-derive every
// chunk without re-scraping.
type PageVersion struct {
	ID              uuid.UUID
	PageID          uuid.UUID
	VersionNumber   int
	Title           string
	SourceHash      string
	ChunkerVersion  string
	EmbedderVersion string
	Content         string
	CreatedAt       time.Time
}

// PageChunk is the unit of embedding and retrieval. The chunk row and its
// vector live in the same store row, so a chunk exists if and only if its
// vector does. IDs are assigned by a persisted sequence and are strictly
// increasing, never reused.
type PageChunk struct {
	ID        int64
	VersionID uuid.UUID
	Position  int // 0-based index within the page's chunk sequence
	Content   string
	Embedding pgvector.Vector
	CreatedAt time.Time
}

// SearchResult is a chunk found via vector search together with the page
// metadata needed to present it. Distance is L2: lower means more similar.
type SearchResult struct {
	Chunk    PageChunk
	Distance float32
	URL      string
	Title    string
	LastSeen time.Time
}

// SearchFilter narrows a vector search. Zero times mean unbounded.
type SearchFilter struct {
	From time.Time
	To   time.Time
}

// IndexMeta is the single bookkeeping row versioning the index as a whole.
// Any disagreement between it and the configured embedder/chunker forces a
// full rebuild rather than silently querying mismatched data.
type IndexMeta struct {
	EmbeddingDim    int
	EmbedderVersion string
	ChunkerVersion  string
	ChunkCount      int64
	LastIndexedAt   time.Time
}

// IndexJob is a pending page-indexing request handed over by the
// extractor/scraper boundary and consumed by the background worker.
type IndexJob struct {
	ID           uuid.UUID
	URL          string
	Title        string
	Content      string
	VisitedAt    time.Time
	Status       string // "new", "processing", "completed", "failed"
	ErrorMessage *string
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PageRepository defines the operations for managing pages and their versions.
type PageRepository interface {
	// GetByURL retrieves a page by its URL. Returns nil, nil if not found.
	GetByURL(ctx context.Context, url string) (*Page, error)

	// Create creates a new page.
	Create(ctx context.Context, page *Page) error

	// RecordVisit bumps visit_count and last_seen for an existing page.
	RecordVisit(ctx context.Context, pageID uuid.UUID, visitedAt time.Time) error

	// UpdateCurrentVersion flips the page's current_version_id.
	UpdateCurrentVersion(ctx context.Context, pageID uuid.UUID, versionID uuid.UUID) error

	// GetLatestVersion retrieves the newest version for a page.
	// Returns nil, nil if no version exists.
	GetLatestVersion(ctx context.Context, pageID uuid.UUID) (*PageVersion, error)

	// CreateVersion creates a new page version.
	CreateVersion(ctx context.Context, version *PageVersion) error

	// ListCurrentVersions returns the current version of every page,
	// including stored content. This is the rebuild corpus.
	ListCurrentVersions(ctx context.Context) ([]PageVersion, error)
}

// ChunkRepository defines the operations for managing chunks and their vectors.
type ChunkRepository interface {
	// BulkInsertChunks inserts the chunks of one page version.
	BulkInsertChunks(ctx context.Context, chunks []PageChunk) error

	// GetChunksByVersionID retrieves chunks for a version, ordered by position.
	GetChunksByVersionID(ctx context.Context, versionID uuid.UUID) ([]PageChunk, error)

	// Search returns up to limit chunks of current page versions ordered by
	// ascending distance to the query vector. Distance ties break on the
	// lower chunk id so results are deterministic. An empty index yields an
	// empty slice, never an error.
	Search(ctx context.Context, queryVector []float32, limit int, filter SearchFilter) ([]SearchResult, error)

	// Count returns the number of chunks belonging to current page versions.
	Count(ctx context.Context) (int64, error)

	// DeleteAll removes every chunk. Only used inside a rebuild transaction.
	DeleteAll(ctx context.Context) error

	// SetEmbeddingDim retypes the stored vector column to the given width.
	// Only valid while the chunk table is empty; a rebuild calls it after
	// DeleteAll when the configured embedder has a different dimension.
	SetEmbeddingDim(ctx context.Context, dim int) error
}

// IndexMetaRepository manages the index bookkeeping row.
type IndexMetaRepository interface {
	// Get returns the metadata row, or nil, nil when the index is empty/new.
	Get(ctx context.Context) (*IndexMeta, error)

	// Put creates or replaces the metadata row.
	Put(ctx context.Context, meta *IndexMeta) error
}

// IndexJobRepository is the queue between the ingest boundary and the worker.
type IndexJobRepository interface {
	// Enqueue adds a new indexing job.
	Enqueue(ctx context.Context, job *IndexJob) error

	// AcquireNext atomically claims the oldest pending job.
	// Returns nil, nil when the queue is empty.
	AcquireNext(ctx context.Context) (*IndexJob, error)

	// UpdateStatus records the outcome of a claimed job.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error

	// RequeueFailed flips failed jobs below the attempt limit back to new so
	// the next scheduled run retries them.
	RequeueFailed(ctx context.Context, maxAttempts int) (int64, error)
}

// TransactionManager defines the interface for handling database transactions.
type TransactionManager interface {
	// RunInTx executes the given function within a transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
