package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recall/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type indexJobRepository struct {
	pool *pgxpool.Pool
}

// NewIndexJobRepository creates a new IndexJobRepository.
func NewIndexJobRepository(pool *pgxpool.Pool) domain.IndexJobRepository {
	return &indexJobRepository{pool: pool}
}

func (r *indexJobRepository) Enqueue(ctx context.Context, job *domain.IndexJob) error {
	query := `
		INSERT INTO index_jobs (id, url, title, content, visited_at, status, error_message, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		job.ID, job.URL, job.Title, job.Content, job.VisitedAt,
		job.Status, job.ErrorMessage, job.Attempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// AcquireNext claims the oldest pending job and flips it to 'processing' in
// one statement, so concurrent workers never pick up the same job.
func (r *indexJobRepository) AcquireNext(ctx context.Context) (*domain.IndexJob, error) {
	cteQuery := `
		WITH next_job AS (
			SELECT id
			FROM index_jobs
			WHERE status = 'new'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE index_jobs
		SET status = 'processing', attempts = attempts + 1, updated_at = $1
		FROM next_job
		WHERE index_jobs.id = next_job.id
		RETURNING index_jobs.id, index_jobs.url, index_jobs.title, index_jobs.content,
		          index_jobs.visited_at, index_jobs.status, index_jobs.error_message,
		          index_jobs.attempts, index_jobs.created_at, index_jobs.updated_at
	`

	var job domain.IndexJob
	err := r.pool.QueryRow(ctx, cteQuery, time.Now()).Scan(
		&job.ID, &job.URL, &job.Title, &job.Content,
		&job.VisitedAt, &job.Status, &job.ErrorMessage,
		&job.Attempts, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire next job: %w", err)
	}
	return &job, nil
}

func (r *indexJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error {
	query := `
		UPDATE index_jobs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := r.pool.Exec(ctx, query, status, errorMessage, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// RequeueFailed flips failed jobs that still have attempts left back to 'new'.
func (r *indexJobRepository) RequeueFailed(ctx context.Context, maxAttempts int) (int64, error) {
	query := `
		UPDATE index_jobs
		SET status = 'new', updated_at = $1
		WHERE status = 'failed' AND attempts < $2
	`
	tag, err := r.pool.Exec(ctx, query, time.Now(), maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
