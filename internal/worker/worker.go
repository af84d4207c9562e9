package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"recall/internal/domain"
	"recall/internal/usecase"

	"golang.org/x/time/rate"
)

const (
	jobTimeout     = 60 * time.Second
	initialBackoff = 1 * time.Second
	maxBackoff     = 5 * time.Minute
)

// IndexWorker is the single writer of the page index. It polls the job queue
// on a fixed interval, drains pending pages one at a time, and backs off
// exponentially when the pipeline (typically the embedding backend) fails.
type IndexWorker struct {
	jobRepo      domain.IndexJobRepository
	indexUsecase usecase.IndexPageUsecase
	logger       *slog.Logger
	limiter      *rate.Limiter
	pollInterval time.Duration
	maxAttempts  int
	stopChan     chan struct{}
	backoff      time.Duration
}

// NewIndexWorker creates the worker. embedRate bounds indexing jobs per
// second so a burst of history imports cannot flood the embedding backend.
func NewIndexWorker(
	jobRepo domain.IndexJobRepository,
	indexUsecase usecase.IndexPageUsecase,
	pollInterval time.Duration,
	maxAttempts int,
	embedRate float64,
	logger *slog.Logger,
) *IndexWorker {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if embedRate <= 0 {
		embedRate = 1
	}
	return &IndexWorker{
		jobRepo:      jobRepo,
		indexUsecase: indexUsecase,
		logger:       logger,
		limiter:      rate.NewLimiter(rate.Limit(embedRate), 1),
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		stopChan:     make(chan struct{}),
	}
}

func (w *IndexWorker) Start() {
	w.logger.Info("index_worker_started",
		slog.Duration("poll_interval", w.pollInterval),
		slog.Int("max_attempts", w.maxAttempts))
	go w.run()
}

func (w *IndexWorker) Stop() {
	w.logger.Info("index_worker_stopping")
	close(w.stopChan)
}

func (w *IndexWorker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.runOnce()
			if w.backoff > 0 {
				ticker.Reset(w.backoff)
			} else {
				ticker.Reset(w.pollInterval)
			}
		}
	}
}

// runOnce drains the queue. One page failing marks that job for retry and
// the drain continues; an embedding backend failure ends the run with a
// backoff since every remaining page would hit the same wall.
func (w *IndexWorker) runOnce() {
	start := time.Now()
	processed, failed := 0, 0

	for {
		select {
		case <-w.stopChan:
			return
		default:
		}

		done, err := w.processNextJob()
		if done {
			break
		}
		if err != nil {
			failed++
			var embErr *domain.EmbeddingError
			if errors.As(err, &embErr) {
				w.backoff = w.nextBackoff(w.backoff)
				w.logger.Warn("index_worker_backing_off",
					slog.Duration("backoff", w.backoff),
					slog.String("error", err.Error()))
				break
			}
			continue
		}
		processed++
		w.backoff = 0
	}

	if processed > 0 || failed > 0 {
		requeued, err := w.jobRepo.RequeueFailed(context.Background(), w.maxAttempts)
		if err != nil {
			w.logger.Error("index_worker_requeue_failed", slog.String("error", err.Error()))
		}
		w.logger.Info("index_worker_run_summary",
			slog.Int("processed", processed),
			slog.Int("failed", failed),
			slog.Int64("requeued", requeued),
			slog.Duration("elapsed", time.Since(start)))
	}
}

// processNextJob handles one queued page. done reports an empty queue.
func (w *IndexWorker) processNextJob() (done bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	// A queue error ends the run; retrying in a tight loop would only spam
	// the store.
	job, err := w.jobRepo.AcquireNext(ctx)
	if err != nil {
		w.logger.Error("failed_to_acquire_job", slog.String("error", err.Error()))
		return true, err
	}
	if job == nil {
		return true, nil
	}

	w.logger.Info("processing_page",
		slog.String("job_id", job.ID.String()),
		slog.String("url", job.URL),
		slog.Int("attempt", job.Attempts))

	// The embedding call inside AddPage is the expensive part; pace it.
	if err := w.limiter.Wait(ctx); err != nil {
		return false, err
	}

	processErr := w.indexUsecase.AddPage(ctx, job.URL, job.Title, job.Content, job.VisitedAt)

	status := "completed"
	var errMsg *string
	if processErr != nil {
		status = "failed"
		msg := processErr.Error()
		errMsg = &msg
	}

	if err := w.jobRepo.UpdateStatus(ctx, job.ID, status, errMsg); err != nil {
		w.logger.Error("failed_to_update_job_status",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}

	if processErr != nil {
		w.logger.Warn("page_indexing_failed",
			slog.String("job_id", job.ID.String()),
			slog.String("url", job.URL),
			slog.String("error", processErr.Error()))
		return false, processErr
	}

	w.logger.Info("page_indexed",
		slog.String("job_id", job.ID.String()),
		slog.String("url", job.URL))
	return false, nil
}

func (w *IndexWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
