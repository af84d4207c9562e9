package repository

import (
	"context"
	"fmt"

	"recall/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The index invariant is that a chunk row and its vector either both exist
// or neither does, and that a page's current_version_id only ever points at
// a fully inserted version. Every multi-step index mutation therefore runs
// inside a single transaction carried through the context, and each
// repository picks it up via extractTx without knowing about the others.

type txContextKey struct{}

func injectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// extractTx returns the transaction carried by the context, or nil when the
// call runs outside RunInTx and should hit the pool directly.
func extractTx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx
}

type pgTxManager struct {
	pool *pgxpool.Pool
}

// NewPostgresTransactionManager returns a TransactionManager that runs the
// given function inside one pgx transaction shared by every repository call
// made with the returned context.
func NewPostgresTransactionManager(pool *pgxpool.Pool) domain.TransactionManager {
	return &pgTxManager{pool: pool}
}

func (tm *pgTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Roll back on any exit that did not reach Commit, a panic included, so
	// a failed rebuild or page write leaves the old index fully intact.
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(injectTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
