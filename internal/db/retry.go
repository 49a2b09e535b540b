package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-quranicare/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var retryBackoff = 20 * time.Millisecond

// Retryable reports whether err is a transient storage failure: a
// serialization failure, deadlock, lock timeout, connection drop before the
// statement was sent, or a driver timeout.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// Retry runs fn up to attempts times while it fails with a retryable error.
// When the budget is exhausted the last error is wrapped in apperr.ErrConflict.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return fmt.Errorf("%w: %d attempts: %v", apperr.ErrConflict, attempts, err)
}

// RunInTx runs fn inside a transaction, retrying the whole transaction on
// transient failures. fn must not keep references to tx after returning.
func RunInTx(ctx context.Context, pool Pool, attempts int, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return Retry(ctx, attempts, func(ctx context.Context) error {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		return tx.Commit(ctx)
	})
}
