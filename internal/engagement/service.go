package engagement

import (
	"context"
	"errors"
	"fmt"

	"backend-quranicare/internal/catalog"
	"backend-quranicare/internal/db"
	"backend-quranicare/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
)

const (
	minScore = 1
	maxScore = 5
)

// Service owns the derived counters on catalog items. Every counter write is
// a single SQL statement relative to the stored value, never a
// read-modify-write in Go.
type Service struct {
	db       db.Pool
	attempts int
}

func NewService(pool db.Pool, attempts int) *Service {
	return &Service{db: pool, attempts: attempts}
}

// OnCompleted bumps the play and completion counters of itemID on q, which is
// normally the transaction that completed the session.
func (s *Service) OnCompleted(ctx context.Context, q db.Querier, itemID string) error {
	tag, err := q.Exec(ctx, `
		UPDATE catalog_items
		SET play_count = play_count + 1,
		    completion_count = completion_count + 1,
		    updated_at = now()
		WHERE id=$1
	`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %s", apperr.ErrNotFound, itemID)
	}
	return nil
}

// RecordPlay counts a play that is not tied to a tracked session.
func (s *Service) RecordPlay(ctx context.Context, itemID string) (PlayCount, error) {
	out := PlayCount{ItemID: itemID}
	err := db.Retry(ctx, s.attempts, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			UPDATE catalog_items
			SET play_count = play_count + 1, updated_at = now()
			WHERE id=$1 AND is_active
			RETURNING play_count
		`, itemID).Scan(&out.PlayCount)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return PlayCount{}, fmt.Errorf("%w: item %s", apperr.ErrNotFound, itemID)
	}
	if err != nil {
		return PlayCount{}, err
	}
	return out, nil
}

// Rate upserts the user's score for itemID and recomputes the item's rating
// aggregate from the live ratings. A second rating by the same user replaces
// the first.
func (s *Service) Rate(ctx context.Context, userID, itemID string, score int) (AggregateRating, error) {
	if score < minScore || score > maxScore {
		return AggregateRating{}, fmt.Errorf("%w: score must be between %d and %d", apperr.ErrInvalidInput, minScore, maxScore)
	}

	agg := AggregateRating{ItemID: itemID}
	err := db.RunInTx(ctx, s.db, s.attempts, func(ctx context.Context, tx pgx.Tx) error {
		// Row lock serializes raters of the same item so the recount below
		// always sees every committed rating.
		var lockedID string
		err := tx.QueryRow(ctx, `SELECT id FROM catalog_items WHERE id=$1 AND is_active FOR UPDATE`, itemID).Scan(&lockedID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: item %s", apperr.ErrNotFound, itemID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO ratings (user_id, item_id, score, created_at, updated_at)
			VALUES ($1,$2,$3,now(),now())
			ON CONFLICT (user_id, item_id) DO UPDATE SET score = EXCLUDED.score, updated_at = now()
		`, userID, itemID, score); err != nil {
			return err
		}

		var sum int64
		if err := tx.QueryRow(ctx, `
			UPDATE catalog_items
			SET rating_sum = r.total, rating_count = r.cnt, updated_at = now()
			FROM (SELECT COALESCE(SUM(score),0) AS total, COUNT(*) AS cnt FROM ratings WHERE item_id=$1) r
			WHERE id=$1
			RETURNING rating_sum, rating_count
		`, itemID).Scan(&sum, &agg.Count); err != nil {
			return err
		}
		agg.Mean = catalog.Mean(sum, agg.Count)
		return nil
	})
	if err != nil {
		return AggregateRating{}, err
	}
	return agg, nil
}
