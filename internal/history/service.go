package history

import (
	"context"
	"fmt"

	"backend-quranicare/internal/catalog"
	"backend-quranicare/internal/db"
	"backend-quranicare/internal/shared/apperr"
	"backend-quranicare/internal/tracking"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Service answers read-only questions about a user's past sessions.
type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

// ListForUser returns the user's sessions, most recently started first.
func (s *Service) ListForUser(ctx context.Context, userID string, f Filter) ([]Entry, error) {
	if err := normalize(&f); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.user_id, s.item_id, s.item_kind, s.status, s.started_at, s.last_progress_at,
		       s.elapsed_seconds, s.completed_at, i.title, i.category_id
		FROM sessions s
		JOIN catalog_items i ON i.id = s.item_id
		WHERE s.user_id=$1
		  AND ($2 = '' OR i.category_id::text = $2)
		  AND ($3 = '' OR s.item_kind = $3)
		  AND ($4 = '' OR s.status = $4)
		  AND ($5::timestamptz IS NULL OR s.started_at >= $5)
		  AND ($6::timestamptz IS NULL OR s.started_at < $6)
		ORDER BY s.started_at DESC, s.id
		LIMIT $7 OFFSET $8
	`, userID, f.CategoryID, string(f.Kind), string(f.Status), f.From, f.To, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ItemID, &e.ItemKind, &e.Status, &e.StartedAt, &e.LastProgressAt,
			&e.ElapsedSeconds, &e.CompletedAt, &e.ItemTitle, &e.CategoryID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// StatsForUser totals completed sessions overall, per category and per kind.
func (s *Service) StatsForUser(ctx context.Context, userID string) (Stats, error) {
	rows, err := s.db.Query(ctx, `
		SELECT i.category_id, s.item_kind, COUNT(*), COALESCE(SUM(s.elapsed_seconds),0)
		FROM sessions s
		JOIN catalog_items i ON i.id = s.item_id
		WHERE s.user_id=$1 AND s.status='completed'
		GROUP BY i.category_id, s.item_kind
	`, userID)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	stats := Stats{ByCategory: map[string]Bucket{}, ByKind: map[catalog.Kind]Bucket{}}
	for rows.Next() {
		var (
			categoryID string
			kind       catalog.Kind
			b          Bucket
		)
		if err := rows.Scan(&categoryID, &kind, &b.Sessions, &b.ElapsedSeconds); err != nil {
			return Stats{}, err
		}
		stats.TotalSessions += b.Sessions
		stats.TotalElapsedSeconds += b.ElapsedSeconds
		stats.ByCategory[categoryID] = stats.ByCategory[categoryID].add(b)
		stats.ByKind[kind] = stats.ByKind[kind].add(b)
	}
	return stats, rows.Err()
}

func (b Bucket) add(o Bucket) Bucket {
	return Bucket{Sessions: b.Sessions + o.Sessions, ElapsedSeconds: b.ElapsedSeconds + o.ElapsedSeconds}
}

func normalize(f *Filter) error {
	if f.Kind != "" && !f.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidInput, f.Kind)
	}
	switch f.Status {
	case "", tracking.StatusStarted, tracking.StatusInProgress, tracking.StatusCompleted, tracking.StatusAbandoned:
	default:
		return fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, f.Status)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return fmt.Errorf("%w: to is before from", apperr.ErrInvalidInput)
	}
	if f.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", apperr.ErrInvalidInput)
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return nil
}
