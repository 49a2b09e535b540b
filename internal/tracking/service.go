package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend-quranicare/internal/db"
	"backend-quranicare/internal/logging"
	"backend-quranicare/internal/shared/apperr"
	"backend-quranicare/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const sessionColumns = `id, user_id, item_id, item_kind, status, started_at, last_progress_at, elapsed_seconds, completed_at`

// CompletionRecorder is notified inside the completing transaction.
type CompletionRecorder interface {
	OnCompleted(ctx context.Context, q db.Querier, itemID string) error
}

// Service drives the session state machine
// started -> in_progress -> completed | abandoned.
// Every transition is a single compare-and-set UPDATE guarded by the current
// status, so concurrent requests on one session cannot both win.
type Service struct {
	db       db.Pool
	counters CompletionRecorder
	hub      *stream.Hub
	attempts int
	log      *zap.Logger
}

func NewService(pool db.Pool, counters CompletionRecorder, hub *stream.Hub, attempts int, logger *zap.Logger) *Service {
	return &Service{db: pool, counters: counters, hub: hub, attempts: attempts, log: logging.OrNop(logger)}
}

// Start opens a session on an active item. The active check happens in the
// same statement as the insert and never goes through the catalog cache.
func (s *Service) Start(ctx context.Context, userID, itemID string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO sessions (id, user_id, item_id, item_kind, status, started_at, last_progress_at, elapsed_seconds)
		SELECT $1, $2, i.id, i.kind, 'started', now(), now(), 0
		FROM catalog_items i
		WHERE i.id=$3 AND i.is_active
		RETURNING `+sessionColumns, uuid.NewString(), userID, itemID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: item %s", apperr.ErrNotFound, itemID)
	}
	if err != nil {
		return Session{}, err
	}
	s.publish(EventStarted, session)
	return session, nil
}

func (s *Service) Get(ctx context.Context, userID, sessionID string) (Session, error) {
	if err := checkSessionID(sessionID); err != nil {
		return Session{}, err
	}
	return s.lookup(ctx, s.db, userID, sessionID)
}

// UpdateProgress records a new elapsed time. The first successful update
// moves the session to in_progress.
func (s *Service) UpdateProgress(ctx context.Context, userID, sessionID string, elapsed int64) (Session, error) {
	if elapsed < 0 {
		return Session{}, fmt.Errorf("%w: elapsed_seconds must not be negative", apperr.ErrInvalidInput)
	}
	if err := checkSessionID(sessionID); err != nil {
		return Session{}, err
	}

	row := s.db.QueryRow(ctx, `
		UPDATE sessions
		SET status='in_progress', elapsed_seconds=$3, last_progress_at=now()
		WHERE id=$1 AND user_id=$2 AND status IN ('started','in_progress') AND elapsed_seconds <= $3
		RETURNING `+sessionColumns, sessionID, userID, elapsed)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, s.rejected(ctx, s.db, userID, sessionID, elapsed)
	}
	if err != nil {
		return Session{}, err
	}
	s.publish(EventProgress, session)
	return session, nil
}

// Complete finishes the session and bumps the item's counters in the same
// transaction. A final elapsed below the stored value keeps the stored value.
func (s *Service) Complete(ctx context.Context, userID, sessionID string, finalElapsed int64) (Session, error) {
	if finalElapsed < 0 {
		return Session{}, fmt.Errorf("%w: elapsed_seconds must not be negative", apperr.ErrInvalidInput)
	}
	if err := checkSessionID(sessionID); err != nil {
		return Session{}, err
	}

	var session Session
	err := db.RunInTx(ctx, s.db, s.attempts, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE sessions
			SET status='completed', elapsed_seconds=GREATEST(elapsed_seconds, $3), completed_at=now(), last_progress_at=now()
			WHERE id=$1 AND user_id=$2 AND status IN ('started','in_progress')
			RETURNING `+sessionColumns, sessionID, userID, finalElapsed)
		var err error
		session, err = scanSession(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.rejected(ctx, tx, userID, sessionID, -1)
		}
		if err != nil {
			return err
		}
		return s.counters.OnCompleted(ctx, tx, session.ItemID)
	})
	if err != nil {
		return Session{}, err
	}

	s.log.Info("session completed",
		zap.String("session_id", session.ID),
		zap.String("item_id", session.ItemID),
		zap.Int64("elapsed_seconds", session.ElapsedSeconds))
	s.publish(EventCompleted, session)
	return session, nil
}

// Abandon cancels a session that has not reached a terminal state.
func (s *Service) Abandon(ctx context.Context, userID, sessionID string) (Session, error) {
	if err := checkSessionID(sessionID); err != nil {
		return Session{}, err
	}

	row := s.db.QueryRow(ctx, `
		UPDATE sessions
		SET status='abandoned', last_progress_at=now()
		WHERE id=$1 AND user_id=$2 AND status IN ('started','in_progress')
		RETURNING `+sessionColumns, sessionID, userID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, s.rejected(ctx, s.db, userID, sessionID, -1)
	}
	if err != nil {
		return Session{}, err
	}
	s.publish(EventAbandoned, session)
	return session, nil
}

// AbandonStale marks every open session without progress since cutoff as
// abandoned and returns how many were changed.
func (s *Service) AbandonStale(ctx context.Context, cutoff time.Time) (int64, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE sessions
		SET status='abandoned'
		WHERE status IN ('started','in_progress') AND last_progress_at < $1
		RETURNING `+sessionColumns, cutoff)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return n, err
		}
		n++
		s.publish(EventAbandoned, session)
	}
	return n, rows.Err()
}

func (s *Service) lookup(ctx context.Context, q db.Querier, userID, sessionID string) (Session, error) {
	row := q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1 AND user_id=$2`, sessionID, userID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: session %s", apperr.ErrNotFound, sessionID)
	}
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// rejected explains why a guarded UPDATE matched no row. Sessions of other
// users are reported as missing. elapsed < 0 skips the regression check.
func (s *Service) rejected(ctx context.Context, q db.Querier, userID, sessionID string, elapsed int64) error {
	current, err := s.lookup(ctx, q, userID, sessionID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return fmt.Errorf("%w: session %s is %s", apperr.ErrInvalidState, sessionID, current.Status)
	}
	if elapsed >= 0 && elapsed < current.ElapsedSeconds {
		return fmt.Errorf("%w: elapsed_seconds %d is below recorded %d", apperr.ErrInvalidInput, elapsed, current.ElapsedSeconds)
	}
	// the row changed between the two statements
	return fmt.Errorf("%w: session %s changed concurrently", apperr.ErrConflict, sessionID)
}

func (s *Service) publish(eventType EventType, session Session) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(Event{Type: eventType, Session: session})
	if err != nil {
		s.log.Warn("encode session event", zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	s.hub.Publish(session.ID, payload)
}

func checkSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: session %s", apperr.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.ItemID, &s.ItemKind, &s.Status, &s.StartedAt, &s.LastProgressAt,
		&s.ElapsedSeconds, &s.CompletedAt)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}
