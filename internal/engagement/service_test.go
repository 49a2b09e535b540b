package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"backend-quranicare/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
)

var errSerialization = &pgconn.PgError{Code: "40001", Message: "could not serialize access"}

func expectRate(mock pgxmock.PgxPoolIface, userID, itemID string, score int, sum, count int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM catalog_items WHERE id=\$1 AND is_active FOR UPDATE`).
		WithArgs(itemID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(itemID))
	mock.ExpectExec(`(?s)INSERT INTO ratings .*ON CONFLICT \(user_id, item_id\) DO UPDATE SET score = EXCLUDED.score`).
		WithArgs(userID, itemID, score).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`UPDATE catalog_items\s+SET rating_sum = r.total, rating_count = r.cnt`).
		WithArgs(itemID).
		WillReturnRows(pgxmock.NewRows([]string{"rating_sum", "rating_count"}).AddRow(sum, count))
	mock.ExpectCommit()
}

func TestRateResubmissionReplacesScore(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	expectRate(mock, "user-1", "item-1", 3, 3, 1)
	expectRate(mock, "user-1", "item-1", 5, 5, 1)

	svc := NewService(mock, 3)
	first, err := svc.Rate(context.Background(), "user-1", "item-1", 3)
	if err != nil {
		t.Fatalf("first rate: %v", err)
	}
	if first.Mean != 3 || first.Count != 1 {
		t.Fatalf("unexpected first aggregate %+v", first)
	}

	second, err := svc.Rate(context.Background(), "user-1", "item-1", 5)
	if err != nil {
		t.Fatalf("second rate: %v", err)
	}
	if second.Mean != 5 || second.Count != 1 {
		t.Fatalf("expected mean 5 over 1 rating, got %+v", second)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRateMeanAcrossUsers(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	expectRate(mock, "user-2", "item-1", 4, 9, 2)

	agg, err := NewService(mock, 3).Rate(context.Background(), "user-2", "item-1", 4)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if agg.Mean != 4.5 || agg.Count != 2 || agg.ItemID != "item-1" {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
}

func TestRateScoreOutOfRange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewService(mock, 3)
	for _, score := range []int{0, 6, -1} {
		if _, err := svc.Rate(context.Background(), "user-1", "item-1", score); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("score %d: expected invalid input, got %v", score, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected no database calls: %v", err)
	}
}

func TestRateInactiveItem(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("item-off").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err = NewService(mock, 3).Rate(context.Background(), "user-1", "item-off", 4)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRateRetriesSerializationFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("item-1").
		WillReturnError(errSerialization)
	mock.ExpectRollback()
	expectRate(mock, "user-1", "item-1", 2, 2, 1)

	agg, err := NewService(mock, 3).Rate(context.Background(), "user-1", "item-1", 2)
	if err != nil {
		t.Fatalf("rate after retry: %v", err)
	}
	if agg.Mean != 2 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOnCompletedIncrementsAtomically(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`SET play_count = play_count \+ 1,\s+completion_count = completion_count \+ 1`).
		WithArgs("item-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`completion_count = completion_count \+ 1`).
		WithArgs("item-gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	svc := NewService(mock, 3)
	if err := svc.OnCompleted(context.Background(), mock, "item-1"); err != nil {
		t.Fatalf("on completed: %v", err)
	}
	if err := svc.OnCompleted(context.Background(), mock, "item-gone"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOnCompletedConcurrentSameItem(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	for i := 0; i < 2; i++ {
		mock.ExpectExec(`completion_count = completion_count \+ 1`).
			WithArgs("item-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}

	svc := NewService(mock, 3)
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.OnCompleted(context.Background(), mock, "item-1")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent completion: %v", err)
		}
	}

	// both increments reached storage
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordPlay(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SET play_count = play_count \+ 1, updated_at = now\(\)`).
		WithArgs("item-1").
		WillReturnError(errSerialization)
	mock.ExpectQuery(`SET play_count = play_count \+ 1, updated_at = now\(\)`).
		WithArgs("item-1").
		WillReturnRows(pgxmock.NewRows([]string{"play_count"}).AddRow(int64(42)))
	mock.ExpectQuery(`RETURNING play_count`).
		WithArgs("item-off").
		WillReturnError(pgx.ErrNoRows)

	svc := NewService(mock, 3)
	count, err := svc.RecordPlay(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("record play: %v", err)
	}
	if count.PlayCount != 42 {
		t.Fatalf("unexpected play count %d", count.PlayCount)
	}
	if _, err := svc.RecordPlay(context.Background(), "item-off"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordPlayRetriesExhausted(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`RETURNING play_count`).
			WithArgs("item-1").
			WillReturnError(errSerialization)
	}

	_, err = NewService(mock, 2).RecordPlay(context.Background(), "item-1")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
