package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-quranicare/internal/catalog"
	"backend-quranicare/internal/shared/apperr"
	"backend-quranicare/internal/tracking"

	"github.com/pashagolub/pgxmock/v3"
)

var (
	entryCols = []string{"id", "user_id", "item_id", "item_kind", "status", "started_at", "last_progress_at",
		"elapsed_seconds", "completed_at", "title", "category_id"}
	statsCols = []string{"category_id", "item_kind", "count", "sum"}
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestListForUser(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	earlier := now.Add(-time.Hour)
	mock.ExpectQuery(`(?s)FROM sessions s\s+JOIN catalog_items i .*WHERE s.user_id=\$1.*ORDER BY s.started_at DESC`).
		WithArgs("user-1", "cat-1", "breathing", "", pgxmock.AnyArg(), pgxmock.AnyArg(), defaultLimit, 0).
		WillReturnRows(pgxmock.NewRows(entryCols).
			AddRow("s-2", "user-1", "item-1", catalog.KindBreathing, tracking.StatusCompleted, now, now, int64(300), &now, "Box breathing", "cat-1").
			AddRow("s-1", "user-1", "item-1", catalog.KindBreathing, tracking.StatusAbandoned, earlier, earlier, int64(20), (*time.Time)(nil), "Box breathing", "cat-1"))

	entries, err := NewService(mock).ListForUser(context.Background(), "user-1", Filter{CategoryID: "cat-1", Kind: catalog.KindBreathing})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "s-2" || entries[0].ItemTitle != "Box breathing" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[1].CompletedAt != nil {
		t.Fatalf("abandoned session should have no completed_at")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListForUserClampsLimit(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`LIMIT \$7 OFFSET \$8`).
		WithArgs("user-1", "", "", "", pgxmock.AnyArg(), pgxmock.AnyArg(), maxLimit, 40).
		WillReturnRows(pgxmock.NewRows(entryCols))

	entries, err := NewService(mock).ListForUser(context.Background(), "user-1", Filter{Limit: 1000, Offset: 40})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", entries)
	}
}

func TestListForUserInvalidFilter(t *testing.T) {
	from := time.Now()
	to := from.Add(-time.Hour)
	filters := []Filter{
		{Kind: "yoga"},
		{Status: "paused"},
		{From: &from, To: &to},
		{Offset: -1},
	}

	mock := newMock(t)
	svc := NewService(mock)
	for _, f := range filters {
		if _, err := svc.ListForUser(context.Background(), "user-1", f); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("filter %+v: expected invalid input, got %v", f, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected no database calls: %v", err)
	}
}

func TestStatsForUser(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`WHERE s.user_id=\$1 AND s.status='completed'\s+GROUP BY i.category_id, s.item_kind`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(statsCols).
			AddRow("cat-1", catalog.KindBreathing, int64(2), int64(600)).
			AddRow("cat-2", catalog.KindBreathing, int64(1), int64(120)).
			AddRow("cat-2", catalog.KindDzikir, int64(3), int64(90)))

	stats, err := NewService(mock).StatsForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSessions != 6 || stats.TotalElapsedSeconds != 810 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if got := stats.ByCategory["cat-2"]; got.Sessions != 4 || got.ElapsedSeconds != 210 {
		t.Fatalf("unexpected cat-2 bucket %+v", got)
	}
	if got := stats.ByKind[catalog.KindBreathing]; got.Sessions != 3 || got.ElapsedSeconds != 720 {
		t.Fatalf("unexpected breathing bucket %+v", got)
	}
}

func TestStatsForUserEmpty(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`GROUP BY`).
		WithArgs("user-new").
		WillReturnRows(pgxmock.NewRows(statsCols))

	stats, err := NewService(mock).StatsForUser(context.Background(), "user-new")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSessions != 0 || stats.ByCategory == nil || stats.ByKind == nil {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
