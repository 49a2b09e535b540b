package history

import (
	"time"

	"backend-quranicare/internal/catalog"
	"backend-quranicare/internal/tracking"
)

// Filter narrows ListForUser. Zero values mean "any".
type Filter struct {
	CategoryID string
	Kind       catalog.Kind
	Status     tracking.Status
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

type Entry struct {
	tracking.Session
	ItemTitle  string `json:"item_title"`
	CategoryID string `json:"category_id"`
}

type Bucket struct {
	Sessions       int64 `json:"sessions"`
	ElapsedSeconds int64 `json:"elapsed_seconds"`
}

// Stats summarises completed sessions only.
type Stats struct {
	TotalSessions       int64                   `json:"total_sessions"`
	TotalElapsedSeconds int64                   `json:"total_elapsed_seconds"`
	ByCategory          map[string]Bucket       `json:"by_category"`
	ByKind              map[catalog.Kind]Bucket `json:"by_kind"`
}
