package tracking

import (
	"time"

	"backend-quranicare/internal/catalog"
)

type Status string

const (
	StatusStarted    Status = "started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Session is one timed attempt by a user at a catalog item. ElapsedSeconds
// never decreases and CompletedAt is set at most once.
type Session struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	ItemID         string       `json:"item_id"`
	ItemKind       catalog.Kind `json:"item_kind"`
	Status         Status       `json:"status"`
	StartedAt      time.Time    `json:"started_at"`
	LastProgressAt time.Time    `json:"last_progress_at"`
	ElapsedSeconds int64        `json:"elapsed_seconds"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

type EventType string

const (
	EventStarted   EventType = "session.started"
	EventProgress  EventType = "session.progress"
	EventCompleted EventType = "session.completed"
	EventAbandoned EventType = "session.abandoned"
)

// Event is the payload published on the session stream after every state
// change.
type Event struct {
	Type    EventType `json:"type"`
	Session Session   `json:"session"`
}
