package catalog

import "time"

type Kind string

const (
	KindBreathing Kind = "breathing"
	KindAudio     Kind = "audio"
	KindDzikir    Kind = "dzikir"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBreathing, KindAudio, KindDzikir:
		return true
	}
	return false
}

type Category struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	ColorCode   string `json:"color_code"`
}

// Item is a practicable activity: a breathing exercise, an audio track or a
// dzikir entry. The counters are owned by the engagement package.
type Item struct {
	ID              string    `json:"id"`
	Kind            Kind      `json:"kind"`
	CategoryID      string    `json:"category_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationSeconds int       `json:"duration_seconds"`
	RepeatCount     int       `json:"repeat_count"` // dzikir repetitions, 0 otherwise
	PlayCount       int64     `json:"play_count"`
	CompletionCount int64     `json:"completion_count"`
	RatingSum       int64     `json:"rating_sum"`
	RatingCount     int64     `json:"rating_count"`
	RatingMean      float64   `json:"rating_mean"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Mean returns sum/count, or 0 when nothing has been rated.
func Mean(sum, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}
