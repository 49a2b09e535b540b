package engagement

type AggregateRating struct {
	ItemID string  `json:"item_id"`
	Mean   float64 `json:"mean"`
	Count  int64   `json:"count"`
}

type PlayCount struct {
	ItemID    string `json:"item_id"`
	PlayCount int64  `json:"play_count"`
}
