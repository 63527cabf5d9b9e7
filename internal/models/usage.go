package models

// Usage is the per-user, per-calendar-month generation counter.
type Usage struct {
	UserID          int64  `db:"user_id"`
	Month           string `db:"month"`
	GenerationCount int    `db:"generation_count"`
}
