package models

import "time"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// User represents a user in the database.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        *string   `db:"email" json:"email,omitempty"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Plan         Plan      `db:"plan" json:"plan"`
	TelegramID   *int64    `db:"telegram_id" json:"telegramId,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// PasswordReset is a single-use token that lets a user set a new password.
type PasswordReset struct {
	Token     string     `db:"token"`
	UserID    int64      `db:"user_id"`
	ExpiresAt time.Time  `db:"expires_at"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}
