package models

import "time"

// Voice is a named TTS voice profile owned by a user.
type Voice struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"userId"`
	Name            string    `db:"name" json:"name"`
	ProviderVoiceID string    `db:"provider_voice_id" json:"providerVoiceId"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}
