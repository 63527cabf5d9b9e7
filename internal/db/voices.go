package db

import (
	"context"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
)

const voiceColumns = `id, user_id, name, provider_voice_id, created_at`

func (s *Store) CreateVoice(ctx context.Context, userID int64, name, providerVoiceID string) (*models.Voice, error) {
	voice := &models.Voice{}
	err := s.db.GetContext(ctx, voice, `
		INSERT INTO voices (user_id, name, provider_voice_id)
		VALUES ($1, $2, $3)
		RETURNING `+voiceColumns, userID, name, providerVoiceID)
	return voice, err
}

func (s *Store) GetVoice(ctx context.Context, id int64) (*models.Voice, error) {
	voice := &models.Voice{}
	err := s.db.GetContext(ctx, voice, `SELECT `+voiceColumns+` FROM voices WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "voices.notFound")
	}
	return voice, nil
}

func (s *Store) ListVoicesByUser(ctx context.Context, userID int64) ([]models.Voice, error) {
	voices := []models.Voice{}
	err := s.db.SelectContext(ctx, &voices,
		`SELECT `+voiceColumns+` FROM voices WHERE user_id = $1 ORDER BY name`, userID)
	return voices, err
}

func (s *Store) DeleteVoice(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM voices WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res, errVoiceNotFound)
}

var errVoiceNotFound = apperr.NotFound("voices.notFound")
