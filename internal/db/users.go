package db

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
)

const userColumns = `id, email, password_hash, name, plan, telegram_id, created_at, updated_at`

var ErrEmailTaken = apperr.Conflict("auth.emailTaken")

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name string) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash, name)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns
	user := &models.User{}
	err := s.db.GetContext(ctx, user, query, normalizeEmail(email), passwordHash, name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		log.Printf("Error creating user: %v", err)
		return nil, err
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := s.db.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "users.notFound")
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.db.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email))
	if err != nil {
		return nil, notFound(err, "users.notFound")
	}
	return user, nil
}

// UpsertTelegramUser inserts a new user or refreshes the name of an existing one based on the Telegram ID.
func (s *Store) UpsertTelegramUser(ctx context.Context, telegramID int64, name string) (*models.User, error) {
	query := `
		INSERT INTO users (telegram_id, name)
		VALUES ($1, $2)
		ON CONFLICT (telegram_id) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = NOW()
		RETURNING ` + userColumns
	user := &models.User{}
	err := s.db.GetContext(ctx, user, query, telegramID, name)
	if err != nil {
		log.Printf("Error upserting telegram user: %v", err)
		return nil, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
