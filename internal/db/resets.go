package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"feedcast/internal/apperr"
)

var ErrResetLinkInvalid = apperr.Validation("auth.resetLinkInvalid")

func (s *Store) CreatePasswordReset(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, expiresAt)
	return err
}

// ConsumePasswordReset marks the token used and stores the new hash in one
// transaction. Unknown, used or expired tokens leave the user untouched.
func (s *Store) ConsumePasswordReset(ctx context.Context, token, passwordHash string, now time.Time) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var userID int64
		err := tx.GetContext(ctx, &userID, `
			UPDATE password_resets
			SET used_at = $2
			WHERE token = $1 AND used_at IS NULL AND expires_at > $2
			RETURNING user_id`, token, now)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrResetLinkInvalid
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
			passwordHash, userID)
		if err != nil {
			return err
		}
		return expectOneRow(res, ErrResetLinkInvalid)
	})
}
