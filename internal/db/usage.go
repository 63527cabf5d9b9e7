package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// incrementUsageQuery is the only way the counter changes: a single upsert, so
// concurrent increments for the same (user, month) never lose an update.
const incrementUsageQuery = `
	INSERT INTO usage (user_id, month, generation_count)
	VALUES ($1, $2, 1)
	ON CONFLICT (user_id, month) DO UPDATE SET
		generation_count = usage.generation_count + 1
	RETURNING generation_count`

func (s *Store) IncrementUsage(ctx context.Context, userID int64, month string) (int, error) {
	return incrementUsage(ctx, s.db, userID, month)
}

func incrementUsage(ctx context.Context, q sqlx.QueryerContext, userID int64, month string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, incrementUsageQuery, userID, month)
	return count, err
}

// GetUsageCount returns the counter for (user, month); an absent row counts as zero.
func (s *Store) GetUsageCount(ctx context.Context, userID int64, month string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT generation_count FROM usage WHERE user_id = $1 AND month = $2`, userID, month)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}
