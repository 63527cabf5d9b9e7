package db

import (
	"context"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
)

const podcastColumns = `id, user_id, job_id, title, description, script, audio_url, audio_key, audio_size,
	duration, status, error_message, created_at, updated_at`

var (
	errPodcastNotFound = apperr.NotFound("podcasts.notFound")
	// ErrPodcastFinal is returned when an update targets a done or failed podcast.
	ErrPodcastFinal = apperr.Conflict("podcasts.final")
)

func (s *Store) CreatePodcast(ctx context.Context, userID, jobID int64, title string) (*models.Podcast, error) {
	podcast := &models.Podcast{}
	err := s.db.GetContext(ctx, podcast, `
		INSERT INTO podcasts (user_id, job_id, title, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING `+podcastColumns, userID, jobID, title)
	return podcast, err
}

func (s *Store) GetPodcast(ctx context.Context, id int64) (*models.Podcast, error) {
	podcast := &models.Podcast{}
	err := s.db.GetContext(ctx, podcast, `SELECT `+podcastColumns+` FROM podcasts WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "podcasts.notFound")
	}
	return podcast, nil
}

// MarkPodcastProcessing stores the generated script and moves pending -> processing.
func (s *Store) MarkPodcastProcessing(ctx context.Context, id int64, script models.Script) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE podcasts
		SET status = 'processing', title = $2, description = $3, script = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, script.Title, script.Description, script)
	if err != nil {
		return err
	}
	return expectOneRow(res, ErrPodcastFinal)
}

func (s *Store) FailPodcast(ctx context.Context, id int64, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE podcasts
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')`, id, message)
	if err != nil {
		return err
	}
	return expectOneRow(res, ErrPodcastFinal)
}

// ListPodcastsByUser pages newest first. cursor is the id of the last podcast
// of the previous page, 0 for the first page.
func (s *Store) ListPodcastsByUser(ctx context.Context, userID, cursor int64, limit int) ([]models.Podcast, error) {
	podcasts := []models.Podcast{}
	if cursor > 0 {
		err := s.db.SelectContext(ctx, &podcasts, `
			SELECT `+podcastColumns+` FROM podcasts
			WHERE user_id = $1 AND id < $2
			ORDER BY id DESC
			LIMIT $3`, userID, cursor, limit)
		return podcasts, err
	}
	err := s.db.SelectContext(ctx, &podcasts, `
		SELECT `+podcastColumns+` FROM podcasts
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`, userID, limit)
	return podcasts, err
}

func (s *Store) ListDonePodcastsByJob(ctx context.Context, jobID int64, limit int) ([]models.Podcast, error) {
	podcasts := []models.Podcast{}
	err := s.db.SelectContext(ctx, &podcasts, `
		SELECT `+podcastColumns+` FROM podcasts
		WHERE job_id = $1 AND status = 'done'
		ORDER BY id DESC
		LIMIT $2`, jobID, limit)
	return podcasts, err
}

func (s *Store) DeletePodcast(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM podcasts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res, errPodcastNotFound)
}
