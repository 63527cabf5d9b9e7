package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
)

const runColumns = `id, job_id, status, started_at, finished_at, podcast_id, selected_articles,
	failure_reason, error_message, created_at`

var (
	// ErrRunInFlight means the job already has a queued or running run.
	ErrRunInFlight = apperr.Conflict("jobs.alreadyRunning")
	// ErrInvalidTransition means the run was not in the state the update required.
	ErrInvalidTransition = apperr.Conflict("runs.invalidTransition")
)

// CreateQueuedRun inserts a queued run unless the job already has one in flight.
// The partial unique index job_runs_in_flight_idx backs the NOT EXISTS check
// against concurrent dispatchers.
func (s *Store) CreateQueuedRun(ctx context.Context, jobID int64) (*models.JobRun, error) {
	run := &models.JobRun{}
	err := s.db.GetContext(ctx, run, `
		INSERT INTO job_runs (job_id, status)
		SELECT $1::bigint, 'queued'
		WHERE NOT EXISTS (
			SELECT 1 FROM job_runs WHERE job_id = $1 AND status IN ('queued', 'running')
		)
		ON CONFLICT DO NOTHING
		RETURNING `+runColumns, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunInFlight
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) GetRun(ctx context.Context, id int64) (*models.JobRun, error) {
	run := &models.JobRun{}
	err := s.db.GetContext(ctx, run, `SELECT `+runColumns+` FROM job_runs WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "runs.notFound")
	}
	return run, nil
}

func (s *Store) ListRunsByJob(ctx context.Context, jobID int64, limit int) ([]models.JobRun, error) {
	runs := []models.JobRun{}
	err := s.db.SelectContext(ctx, &runs, `
		SELECT `+runColumns+` FROM job_runs
		WHERE job_id = $1
		ORDER BY id DESC
		LIMIT $2`, jobID, limit)
	return runs, err
}

// MarkRunRunning moves queued -> running and stamps started_at.
func (s *Store) MarkRunRunning(ctx context.Context, id int64, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET status = 'running', started_at = $2
		WHERE id = $1 AND status = 'queued'`, id, startedAt)
	if err != nil {
		return err
	}
	return expectOneRow(res, ErrInvalidTransition)
}

// FailRun moves a non-terminal run to failed. Terminal runs are left alone.
func (s *Store) FailRun(ctx context.Context, id int64, reason models.FailureReason, message string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs
		SET status = 'failed', failure_reason = $2, error_message = $3, finished_at = $4
		WHERE id = $1 AND status IN ('queued', 'running')`,
		id, string(reason), message, finishedAt)
	if err != nil {
		return err
	}
	return expectOneRow(res, ErrInvalidTransition)
}

// SetSelectedArticles records the filtered content of a running run. It is
// written once; later calls fail with ErrInvalidTransition.
func (s *Store) SetSelectedArticles(ctx context.Context, id int64, articles models.Articles) error {
	if articles == nil {
		articles = models.Articles{}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET selected_articles = $2
		WHERE id = $1 AND status = 'running' AND selected_articles IS NULL`, id, articles)
	if err != nil {
		return err
	}
	return expectOneRow(res, ErrInvalidTransition)
}

func (s *Store) AttachPodcast(ctx context.Context, runID, podcastID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET podcast_id = $2
		WHERE id = $1 AND status = 'running'`, runID, podcastID)
	if err != nil {
		return err
	}
	return expectOneRow(res, ErrInvalidTransition)
}

// SeenArticleURLs lists article URLs used by earlier successful runs of a job.
func (s *Store) SeenArticleURLs(ctx context.Context, jobID int64) ([]string, error) {
	urls := []string{}
	err := s.db.SelectContext(ctx, &urls, `
		SELECT DISTINCT a->>'url'
		FROM job_runs r, jsonb_array_elements(r.selected_articles) a
		WHERE r.job_id = $1 AND r.status = 'succeeded' AND r.selected_articles IS NOT NULL`, jobID)
	return urls, err
}

// FinalizeParams describes the success of a run.
type FinalizeParams struct {
	RunID      int64
	PodcastID  int64
	UserID     int64
	Month      string
	AudioURL   string
	AudioKey   string
	AudioSize  int64
	Duration   int
	FinishedAt time.Time
}

// FinalizeRun marks the podcast done, increments usage and marks the run
// succeeded in one transaction: either all three happen or none does.
func (s *Store) FinalizeRun(ctx context.Context, p FinalizeParams) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE podcasts
			SET status = 'done', audio_url = $2, audio_key = $3, audio_size = $4, duration = $5,
				error_message = '', updated_at = NOW()
			WHERE id = $1 AND status = 'processing'`,
			p.PodcastID, p.AudioURL, p.AudioKey, p.AudioSize, p.Duration)
		if err != nil {
			return err
		}
		if err := expectOneRow(res, ErrPodcastFinal); err != nil {
			return err
		}

		if _, err := incrementUsage(ctx, tx, p.UserID, p.Month); err != nil {
			return err
		}

		return succeedRun(ctx, tx, p.RunID, p.PodcastID, p.FinishedAt)
	})
}

func succeedRun(ctx context.Context, tx *sqlx.Tx, runID, podcastID int64, finishedAt time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE job_runs
		SET status = 'succeeded', podcast_id = $2, finished_at = $3
		WHERE id = $1 AND status = 'running'`, runID, podcastID, finishedAt)
	if err != nil {
		return err
	}
	return expectOneRow(res, ErrInvalidTransition)
}

// StaleRun is an in-flight run together with what the sweeper needs to repair it.
type StaleRun struct {
	models.JobRun
	UserID        int64   `db:"user_id"`
	PodcastStatus *string `db:"podcast_status"`
}

// ListStaleRuns returns queued or running runs created/started before the cutoff.
func (s *Store) ListStaleRuns(ctx context.Context, before time.Time) ([]StaleRun, error) {
	runs := []StaleRun{}
	err := s.db.SelectContext(ctx, &runs, `
		SELECT r.id, r.job_id, r.status, r.started_at, r.finished_at, r.podcast_id, r.selected_articles,
			r.failure_reason, r.error_message, r.created_at, j.user_id, p.status AS podcast_status
		FROM job_runs r
		JOIN jobs j ON j.id = r.job_id
		LEFT JOIN podcasts p ON p.id = r.podcast_id
		WHERE r.status IN ('queued', 'running') AND COALESCE(r.started_at, r.created_at) < $1
		ORDER BY r.id`, before)
	return runs, err
}

// CompleteRunUnit finishes a running run whose podcast already reached done:
// usage increment and success transition in one transaction.
func (s *Store) CompleteRunUnit(ctx context.Context, runID, podcastID, userID int64, month string, finishedAt time.Time) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var status string
		err := tx.GetContext(ctx, &status, `SELECT status FROM podcasts WHERE id = $1 FOR UPDATE`, podcastID)
		if err != nil {
			return notFound(err, "podcasts.notFound")
		}
		if models.PodcastStatus(status) != models.PodcastDone {
			return ErrInvalidTransition
		}
		if _, err := incrementUsage(ctx, tx, userID, month); err != nil {
			return err
		}
		return succeedRun(ctx, tx, runID, podcastID, finishedAt)
	})
}
