package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
)

const jobColumns = `id, user_id, name, sources, schedule, filter_config, generation_config, output_config,
	status, feed_uuid, next_run_at, last_run_at, created_at, updated_at`

var errJobNotFound = apperr.NotFound("jobs.notFound")

func (s *Store) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	query := `
		INSERT INTO jobs (user_id, name, sources, schedule, filter_config, generation_config, output_config, status, feed_uuid, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + jobColumns
	created := &models.Job{}
	err := s.db.GetContext(ctx, created, query,
		job.UserID, job.Name, job.Sources, job.Schedule, job.FilterConfig, job.GenerationConfig,
		job.OutputConfig, job.Status, uuid.NewString(), job.NextRunAt)
	if err != nil {
		log.Printf("Error creating job for user %d: %v", job.UserID, err)
		return nil, err
	}
	return created, nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	job := &models.Job{}
	err := s.db.GetContext(ctx, job, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "jobs.notFound")
	}
	return job, nil
}

func (s *Store) GetJobByFeedUUID(ctx context.Context, feedUUID string) (*models.Job, error) {
	job := &models.Job{}
	err := s.db.GetContext(ctx, job, `SELECT `+jobColumns+` FROM jobs WHERE feed_uuid = $1`, feedUUID)
	if err != nil {
		return nil, notFound(err, "jobs.notFound")
	}
	return job, nil
}

func (s *Store) ListJobsByUser(ctx context.Context, userID int64) ([]models.Job, error) {
	jobs := []models.Job{}
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		log.Printf("Error getting jobs for user %d: %v", userID, err)
		return nil, err
	}
	return jobs, nil
}

// UpdateJob replaces the user-editable fields of a job owned by job.UserID.
func (s *Store) UpdateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET name = $3, sources = $4, schedule = $5, filter_config = $6, generation_config = $7,
			output_config = $8, status = $9, next_run_at = $10, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + jobColumns
	updated := &models.Job{}
	err := s.db.GetContext(ctx, updated, query,
		job.ID, job.UserID, job.Name, job.Sources, job.Schedule, job.FilterConfig,
		job.GenerationConfig, job.OutputConfig, job.Status, job.NextRunAt)
	if err != nil {
		return nil, notFound(err, "jobs.notFound")
	}
	return updated, nil
}

func (s *Store) DeleteJob(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		log.Printf("Error deleting job %d for user %d: %v", id, userID, err)
		return err
	}
	return expectOneRow(res, errJobNotFound)
}

// ListDueJobs returns active jobs whose next run is at or before now, oldest first.
func (s *Store) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	jobs := []models.Job{}
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'active' AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2`, now, limit)
	return jobs, err
}

func (s *Store) UpdateJobSchedule(ctx context.Context, jobID int64, lastRunAt, nextRunAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET last_run_at = $2, next_run_at = $3, updated_at = NOW() WHERE id = $1`,
		jobID, lastRunAt, nextRunAt)
	return err
}
