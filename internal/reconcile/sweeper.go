// Package reconcile repairs runs a crashed or restarted worker left in flight.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"feedcast/internal/db"
	"feedcast/internal/models"
	"feedcast/internal/usage"
)

type Store interface {
	ListStaleRuns(ctx context.Context, before time.Time) ([]db.StaleRun, error)
	CompleteRunUnit(ctx context.Context, runID, podcastID, userID int64, month string, finishedAt time.Time) error
	FailRun(ctx context.Context, id int64, reason models.FailureReason, message string, finishedAt time.Time) error
	FailPodcast(ctx context.Context, id int64, message string) error
}

type Sweeper struct {
	store      Store
	staleAfter time.Duration
	now        func() time.Time
}

func NewSweeper(store Store, staleAfter time.Duration, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: store, staleAfter: staleAfter, now: now}
}

// Report counts what one sweep changed.
type Report struct {
	Completed   int
	Interrupted int
	Skipped     int
}


// Sweep completes stale runs whose podcast reached done and fails the rest.
// Runs that change state concurrently are skipped.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report
	now := s.now()
	runs, err := s.store.ListStaleRuns(ctx, now.Add(-s.staleAfter))
	if err != nil {
		return report, fmt.Errorf("list stale runs: %w", err)
	}

	for _, run := range runs {
		logger := log.WithFields(log.Fields{"run": run.ID, "job": run.JobID, "status": run.Status})

		if run.Status == models.RunRunning && run.PodcastID != nil &&
			run.PodcastStatus != nil && models.PodcastStatus(*run.PodcastStatus) == models.PodcastDone {
			month := usage.MonthKey(now)
			if run.StartedAt != nil {
				month = usage.MonthKey(*run.StartedAt)
			}
			err := s.store.CompleteRunUnit(ctx, run.ID, *run.PodcastID, run.UserID, month, now)
			if errors.Is(err, db.ErrInvalidTransition) {
				report.Skipped++
				continue
			}
			if err != nil {
				return report, fmt.Errorf("complete run %d: %w", run.ID, err)
			}
			logger.Info("Completed interrupted run with finished podcast")
			report.Completed++
			continue
		}

		err := s.store.FailRun(ctx, run.ID, models.ReasonInterrupted, models.ReasonInterrupted.Message(), now)
		if errors.Is(err, db.ErrInvalidTransition) {
			report.Skipped++
			continue
		}
		if err != nil {
			return report, fmt.Errorf("fail run %d: %w", run.ID, err)
		}
		if run.PodcastID != nil && run.PodcastStatus != nil && !models.PodcastStatus(*run.PodcastStatus).Final() {
			if err := s.store.FailPodcast(ctx, *run.PodcastID, models.ReasonInterrupted.Message()); err != nil && !errors.Is(err, db.ErrPodcastFinal) {
				logger.Warnf("Error failing podcast %d: %v", *run.PodcastID, err)
			}
		}
		logger.Info("Marked stale run interrupted")
		report.Interrupted++
	}
	return report, nil
}
