package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
	"feedcast/pkg/tasks"
)

type DispatchStore interface {
	CreateQueuedRun(ctx context.Context, jobID int64) (*models.JobRun, error)
	FailRun(ctx context.Context, id int64, reason models.FailureReason, message string, finishedAt time.Time) error
}

// Dispatcher creates a queued run for a job and hands it to the worker queue.
// The scan task and the manual trigger endpoint share it.
type Dispatcher struct {
	store    DispatchStore
	enqueuer tasks.TaskEnqueuer
	now      func() time.Time
}

func NewDispatcher(store DispatchStore, enqueuer tasks.TaskEnqueuer) *Dispatcher {
	return &Dispatcher{store: store, enqueuer: enqueuer, now: time.Now}
}

// Dispatch returns db.ErrRunInFlight when the job already has a queued or
// running run. If the task cannot be enqueued the new run is marked failed.
func (d *Dispatcher) Dispatch(ctx context.Context, job *models.Job) (*models.JobRun, error) {
	run, err := d.store.CreateQueuedRun(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	task, err := tasks.NewRunJobTask(run.ID, job.ID)
	if err == nil {
		_, err = d.enqueuer.Enqueue(task, asynq.TaskID(tasks.RunJobTaskID(run.ID)), asynq.MaxRetry(0))
	}
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		err = nil
	}
	if err != nil {
		log.Printf("Error enqueuing run %d for job %d: %v", run.ID, job.ID, err)
		if ferr := d.store.FailRun(context.WithoutCancel(ctx), run.ID, models.ReasonEnqueueFailed, models.ReasonEnqueueFailed.Message(), d.now()); ferr != nil {
			log.Printf("Error failing run %d: %v", run.ID, ferr)
		}
		return nil, apperr.Internal(fmt.Errorf("enqueue run %d: %w", run.ID, err))
	}

	log.WithFields(log.Fields{"run": run.ID, "job": job.ID}).Info("Run queued")
	return run, nil
}
