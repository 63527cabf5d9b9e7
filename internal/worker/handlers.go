// Package worker holds the asynq task handlers of the worker process.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/db"
	"feedcast/internal/models"
	"feedcast/internal/pipeline"
	"feedcast/internal/reconcile"
	"feedcast/internal/schedule"
	"feedcast/pkg/tasks"
)

const defaultScanBatch = 100

type Store interface {
	DispatchStore
	ListDueJobs(ctx context.Context, now time.Time, limit int) ([]models.Job, error)
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	UpdateJobSchedule(ctx context.Context, jobID int64, lastRunAt, nextRunAt *time.Time) error
}

type Executor interface {
	Execute(ctx context.Context, runID int64) (pipeline.Result, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (reconcile.Report, error)
}

type TaskHandler struct {
	store      Store
	dispatcher *Dispatcher
	executor   Executor
	sweeper    Sweeper
	batchSize  int
	now        func() time.Time
}

func NewTaskHandler(store Store, dispatcher *Dispatcher, executor Executor, sweeper Sweeper, batchSize int) *TaskHandler {
	if batchSize <= 0 {
		batchSize = defaultScanBatch
	}
	return &TaskHandler{
		store:      store,
		dispatcher: dispatcher,
		executor:   executor,
		sweeper:    sweeper,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// Register attaches every handler to mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeScanJobs, h.HandleScanJobsTask)
	mux.HandleFunc(tasks.TypeRunJob, h.HandleRunJobTask)
	mux.HandleFunc(tasks.TypeReconcile, h.HandleReconcileTask)
}

// HandleScanJobsTask dispatches every due job. One job's failure does not
// stop the scan.
func (h *TaskHandler) HandleScanJobsTask(ctx context.Context, t *asynq.Task) error {
	jobs, err := h.store.ListDueJobs(ctx, h.now(), h.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list due jobs: %w", err)
	}

	dispatched := 0
	for i := range jobs {
		job := &jobs[i]
		_, err := h.dispatcher.Dispatch(ctx, job)
		switch {
		case err == nil:
			dispatched++
		case errors.Is(err, db.ErrRunInFlight):
			log.Debugf("Job %d already has a run in flight", job.ID)
		default:
			log.Printf("Error dispatching job %d: %v", job.ID, err)
		}
	}
	if len(jobs) > 0 {
		log.Printf("Scan found %d due jobs, dispatched %d", len(jobs), dispatched)
	}
	return nil
}

// HandleRunJobTask executes a run and advances its job's schedule. Failures
// recorded on the run are not task errors.
func (h *TaskHandler) HandleRunJobTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.RunJobTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	res, err := h.executor.Execute(ctx, p.RunID)
	if errors.Is(err, db.ErrInvalidTransition) {
		log.Printf("Skipping run %d: %v", p.RunID, err)
		return nil
	}
	if !res.StartedAt.IsZero() {
		h.advanceSchedule(context.WithoutCancel(ctx), p.JobID, res.StartedAt)
	}
	if err != nil {
		return fmt.Errorf("run %d: %w", p.RunID, err)
	}
	return nil
}

func (h *TaskHandler) advanceSchedule(ctx context.Context, jobID int64, startedAt time.Time) {
	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("Error loading job %d to advance schedule: %v", jobID, err)
		return
	}
	var nextRunAt *time.Time
	if next, err := schedule.Next(job.Schedule, h.now()); err != nil {
		log.Printf("Job %d has an unusable schedule %q, not rescheduling: %v", jobID, job.Schedule, err)
	} else {
		nextRunAt = &next
	}
	if err := h.store.UpdateJobSchedule(ctx, jobID, &startedAt, nextRunAt); err != nil {
		log.Printf("Error updating schedule of job %d: %v", jobID, err)
	}
}

func (h *TaskHandler) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	report, err := h.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if report != (reconcile.Report{}) {
		log.Printf("Reconcile: %d completed, %d interrupted, %d skipped", report.Completed, report.Interrupted, report.Skipped)
	}
	return nil
}
