package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcast/internal/apperr"
	"feedcast/internal/db"
	"feedcast/internal/models"
	"feedcast/internal/pipeline"
	"feedcast/internal/reconcile"
	"feedcast/internal/test"
	"feedcast/pkg/tasks"
)

var now = time.Date(2026, 10, 14, 7, 0, 30, 0, time.UTC)

type fakeExecutor struct {
	store *test.MemStore
	err   error
	ran   []int64
}

func (f *fakeExecutor) Execute(ctx context.Context, runID int64) (pipeline.Result, error) {
	f.ran = append(f.ran, runID)
	if f.err != nil {
		return pipeline.Result{RunID: runID}, f.err
	}
	started := now
	if err := f.store.MarkRunRunning(ctx, runID, started); err != nil {
		return pipeline.Result{RunID: runID}, err
	}
	_ = f.store.FailRun(ctx, runID, models.ReasonNoContent, "nothing to publish", now)
	return pipeline.Result{RunID: runID, Status: models.RunFailed, Reason: models.ReasonNoContent, StartedAt: started}, nil
}

type fakeSweeper struct {
	report reconcile.Report
	calls  int
}

func (f *fakeSweeper) Sweep(ctx context.Context) (reconcile.Report, error) {
	f.calls++
	return f.report, nil
}

func setup(t *testing.T) (*test.MemStore, *test.MockTaskEnqueuer, *fakeExecutor, *TaskHandler) {
	store := test.NewMemStore()
	enqueuer := &test.MockTaskEnqueuer{}
	exec := &fakeExecutor{store: store}
	dispatcher := NewDispatcher(store, enqueuer)
	dispatcher.now = func() time.Time { return now }
	h := NewTaskHandler(store, dispatcher, exec, &fakeSweeper{}, 10)
	h.now = func() time.Time { return now }
	return store, enqueuer, exec, h
}

func dueJob(store *test.MemStore, userID int64) *models.Job {
	due := now.Add(-time.Minute)
	return store.AddJob(&models.Job{UserID: userID, Schedule: "0 7 * * *", NextRunAt: &due})
}

func TestHandleScanJobsTaskDispatchesDueJobs(t *testing.T) {
	store, enqueuer, _, h := setup(t)
	user := store.AddUser(&models.User{})
	job := dueJob(store, user.ID)
	later := now.Add(time.Hour)
	store.AddJob(&models.Job{UserID: user.ID, Schedule: "@daily", NextRunAt: &later})
	store.AddJob(&models.Job{UserID: user.ID, Schedule: "@daily", NextRunAt: &now, Status: models.JobPaused})

	require.NoError(t, h.HandleScanJobsTask(context.Background(), asynq.NewTask(tasks.TypeScanJobs, nil)))

	require.Len(t, enqueuer.EnqueuedTasks, 1)
	task := enqueuer.EnqueuedTasks[0]
	assert.Equal(t, tasks.TypeRunJob, task.Type())

	var p tasks.RunJobTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, job.ID, p.JobID)
	assert.Equal(t, models.RunQueued, store.Run(p.RunID).Status)
	assert.Len(t, enqueuer.Options[0], 2)
}

func TestHandleScanJobsTaskSkipsJobsInFlight(t *testing.T) {
	store, enqueuer, _, h := setup(t)
	user := store.AddUser(&models.User{})
	dueJob(store, user.ID)

	task := asynq.NewTask(tasks.TypeScanJobs, nil)
	require.NoError(t, h.HandleScanJobsTask(context.Background(), task))
	require.NoError(t, h.HandleScanJobsTask(context.Background(), task))

	assert.Len(t, enqueuer.EnqueuedTasks, 1)
	assert.Len(t, store.Runs, 1)
}

func TestHandleScanJobsTaskContinuesAfterError(t *testing.T) {
	store, enqueuer, _, h := setup(t)
	user := store.AddUser(&models.User{})
	broken := dueJob(store, user.ID)
	healthy := dueJob(store, user.ID)
	store.CreateRunErr[broken.ID] = errors.New("connection refused")

	require.NoError(t, h.HandleScanJobsTask(context.Background(), asynq.NewTask(tasks.TypeScanJobs, nil)))

	require.Len(t, enqueuer.EnqueuedTasks, 1)
	var p tasks.RunJobTaskPayload
	require.NoError(t, json.Unmarshal(enqueuer.EnqueuedTasks[0].Payload(), &p))
	assert.Equal(t, healthy.ID, p.JobID)
}

func TestDispatchEnqueueFailureFailsRun(t *testing.T) {
	store, enqueuer, _, h := setup(t)
	user := store.AddUser(&models.User{})
	job := dueJob(store, user.ID)
	enqueuer.Err = errors.New("redis down")

	_, err := h.dispatcher.Dispatch(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	require.Len(t, store.Runs, 1)
	for id := range store.Runs {
		run := store.Run(id)
		assert.Equal(t, models.RunFailed, run.Status)
		assert.Equal(t, string(models.ReasonEnqueueFailed), run.FailureReason)
	}

	// The job is dispatchable again once redis is back.
	enqueuer.Err = nil
	_, err = h.dispatcher.Dispatch(context.Background(), job)
	assert.NoError(t, err)
}

func TestHandleRunJobTaskAdvancesSchedule(t *testing.T) {
	store, _, exec, h := setup(t)
	user := store.AddUser(&models.User{})
	job := dueJob(store, user.ID)
	run, err := store.CreateQueuedRun(context.Background(), job.ID)
	require.NoError(t, err)

	task, err := tasks.NewRunJobTask(run.ID, job.ID)
	require.NoError(t, err)
	require.NoError(t, h.HandleRunJobTask(context.Background(), task))

	assert.Equal(t, []int64{run.ID}, exec.ran)
	updated, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastRunAt)
	assert.Equal(t, now, *updated.LastRunAt)
	require.NotNil(t, updated.NextRunAt)
	assert.Equal(t, time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC), *updated.NextRunAt)
}

func TestHandleRunJobTaskSkipsFinishedRun(t *testing.T) {
	store, _, exec, h := setup(t)
	exec.err = db.ErrInvalidTransition
	user := store.AddUser(&models.User{})
	job := dueJob(store, user.ID)

	task, err := tasks.NewRunJobTask(999, job.ID)
	require.NoError(t, err)
	assert.NoError(t, h.HandleRunJobTask(context.Background(), task))
}

func TestHandleRunJobTaskBadPayload(t *testing.T) {
	_, _, _, h := setup(t)
	err := h.HandleRunJobTask(context.Background(), asynq.NewTask(tasks.TypeRunJob, []byte("{")))
	assert.Error(t, err)
}

func TestHandleReconcileTask(t *testing.T) {
	_, _, _, h := setup(t)
	sweeper := h.sweeper.(*fakeSweeper)
	sweeper.report = reconcile.Report{Interrupted: 2}
	require.NoError(t, h.HandleReconcileTask(context.Background(), asynq.NewTask(tasks.TypeReconcile, nil)))
	assert.Equal(t, 1, sweeper.calls)
}
