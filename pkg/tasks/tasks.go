package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TypeScanJobs  = "jobs:scan"
	TypeRunJob    = "job:run"
	TypeReconcile = "usage:reconcile"
)

type RunJobTaskPayload struct {
	RunID int64
	JobID int64
}

func NewRunJobTask(runID, jobID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(RunJobTaskPayload{RunID: runID, JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRunJob, payload), nil
}

// RunJobTaskID dedupes a run in the queue: asynq rejects a second task with the same ID.
func RunJobTaskID(runID int64) string {
	return fmt.Sprintf("run:%d", runID)
}

func NewScanJobsTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeScanJobs, nil), nil
}

func NewReconcileTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeReconcile, nil), nil
}

// TaskEnqueuer is the part of *asynq.Client used to queue work.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
