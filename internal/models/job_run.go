package models

import (
	"database/sql/driver"
	"time"
)

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// CanTransition encodes queued -> running -> {succeeded, failed}. A queued run
// may also fail directly (enqueue failure, stale sweep).
func (s RunStatus) CanTransition(to RunStatus) bool {
	switch s {
	case RunQueued:
		return to == RunRunning || to == RunFailed
	case RunRunning:
		return to == RunSucceeded || to == RunFailed
	default:
		return false
	}
}

// FailureReason is the machine-checkable cause recorded on a failed run.
type FailureReason string

const (
	ReasonQuotaExceeded    FailureReason = "quota_exceeded"
	ReasonFetchFailed      FailureReason = "fetch_failed"
	ReasonNoContent        FailureReason = "no_content"
	ReasonGenerationFailed FailureReason = "generation_failed"
	ReasonSynthesisFailed  FailureReason = "synthesis_failed"
	ReasonStorageFailed    FailureReason = "storage_failed"
	ReasonEnqueueFailed    FailureReason = "enqueue_failed"
	ReasonInterrupted      FailureReason = "interrupted"
	ReasonInternal         FailureReason = "internal"
)

var failureMessages = map[FailureReason]string{
	ReasonQuotaExceeded:    "Monthly episode limit reached",
	ReasonFetchFailed:      "Could not fetch the job's sources",
	ReasonNoContent:        "Nothing to publish: no article matched the filters",
	ReasonGenerationFailed: "The script service is unavailable",
	ReasonSynthesisFailed:  "The speech service is unavailable",
	ReasonStorageFailed:    "Could not store the episode audio",
	ReasonEnqueueFailed:    "Could not queue the run",
	ReasonInterrupted:      "The worker stopped before the run finished",
	ReasonInternal:         "Internal error",
}

// Message is the fixed text shown to users for a failed run. Error details
// stay in the logs.
func (r FailureReason) Message() string {
	if m, ok := failureMessages[r]; ok {
		return m
	}
	return failureMessages[ReasonInternal]
}

// Article is one content item, as fetched and as recorded on a run.
type Article struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Source      string     `json:"source,omitempty"`
	Content     string     `json:"content,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

type Articles []Article

// Value stores a nil slice as SQL NULL so "not yet selected" stays distinguishable.
func (a Articles) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return jsonValue(a)
}

func (a *Articles) Scan(src any) error { return jsonScan(src, a) }

// JobRun is one execution attempt of a Job.
type JobRun struct {
	ID               int64      `db:"id" json:"id"`
	JobID            int64      `db:"job_id" json:"jobId"`
	Status           RunStatus  `db:"status" json:"status"`
	StartedAt        *time.Time `db:"started_at" json:"startedAt"`
	FinishedAt       *time.Time `db:"finished_at" json:"finishedAt"`
	PodcastID        *int64     `db:"podcast_id" json:"podcastId"`
	SelectedArticles Articles   `db:"selected_articles" json:"selectedArticles"`
	FailureReason    string     `db:"failure_reason" json:"failureReason,omitempty"`
	ErrorMessage     string     `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
}
