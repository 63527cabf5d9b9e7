package models

import (
	"database/sql/driver"
	"time"
)

type PodcastStatus string

const (
	PodcastPending    PodcastStatus = "pending"
	PodcastProcessing PodcastStatus = "processing"
	PodcastDone       PodcastStatus = "done"
	PodcastFailed     PodcastStatus = "failed"
)

func (s PodcastStatus) Final() bool {
	return s == PodcastDone || s == PodcastFailed
}

const (
	SpeakerHost  = "host"
	SpeakerGuest = "guest"
)

type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Script is the two-speaker dialogue an episode is synthesized from.
type Script struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Lines       []DialogueLine `json:"lines"`
}

func (s Script) Value() (driver.Value, error) { return jsonValue(s) }
func (s *Script) Scan(src any) error          { return jsonScan(src, s) }

// Podcast is a generated episode.
type Podcast struct {
	ID           int64         `db:"id" json:"id"`
	UserID       int64         `db:"user_id" json:"userId"`
	JobID        *int64        `db:"job_id" json:"jobId"`
	Title        string        `db:"title" json:"title"`
	Description  string        `db:"description" json:"description"`
	Script       Script        `db:"script" json:"script"`
	AudioURL     string        `db:"audio_url" json:"audioUrl"`
	AudioKey     string        `db:"audio_key" json:"-"`
	AudioSize    int64         `db:"audio_size" json:"audioSize"`
	Duration     int           `db:"duration" json:"duration"`
	Status       PodcastStatus `db:"status" json:"status"`
	ErrorMessage string        `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
}

// PodcastSummary is the compact form embedded in run responses.
type PodcastSummary struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	Status       PodcastStatus `json:"status"`
	AudioURL     string        `json:"audioUrl,omitempty"`
	Duration     int           `json:"duration"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

func (p *Podcast) Summary() PodcastSummary {
	return PodcastSummary{
		ID:           p.ID,
		Title:        p.Title,
		Status:       p.Status,
		AudioURL:     p.AudioURL,
		Duration:     p.Duration,
		ErrorMessage: p.ErrorMessage,
	}
}
