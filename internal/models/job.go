package models

import (
	"database/sql/driver"
	"time"
)

type JobStatus string

const (
	JobActive JobStatus = "active"
	JobPaused JobStatus = "paused"
)

type SourceType string

const (
	SourceRSS     SourceType = "rss"
	SourceArticle SourceType = "article"
)

// Source is one content origin of a job.
type Source struct {
	Type SourceType `json:"type" validate:"required,oneof=rss article"`
	URL  string     `json:"url" validate:"required,http_url,max=2048"`
}

type Sources []Source

func (s Sources) Value() (driver.Value, error) {
	if s == nil {
		s = Sources{}
	}
	return jsonValue(s)
}

func (s *Sources) Scan(src any) error { return jsonScan(src, s) }

// FilterConfig selects which fetched articles feed an episode.
type FilterConfig struct {
	Keywords        []string `json:"keywords,omitempty" validate:"max=50,dive,max=100"`
	ExcludeKeywords []string `json:"excludeKeywords,omitempty" validate:"max=50,dive,max=100"`
	MaxAgeHours     int      `json:"maxAgeHours,omitempty" validate:"min=0,max=8760"`
	MaxItems        int      `json:"maxItems,omitempty" validate:"min=0,max=20"`
	SkipSeen        bool     `json:"skipSeen,omitempty"`
}

func (c FilterConfig) Value() (driver.Value, error) { return jsonValue(c) }
func (c *FilterConfig) Scan(src any) error          { return jsonScan(src, c) }

// GenerationConfig steers script generation and voice selection.
type GenerationConfig struct {
	HostName      string `json:"hostName,omitempty" validate:"max=50"`
	GuestName     string `json:"guestName,omitempty" validate:"max=50"`
	HostVoiceID   int64  `json:"hostVoiceId,omitempty"`
	GuestVoiceID  int64  `json:"guestVoiceId,omitempty"`
	Language      string `json:"language,omitempty" validate:"max=35"`
	Tone          string `json:"tone,omitempty" validate:"max=100"`
	TargetMinutes int    `json:"targetMinutes,omitempty" validate:"min=0,max=60"`
	Instructions  string `json:"instructions,omitempty" validate:"max=2000"`
}

func (c GenerationConfig) Value() (driver.Value, error) { return jsonValue(c) }
func (c *GenerationConfig) Scan(src any) error          { return jsonScan(src, c) }

// OutputConfig controls where a finished episode is published.
type OutputConfig struct {
	PublishRSS     bool  `json:"publishRss,omitempty"`
	NotifyEmail    bool  `json:"notifyEmail,omitempty"`
	TelegramChatID int64 `json:"telegramChatId,omitempty"`
}

func (c OutputConfig) Value() (driver.Value, error) { return jsonValue(c) }
func (c *OutputConfig) Scan(src any) error          { return jsonScan(src, c) }

// Job is a user's recurring podcast generation definition.
type Job struct {
	ID               int64            `db:"id" json:"id"`
	UserID           int64            `db:"user_id" json:"userId"`
	Name             string           `db:"name" json:"name"`
	Sources          Sources          `db:"sources" json:"sources"`
	Schedule         string           `db:"schedule" json:"schedule"`
	FilterConfig     FilterConfig     `db:"filter_config" json:"filterConfig"`
	GenerationConfig GenerationConfig `db:"generation_config" json:"generationConfig"`
	OutputConfig     OutputConfig     `db:"output_config" json:"outputConfig"`
	Status           JobStatus        `db:"status" json:"status"`
	FeedUUID         string           `db:"feed_uuid" json:"feedUuid"`
	NextRunAt        *time.Time       `db:"next_run_at" json:"nextRunAt"`
	LastRunAt        *time.Time       `db:"last_run_at" json:"lastRunAt"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`
}
