// Package feed renders a job's finished episodes as a podcast RSS feed.
package feed

import (
	"fmt"

	"github.com/eduncan911/podcast"

	"feedcast/internal/models"
)

// FeedURL is the public address of a job's feed.
func FeedURL(baseURL string, job *models.Job) string {
	return fmt.Sprintf("%s/rss/%s", baseURL, job.FeedUUID)
}

// GenerateRSS lists done podcasts in the order given, newest first. Podcasts
// without audio are skipped.
func GenerateRSS(job *models.Job, podcasts []models.Podcast, baseURL string) (string, error) {
	updated := job.UpdatedAt
	if len(podcasts) > 0 && podcasts[0].UpdatedAt.After(updated) {
		updated = podcasts[0].UpdatedAt
	}
	created := job.CreatedAt

	p := podcast.New(
		job.Name,
		FeedURL(baseURL, job),
		fmt.Sprintf("Episodes generated by feedcast for %s.", job.Name),
		&created, &updated,
	)
	p.Generator = "feedcast"
	if lang := job.GenerationConfig.Language; lang != "" {
		p.Language = lang
	}

	for _, pc := range podcasts {
		if pc.Status != models.PodcastDone || pc.AudioURL == "" {
			continue
		}
		title := pc.Title
		if title == "" {
			title = job.Name
		}
		description := pc.Description
		if description == "" {
			description = title
		}
		pubDate := pc.UpdatedAt
		item := podcast.Item{
			GUID:        fmt.Sprintf("feedcast-podcast-%d", pc.ID),
			Title:       title,
			Description: description,
			PubDate:     &pubDate,
		}
		item.AddEnclosure(pc.AudioURL, podcast.MP3, pc.AudioSize)
		if pc.Duration > 0 {
			item.AddDuration(int64(pc.Duration))
		}
		if _, err := p.AddItem(item); err != nil {
			return "", err
		}
	}

	return p.String(), nil
}

