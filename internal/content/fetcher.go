// Package content fetches articles from a job's sources.
package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
)

const (
	defaultTimeout  = 30 * time.Second
	maxArticleBytes = 5 << 20
	userAgent       = "feedcast/1.0 (+https://github.com/feedcast)"

	KeyFetchFailed = "jobs.fetchFailed"
)

type Fetcher struct {
	client *http.Client
}

// NewFetcher uses client as is. A nil client gets NewGuardedClient, which
// refuses internal destinations.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = NewGuardedClient(defaultTimeout)
	}
	return &Fetcher{client: client}
}

// Fetch merges the items of every source. A failing source fails the whole
// fetch so a run never silently drops part of its content.
func (f *Fetcher) Fetch(ctx context.Context, sources models.Sources) ([]models.Article, error) {
	var items []models.Article
	for _, src := range sources {
		var (
			got []models.Article
			err error
		)
		switch src.Type {
		case models.SourceRSS:
			got, err = f.fetchFeed(ctx, src.URL)
		case models.SourceArticle:
			var a models.Article
			a, err = f.fetchArticle(ctx, src.URL)
			got = []models.Article{a}
		default:
			err = fmt.Errorf("unknown source type %q", src.Type)
		}
		if err != nil {
			return nil, apperr.Upstream(KeyFetchFailed, fmt.Errorf("fetch %s: %w", src.URL, err))
		}
		log.Printf("Fetched %d items from %s", len(got), src.URL)
		items = append(items, got...)
	}
	return items, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, url string) ([]models.Article, error) {
	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = userAgent
	feed, err := parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, err
	}

	items := make([]models.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		body := item.Content
		if body == "" {
			body = item.Description
		}
		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		items = append(items, models.Article{
			Title:       strings.TrimSpace(item.Title),
			URL:         strings.TrimSpace(item.Link),
			Source:      strings.TrimSpace(feed.Title),
			Content:     TextFromHTML(body),
			PublishedAt: published,
		})
	}
	return items, nil
}

func (f *Fetcher) fetchArticle(ctx context.Context, url string) (models.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Article{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return models.Article{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Article{}, fmt.Errorf("http %d", resp.StatusCode)
	}

	page, err := ParsePage(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return models.Article{}, err
	}
	title := page.Title
	if title == "" {
		title = url
	}
	return models.Article{Title: title, URL: url, Source: req.URL.Host, Content: page.Text}, nil
}
