// Package filter selects the articles that go into an episode.
package filter

import (
	"sort"
	"strings"
	"time"

	"feedcast/internal/models"
)

const (
	DefaultMaxItems = 5
	MaxItems        = 20
)

// Apply returns the articles that pass cfg, newest first, at most MaxItems.
//
// Keywords match case-insensitively against title and content: an article
// needs at least one keyword (when any are configured) and none of the
// excluded ones. Articles without a publish date are never dropped for age.
// URLs in seen are skipped only when cfg.SkipSeen is set.
func Apply(items []models.Article, cfg models.FilterConfig, seen map[string]bool, now time.Time) models.Articles {
	limit := cfg.MaxItems
	if limit <= 0 {
		limit = DefaultMaxItems
	}
	if limit > MaxItems {
		limit = MaxItems
	}

	sorted := make([]models.Article, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].PublishedAt, sorted[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	keywords := lower(cfg.Keywords)
	excluded := lower(cfg.ExcludeKeywords)
	var cutoff time.Time
	if cfg.MaxAgeHours > 0 {
		cutoff = now.Add(-time.Duration(cfg.MaxAgeHours) * time.Hour)
	}

	out := models.Articles{}
	used := make(map[string]bool, len(sorted))
	for _, item := range sorted {
		if len(out) == limit {
			break
		}
		url := strings.TrimSpace(item.URL)
		if url == "" || used[url] {
			continue
		}
		if cfg.SkipSeen && seen[url] {
			continue
		}
		if !cutoff.IsZero() && item.PublishedAt != nil && item.PublishedAt.Before(cutoff) {
			continue
		}
		text := strings.ToLower(item.Title + "\n" + item.Content)
		if len(keywords) > 0 && !containsAny(text, keywords) {
			continue
		}
		if containsAny(text, excluded) {
			continue
		}
		used[url] = true
		out = append(out, item)
	}
	return out
}

func lower(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
