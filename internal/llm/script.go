package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"feedcast/internal/models"
)

const maxArticleChars = 4000

const systemPrompt = `You write scripts for a two-person news podcast.
Respond with JSON only, in this shape:
{"title": string, "description": string, "lines": [{"speaker": "host" | "guest", "text": string}]}
The host opens and closes the episode. Speakers alternate naturally. Cover every article you are given
and do not invent facts that are not in them.`

type promptArticle struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Source  string `json:"source,omitempty"`
	Content string `json:"content,omitempty"`
}

func buildUserPrompt(req ScriptRequest) (string, error) {
	articles := make([]promptArticle, 0, len(req.Articles))
	for _, a := range req.Articles {
		articles = append(articles, promptArticle{
			Title:   a.Title,
			URL:     a.URL,
			Source:  a.Source,
			Content: truncate(a.Content, maxArticleChars),
		})
	}
	encoded, err := json.Marshal(articles)
	if err != nil {
		return "", fmt.Errorf("encode articles: %w", err)
	}

	cfg := req.Config
	var b strings.Builder
	fmt.Fprintf(&b, "Show: %s\n", req.JobName)
	fmt.Fprintf(&b, "Host name: %s\nGuest name: %s\n", req.HostName, req.GuestName)
	if cfg.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", cfg.Language)
	}
	if cfg.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", cfg.Tone)
	}
	if cfg.TargetMinutes > 0 {
		fmt.Fprintf(&b, "Target length: about %d minutes (roughly %d words)\n", cfg.TargetMinutes, cfg.TargetMinutes*150)
	}
	if cfg.Instructions != "" {
		fmt.Fprintf(&b, "Extra instructions: %s\n", cfg.Instructions)
	}
	fmt.Fprintf(&b, "Articles:\n%s\n", encoded)
	return b.String(), nil
}

func parseScript(content string) (models.Script, error) {
	var script models.Script
	if err := decodeJSON(content, &script); err != nil {
		return models.Script{}, fmt.Errorf("parse script: %w", err)
	}

	lines := script.Lines[:0]
	for _, line := range script.Lines {
		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}
		lines = append(lines, models.DialogueLine{Speaker: normalizeSpeaker(line.Speaker), Text: text})
	}
	if len(lines) == 0 {
		return models.Script{}, errors.New("parse script: no dialogue lines")
	}
	script.Lines = lines
	script.Title = strings.TrimSpace(script.Title)
	script.Description = strings.TrimSpace(script.Description)
	return script, nil
}

// normalizeSpeaker maps anything that is not clearly the guest to the host.
func normalizeSpeaker(speaker string) string {
	if strings.EqualFold(strings.TrimSpace(speaker), models.SpeakerGuest) {
		return models.SpeakerGuest
	}
	return models.SpeakerHost
}

// decodeJSON tolerates code fences and prose around the object.
func decodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}
	sanitized := stripCodeFence(trimmed)
	if start := strings.Index(sanitized, "{"); start >= 0 {
		if end := strings.LastIndex(sanitized, "}"); end > start {
			sanitized = sanitized[start : end+1]
		}
	}
	if sanitized == trimmed {
		return directErr
	}
	return json.Unmarshal([]byte(sanitized), target)
}

func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	body := strings.TrimLeft(content[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func truncate(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}
