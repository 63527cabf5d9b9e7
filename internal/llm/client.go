// Package llm generates two-speaker podcast scripts through an
// OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
	"feedcast/internal/upstream"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1/chat/completions"
	defaultHTTPTimeout = 120 * time.Second
	maxResponseBytes   = 8 << 20

	// KeyGenerationFailed is the error key of every failed Generate call.
	KeyGenerationFailed = "podcasts.generationFailed"
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     upstream.Policy
	breaker    *gobreaker.CircuitBreaker
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.policy.MaxAttempts = attempts }
}

func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.policy.BaseDelay = baseDelay
		c.policy.MaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.policy.Sleep = sleeper }
}

func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimSpace(cfg.BaseURL),
			Model:   strings.TrimSpace(cfg.Model),
		},
		httpClient: &http.Client{Timeout: timeout},
		policy:     upstream.DefaultPolicy(),
		breaker:    upstream.NewBreaker("llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	return c
}

// ScriptRequest is everything the model sees when writing an episode.
type ScriptRequest struct {
	JobName   string
	HostName  string
	GuestName string
	Config    models.GenerationConfig
	Articles  models.Articles
}

// Generate asks the model for a dialogue about req.Articles. Any failure is
// returned as an Upstream error keyed KeyGenerationFailed.
func (c *Client) Generate(ctx context.Context, req ScriptRequest) (models.Script, error) {
	if len(req.Articles) == 0 {
		return models.Script{}, apperr.Upstream(KeyGenerationFailed, errors.New("no articles"))
	}
	if c.cfg.APIKey == "" {
		return models.Script{}, apperr.Upstream(KeyGenerationFailed, errors.New("api key required"))
	}

	userPrompt, err := buildUserPrompt(req)
	if err != nil {
		return models.Script{}, apperr.Upstream(KeyGenerationFailed, err)
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.7,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var content string
	err = upstream.Call(ctx, c.breaker, c.policy, func(ctx context.Context) error {
		var err error
		content, err = c.complete(ctx, payload)
		return err
	})
	if err != nil {
		return models.Script{}, apperr.Upstream(KeyGenerationFailed, fmt.Errorf("llm generate: %w", err))
	}

	script, err := parseScript(content)
	if err != nil {
		return models.Script{}, apperr.Upstream(KeyGenerationFailed, fmt.Errorf("llm generate: %w", err))
	}
	return script, nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, payload chatCompletionRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := upstream.ReadResponse(resp, maxResponseBytes)
	if err != nil {
		return "", err
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if choice.Message.Refusal != "" {
			return "", fmt.Errorf("model refused: %s", choice.Message.Refusal)
		}
	}
	return "", errors.New("empty completion")
}
