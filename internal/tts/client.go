// Package tts turns dialogue lines into MP3 audio through an
// OpenAI-compatible /audio/speech endpoint.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/sony/gobreaker"

	"feedcast/internal/apperr"
	"feedcast/internal/upstream"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1/audio/speech"
	defaultModel       = "tts-1"
	defaultHTTPTimeout = 120 * time.Second
	maxAudioBytes      = 32 << 20

	// MaxInputChars is the provider's per-request input limit.
	MaxInputChars = 4000

	KeySynthesisFailed = "podcasts.synthesisFailed"
)

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
		breaker:    upstream.NewBreaker("tts"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	if c.cfg.Model == "" {
		c.cfg.Model = defaultModel
	}
	return c
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns MP3 bytes for text spoken by voice. Text longer than
// MaxInputChars is split on sentence boundaries and the parts are
// concatenated; MP3 frames are self-delimiting so this yields a playable file.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Upstream(KeySynthesisFailed, errors.New("empty text"))
	}
	if c.cfg.APIKey == "" {
		return nil, apperr.Upstream(KeySynthesisFailed, errors.New("api key required"))
	}

	var out bytes.Buffer
	for _, chunk := range SplitText(text, MaxInputChars) {
		var audio []byte
		err := upstream.Call(ctx, c.breaker, c.policy, func(ctx context.Context) error {
			var err error
			audio, err = c.speak(ctx, chunk, voice)
			return err
		})
		if err != nil {
			return nil, apperr.Upstream(KeySynthesisFailed, fmt.Errorf("tts synthesize: %w", err))
		}
		out.Write(audio)
	}
	return out.Bytes(), nil
}

func (c *Client) speak(ctx context.Context, text, voice string) ([]byte, error) {
	encoded, err := json.Marshal(speechRequest{Model: c.cfg.Model, Input: text, Voice: voice, ResponseFormat: "mp3"})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := upstream.ReadResponse(resp, maxAudioBytes)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("empty audio response")
	}
	return body, nil
}

// SplitText cuts text into pieces of at most limit runes, preferring to break
// after sentence punctuation, then whitespace.
func SplitText(text string, limit int) []string {
	runes := []rune(strings.TrimSpace(text))
	var parts []string
	for len(runes) > limit {
		cut := -1
		for i := limit - 1; i > limit/2; i-- {
			if r := runes[i]; r == '.' || r == '!' || r == '?' {
				cut = i + 1
				break
			}
		}
		if cut < 0 {
			for i := limit - 1; i > 0; i-- {
				if unicode.IsSpace(runes[i]) {
					cut = i
					break
				}
			}
		}
		if cut <= 0 {
			cut = limit
		}
		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			parts = append(parts, part)
		}
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
