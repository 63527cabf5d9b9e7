// Package config loads process configuration from the environment (and an
// optional .env file) into typed structs.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string
	BaseURL     string
	LogLevel    string
	LogFormat   string

	Auth     AuthConfig
	Plans    PlanConfig
	Worker   WorkerConfig
	LLM      ServiceConfig
	TTS      ServiceConfig
	Storage  StorageConfig
	Email    EmailConfig
	Telegram TelegramConfig
	Limits   RateLimitConfig

	FFprobePath string
}

type AuthConfig struct {
	Secret        string
	CookieName    string
	CookieSecure  bool
	TokenTTL      time.Duration
	ResetTokenTTL time.Duration
}

type PlanConfig struct {
	FreeLimit int
	ProLimit  int
}

type WorkerConfig struct {
	Concurrency       int
	ScanInterval      string
	ReconcileInterval string
	StaleRunAfter     time.Duration
	ScanBatchSize     int
}

// ServiceConfig describes an OpenAI-compatible upstream (LLM or TTS).
type ServiceConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

type StorageConfig struct {
	Driver      string
	LocalPath   string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
}

type EmailConfig struct {
	Provider       string
	From           string
	MailgunDomain  string
	MailgunAPIKey  string
	SendGridAPIKey string
}

type TelegramConfig struct {
	BotToken string
	// Polling starts the long-polling command bot inside the API server.
	Polling bool
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"REDIS_ADDR":           "127.0.0.1:6379",
	"BASE_URL":             "http://localhost:8080",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "text",
	"AUTH_COOKIE_NAME":     "feedcast_session",
	"AUTH_TOKEN_TTL":       "720h",
	"COOKIE_SECURE":        false,
	"RESET_TOKEN_TTL":      "1h",
	"PLAN_FREE_LIMIT":      5,
	"PLAN_PRO_LIMIT":       100,
	"WORKER_CONCURRENCY":   4,
	"SCAN_INTERVAL":        "@every 1m",
	"RECONCILE_INTERVAL":   "@every 1h",
	"STALE_RUN_AFTER":      "2h",
	"SCAN_BATCH_SIZE":      100,
	"LLM_BASE_URL":         "https://api.openai.com/v1/chat/completions",
	"LLM_MODEL":            "gpt-4o-mini",
	"LLM_TIMEOUT_SECONDS":  120,
	"TTS_BASE_URL":         "https://api.openai.com/v1/audio/speech",
	"TTS_MODEL":            "tts-1",
	"TTS_TIMEOUT_SECONDS":  120,
	"STORAGE_DRIVER":       "local",
	"AUDIO_STORAGE_PATH":   "audio",
	"S3_REGION":            "us-east-1",
	"EMAIL_PROVIDER":       "log",
	"EMAIL_FROM":           "feedcast <no-reply@localhost>",
	"FFPROBE_PATH":         "ffprobe",
	"TELEGRAM_BOT_POLLING": false,
	"RATE_LIMIT_RPS":       5.0,
	"RATE_LIMIT_BURST":     10,
}

// Load reads .env (if present) and the environment. Missing .env is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file loaded")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        v.GetString("PORT"),
		DatabaseURL: strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:   v.GetString("REDIS_ADDR"),
		BaseURL:     strings.TrimRight(v.GetString("BASE_URL"), "/"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogFormat:   v.GetString("LOG_FORMAT"),
		Auth: AuthConfig{
			Secret:        v.GetString("AUTH_SECRET"),
			CookieName:    v.GetString("AUTH_COOKIE_NAME"),
			CookieSecure:  v.GetBool("COOKIE_SECURE"),
			TokenTTL:      v.GetDuration("AUTH_TOKEN_TTL"),
			ResetTokenTTL: v.GetDuration("RESET_TOKEN_TTL"),
		},
		Plans: PlanConfig{
			FreeLimit: v.GetInt("PLAN_FREE_LIMIT"),
			ProLimit:  v.GetInt("PLAN_PRO_LIMIT"),
		},
		Worker: WorkerConfig{
			Concurrency:       v.GetInt("WORKER_CONCURRENCY"),
			ScanInterval:      v.GetString("SCAN_INTERVAL"),
			ReconcileInterval: v.GetString("RECONCILE_INTERVAL"),
			StaleRunAfter:     v.GetDuration("STALE_RUN_AFTER"),
			ScanBatchSize:     v.GetInt("SCAN_BATCH_SIZE"),
		},
		LLM: ServiceConfig{
			BaseURL:        v.GetString("LLM_BASE_URL"),
			APIKey:         v.GetString("LLM_API_KEY"),
			Model:          v.GetString("LLM_MODEL"),
			TimeoutSeconds: v.GetInt("LLM_TIMEOUT_SECONDS"),
		},
		TTS: ServiceConfig{
			BaseURL:        v.GetString("TTS_BASE_URL"),
			APIKey:         v.GetString("TTS_API_KEY"),
			Model:          v.GetString("TTS_MODEL"),
			TimeoutSeconds: v.GetInt("TTS_TIMEOUT_SECONDS"),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
			LocalPath:   v.GetString("AUDIO_STORAGE_PATH"),
			S3Bucket:    v.GetString("S3_BUCKET"),
			S3Region:    v.GetString("S3_REGION"),
			S3Endpoint:  v.GetString("S3_ENDPOINT"),
			S3AccessKey: v.GetString("S3_ACCESS_KEY_ID"),
			S3SecretKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			S3PublicURL: strings.TrimRight(v.GetString("S3_PUBLIC_URL"), "/"),
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(v.GetString("EMAIL_PROVIDER")),
			From:           v.GetString("EMAIL_FROM"),
			MailgunDomain:  v.GetString("MAILGUN_DOMAIN"),
			MailgunAPIKey:  v.GetString("MAILGUN_API_KEY"),
			SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		},
		Telegram: TelegramConfig{
			BotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
			Polling:  v.GetBool("TELEGRAM_BOT_POLLING"),
		},
		Limits: RateLimitConfig{
			RPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			Burst: v.GetInt("RATE_LIMIT_BURST"),
		},
		FFprobePath: v.GetString("FFPROBE_PATH"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	if cfg.Plans.FreeLimit < 0 || cfg.Plans.ProLimit < 0 {
		return nil, errors.New("plan limits must not be negative")
	}
	if cfg.Worker.Concurrency < 1 {
		cfg.Worker.Concurrency = 1
	}
	return cfg, nil
}

// RequireAuthSecret is checked by the API server only; the worker never signs tokens.
func (c *Config) RequireAuthSecret() error {
	if len(c.Auth.Secret) < 32 {
		return errors.New("AUTH_SECRET must be at least 32 characters")
	}
	return nil
}
