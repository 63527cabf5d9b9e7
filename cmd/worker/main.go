package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/config"
	"feedcast/internal/content"
	"feedcast/internal/db"
	"feedcast/internal/llm"
	"feedcast/internal/logging"
	"feedcast/internal/mailer"
	"feedcast/internal/media"
	"feedcast/internal/models"
	"feedcast/internal/pipeline"
	"feedcast/internal/publish"
	"feedcast/internal/reconcile"
	"feedcast/internal/storage"
	"feedcast/internal/tts"
	"feedcast/internal/usage"
	"feedcast/internal/worker"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db.InitDB(cfg.DatabaseURL)
	if err := db.ApplySchema(ctx, db.DB); err != nil {
		log.Fatalf("Error applying schema: %v", err)
	}
	store := db.New(db.DB)

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	orchestrator, err := newOrchestrator(ctx, cfg, store)
	if err != nil {
		log.Fatal(err)
	}
	sweeper := reconcile.NewSweeper(store, cfg.Worker.StaleRunAfter, nil)
	taskHandler := worker.NewTaskHandler(store, worker.NewDispatcher(store, client), orchestrator, sweeper, cfg.Worker.ScanBatchSize)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			// Run tasks never retry; this only paces scan and reconcile retries.
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Minute
				maxDelay := time.Hour
				for i := 0; i < n; i++ {
					delay *= 2
					if delay > maxDelay {
						delay = maxDelay
						break
					}
				}
				log.Printf("Task %s failed %d times, retrying in %v", task.Type(), n+1, delay)
				return delay
			},
			ShutdownTimeout: 30 * time.Second,
		},
	)

	mux := asynq.NewServeMux()
	taskHandler.Register(mux)

	log.Printf("Worker starting with concurrency %d (commit: %s)", cfg.Worker.Concurrency, CommitSHA)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}

func newOrchestrator(ctx context.Context, cfg *config.Config, store *db.Store) (*pipeline.Orchestrator, error) {
	audio, err := storage.New(ctx, cfg.Storage, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	mail, err := mailer.New(cfg.Email)
	if err != nil {
		return nil, err
	}

	// A nil interface, not a nil *BotAPI, disables the Telegram channel.
	var bot publish.BotSender
	if cfg.Telegram.BotToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			log.Printf("Telegram notifications disabled: %v", err)
		} else {
			bot = api
		}
	}

	limits := usage.Limits{
		models.PlanFree: cfg.Plans.FreeLimit,
		models.PlanPro:  cfg.Plans.ProLimit,
	}

	return pipeline.New(pipeline.Deps{
		Store:   store,
		Quota:   usage.NewLedger(store, limits),
		Fetcher: content.NewFetcher(nil),
		Generator: llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		}),
		Synthesizer: tts.NewClient(tts.Config{
			APIKey:         cfg.TTS.APIKey,
			BaseURL:        cfg.TTS.BaseURL,
			Model:          cfg.TTS.Model,
			TimeoutSeconds: cfg.TTS.TimeoutSeconds,
		}),
		Prober:   media.Prober{Binary: cfg.FFprobePath},
		Storage:  audio,
		Notifier: publish.NewNotifier(mail, bot, cfg.BaseURL),
		TempDir:  os.TempDir(),
	}), nil
}
