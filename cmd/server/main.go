package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/auth"
	"feedcast/internal/config"
	"feedcast/internal/db"
	"feedcast/internal/handlers"
	"feedcast/internal/logging"
	"feedcast/internal/mailer"
	"feedcast/internal/middleware"
	"feedcast/internal/models"
	"feedcast/internal/storage"
	"feedcast/internal/usage"
	"feedcast/internal/worker"
	"feedcast/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.RequireAuthSecret(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db.InitDB(cfg.DatabaseURL)
	if err := db.ApplySchema(ctx, db.DB); err != nil {
		log.Fatalf("Error applying schema: %v", err)
	}
	store := db.New(db.DB)

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	audio, err := storage.New(ctx, cfg.Storage, cfg.BaseURL)
	if err != nil {
		log.Fatalf("Error configuring storage: %v", err)
	}
	mail, err := mailer.New(cfg.Email)
	if err != nil {
		log.Fatalf("Error configuring mailer: %v", err)
	}

	router, h := newServer(cfg, store, client, audio, mail)

	if cfg.Telegram.Polling && cfg.Telegram.BotToken != "" {
		go func() {
			if err := h.StartTelegramBot(ctx, cfg.Telegram.BotToken); err != nil {
				log.Printf("Telegram bot stopped: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	log.Printf("Starting server on :%s (commit: %s)", cfg.Port, CommitSHA)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// newServer wires the handlers and returns the router serving them.
func newServer(cfg *config.Config, store *db.Store, enqueuer tasks.TaskEnqueuer, audio storage.Storage, mail mailer.Sender) (http.Handler, *handlers.Handlers) {
	tokens := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	limits := usage.Limits{
		models.PlanFree: cfg.Plans.FreeLimit,
		models.PlanPro:  cfg.Plans.ProLimit,
	}

	h := handlers.New(handlers.Deps{
		Store:      store,
		Tokens:     tokens,
		Ledger:     usage.NewLedger(store, limits),
		Dispatcher: worker.NewDispatcher(store, enqueuer),
		Storage:    audio,
		Mailer:     mail,
		Config:     cfg,
	})

	var audioHandler http.Handler
	if local, ok := audio.(*storage.Local); ok {
		audioHandler = local.Handler()
	}
	authn := middleware.NewAuthenticator(tokens, store, cfg.Auth.CookieName)
	return newRouter(h, authn, cfg.Limits, audioHandler), h
}
