// Package handlers implements the JSON API, the public RSS feeds and the
// Telegram command bot.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"feedcast/internal/apperr"
	"feedcast/internal/auth"
	"feedcast/internal/config"
	"feedcast/internal/db"
	"feedcast/internal/httpx"
	"feedcast/internal/mailer"
	"feedcast/internal/storage"
	"feedcast/internal/usage"
	"feedcast/internal/worker"
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	Store      *db.Store
	Tokens     *auth.TokenManager
	Ledger     *usage.Ledger
	Dispatcher *worker.Dispatcher
	Storage    storage.Storage
	Mailer     mailer.Sender
	Config     *config.Config
	Now        func() time.Time
}

type Handlers struct {
	store      *db.Store
	tokens     *auth.TokenManager
	ledger     *usage.Ledger
	dispatcher *worker.Dispatcher
	storage    storage.Storage
	mail       mailer.Sender
	cfg        *config.Config
	now        func() time.Time
}

func New(deps Deps) *Handlers {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Handlers{
		store:      deps.Store,
		tokens:     deps.Tokens,
		ledger:     deps.Ledger,
		dispatcher: deps.Dispatcher,
		storage:    deps.Storage,
		mail:       deps.Mailer,
		cfg:        deps.Config,
		now:        now,
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identity returns the caller set by the auth middleware. Routes mounted
// without it must not call this.
func identity(r *http.Request) (auth.Identity, error) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	return id, nil
}

// pathID parses a numeric mux variable. Malformed ids are reported as the
// resource being absent.
func pathID(r *http.Request, name, notFoundKey string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NotFound(notFoundKey)
	}
	return id, nil
}
