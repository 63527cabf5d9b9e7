package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"feedcast/internal/config"
	"feedcast/internal/handlers"
	"feedcast/internal/middleware"
	"feedcast/internal/storage"
)

// newRouter mounts the public routes, the auth endpoints and the
// cookie-protected API. audio is nil unless audio is stored locally.
func newRouter(h *handlers.Handlers, authn *middleware.Authenticator, limits config.RateLimitConfig, audio http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/rss/{uuid}", h.GetRSSFeed).Methods(http.MethodGet)
	if audio != nil {
		r.PathPrefix(storage.AudioPrefix).Handler(audio).Methods(http.MethodGet, http.MethodHead)
	}

	api := r.PathPrefix("/api").Subrouter()

	public := api.PathPrefix("/auth").Subrouter()
	public.Use(middleware.NewRateLimiterMiddleware(rate.Limit(limits.RPS), limits.Burst, middleware.ByIP).Middleware)
	public.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	public.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	public.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	public.HandleFunc("/forgot-password", h.ForgotPassword).Methods(http.MethodPost)
	public.HandleFunc("/reset-password", h.ResetPassword).Methods(http.MethodPost)
	public.HandleFunc("/telegram", h.TelegramAuth).Methods(http.MethodPost)

	private := api.NewRoute().Subrouter()
	private.Use(authn.Middleware)
	private.Use(middleware.NewRateLimiterMiddleware(rate.Limit(limits.RPS), limits.Burst, middleware.ByUser).Middleware)

	private.HandleFunc("/me", h.Me).Methods(http.MethodGet)
	private.HandleFunc("/usage", h.Usage).Methods(http.MethodGet)

	private.HandleFunc("/podcasts", h.ListPodcasts).Methods(http.MethodGet)
	private.HandleFunc("/podcasts/{id}", h.GetPodcast).Methods(http.MethodGet)
	private.HandleFunc("/podcasts/{id}/status", h.GetPodcastStatus).Methods(http.MethodGet)
	private.HandleFunc("/podcasts/{id}", h.DeletePodcast).Methods(http.MethodDelete)

	private.HandleFunc("/jobs", h.ListJobs).Methods(http.MethodGet)
	private.HandleFunc("/jobs", h.CreateJob).Methods(http.MethodPost)
	private.HandleFunc("/jobs/{id}", h.GetJob).Methods(http.MethodGet)
	private.HandleFunc("/jobs/{id}", h.UpdateJob).Methods(http.MethodPut)
	private.HandleFunc("/jobs/{id}", h.DeleteJob).Methods(http.MethodDelete)
	private.HandleFunc("/jobs/{id}/run", h.RunJob).Methods(http.MethodPost)
	private.HandleFunc("/jobs/{id}/runs", h.ListRuns).Methods(http.MethodGet)
	private.HandleFunc("/jobs/{id}/runs/{runId}", h.GetRun).Methods(http.MethodGet)

	private.HandleFunc("/voices", h.ListVoices).Methods(http.MethodGet)
	private.HandleFunc("/voices", h.CreateVoice).Methods(http.MethodPost)
	private.HandleFunc("/voices/{id}", h.DeleteVoice).Methods(http.MethodDelete)

	return r
}
