package handlers

import (
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
	"feedcast/internal/auth"
	"feedcast/internal/httpx"
	"feedcast/internal/models"
)

const (
	podcastPageSize = 10
	keyPodcast      = "podcasts.notFound"
)

type podcastPage struct {
	Podcasts   []models.Podcast `json:"podcasts"`
	HasMore    bool             `json:"hasMore"`
	NextCursor *int64           `json:"nextCursor"`
}

func (h *Handlers) ListPodcasts(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var cursor int64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || cursor < 0 {
			httpx.Error(w, r, apperr.Validation(httpx.KeyInvalid))
			return
		}
	}

	podcasts, err := h.store.ListPodcastsByUser(r.Context(), id.UserID, cursor, podcastPageSize+1)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	page := podcastPage{Podcasts: podcasts}
	if len(podcasts) > podcastPageSize {
		page.Podcasts = podcasts[:podcastPageSize]
		page.HasMore = true
		next := page.Podcasts[podcastPageSize-1].ID
		page.NextCursor = &next
	}
	httpx.JSON(w, http.StatusOK, page)
}

// ownedPodcast loads the podcast named by the {id} path variable if the caller owns it.
func (h *Handlers) ownedPodcast(r *http.Request) (auth.Identity, *models.Podcast, error) {
	id, err := identity(r)
	if err != nil {
		return id, nil, err
	}
	podcastID, err := pathID(r, "id", keyPodcast)
	if err != nil {
		return id, nil, err
	}
	podcast, err := h.store.GetPodcast(r.Context(), podcastID)
	if err != nil {
		return id, nil, err
	}
	if err := auth.RequireOwner(id, podcast.UserID, keyPodcast); err != nil {
		return id, nil, err
	}
	return id, podcast, nil
}

func (h *Handlers) GetPodcast(w http.ResponseWriter, r *http.Request) {
	_, podcast, err := h.ownedPodcast(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"podcast": podcast})
}

func (h *Handlers) GetPodcastStatus(w http.ResponseWriter, r *http.Request) {
	_, podcast, err := h.ownedPodcast(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":       podcast.Status,
		"errorMessage": podcast.ErrorMessage,
	})
}

// DeletePodcast removes the row first. A stored object that cannot be
// deleted afterwards is only logged.
func (h *Handlers) DeletePodcast(w http.ResponseWriter, r *http.Request) {
	id, podcast, err := h.ownedPodcast(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.store.DeletePodcast(r.Context(), id.UserID, podcast.ID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if podcast.AudioKey != "" {
		if err := h.storage.Delete(r.Context(), podcast.AudioKey); err != nil {
			log.Printf("Error deleting audio %s of podcast %d: %v", podcast.AudioKey, podcast.ID, err)
		}
	}
	httpx.JSON(w, http.StatusOK, nil)
}
