package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
	"feedcast/internal/feed"
)

// feedEpisodeLimit caps how many done episodes a feed lists.
const feedEpisodeLimit = 100

func (h *Handlers) GetRSSFeed(w http.ResponseWriter, r *http.Request) {
	feedUUID := mux.Vars(r)["uuid"]

	job, err := h.store.GetJobByFeedUUID(r.Context(), feedUUID)
	if apperr.IsKind(err, apperr.KindNotFound) || (err == nil && !job.OutputConfig.PublishRSS) {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting job for feed %s: %v", feedUUID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	podcasts, err := h.store.ListDonePodcastsByJob(r.Context(), job.ID, feedEpisodeLimit)
	if err != nil {
		log.Printf("Error getting podcasts for job %d: %v", job.ID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rss, err := feed.GenerateRSS(job, podcasts, h.cfg.BaseURL)
	if err != nil {
		log.Printf("Error generating RSS: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(rss))
}
