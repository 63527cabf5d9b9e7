package handlers

import (
	"net/http"
	"strings"

	"feedcast/internal/httpx"
)

type voiceRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	ProviderVoiceID string `json:"providerVoiceId" validate:"required,max=100"`
}

func (h *Handlers) ListVoices(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	voices, err := h.store.ListVoicesByUser(r.Context(), id.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"voices": voices})
}

func (h *Handlers) CreateVoice(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req voiceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	voice, err := h.store.CreateVoice(r.Context(), id.UserID, strings.TrimSpace(req.Name), strings.TrimSpace(req.ProviderVoiceID))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"voice": voice})
}

func (h *Handlers) DeleteVoice(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	voiceID, err := pathID(r, "id", keyVoice)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	// The delete is scoped to the caller, so a foreign voice looks absent.
	if err := h.store.DeleteVoice(r.Context(), id.UserID, voiceID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nil)
}
