package handlers

import (
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
	"feedcast/internal/auth"
	"feedcast/internal/httpx"
	"feedcast/internal/models"
	"feedcast/internal/schedule"
)

const (
	runPageSize = 20
	keyJob      = "jobs.notFound"
	keyRun      = "runs.notFound"
	keyVoice    = "voices.notFound"
)

type jobRequest struct {
	Name             string                  `json:"name" validate:"required,max=200"`
	Sources          models.Sources          `json:"sources" validate:"required,min=1,max=20,dive"`
	Schedule         string                  `json:"schedule" validate:"required,max=100"`
	FilterConfig     models.FilterConfig     `json:"filterConfig"`
	GenerationConfig models.GenerationConfig `json:"generationConfig"`
	OutputConfig     models.OutputConfig     `json:"outputConfig"`
	Status           models.JobStatus        `json:"status" validate:"omitempty,oneof=active paused"`
}

type runResponse struct {
	*models.JobRun
	Podcast *models.PodcastSummary `json:"podcast,omitempty"`
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	jobs, err := h.store.ListJobsByUser(r.Context(), id.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	job, err := h.decodeJob(r, id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	created, err := h.store.CreateJob(r.Context(), job)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	log.WithFields(log.Fields{"user_id": id.UserID, "job_id": created.ID}).Info("Job created")
	httpx.JSON(w, http.StatusCreated, map[string]any{"job": created})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	_, job, err := h.ownedJob(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"job": job})
}

func (h *Handlers) UpdateJob(w http.ResponseWriter, r *http.Request) {
	id, existing, err := h.ownedJob(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	job, err := h.decodeJob(r, id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	job.ID = existing.ID
	updated, err := h.store.UpdateJob(r.Context(), job)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"job": updated})
}

func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, job, err := h.ownedJob(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.store.DeleteJob(r.Context(), id.UserID, job.ID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nil)
}

// RunJob queues a run now. It shares the dispatch path of the scheduled scan.
func (h *Handlers) RunJob(w http.ResponseWriter, r *http.Request) {
	_, job, err := h.ownedJob(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	run, err := h.dispatcher.Dispatch(r.Context(), job)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"run": run})
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	_, job, err := h.ownedJob(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	runs, err := h.store.ListRunsByJob(r.Context(), job.ID, runPageSize)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	_, job, err := h.ownedJob(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	runID, err := pathID(r, "runId", keyRun)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if run.JobID != job.ID {
		httpx.Error(w, r, apperr.NotFound(keyRun))
		return
	}

	resp := runResponse{JobRun: run}
	if run.PodcastID != nil {
		podcast, err := h.store.GetPodcast(r.Context(), *run.PodcastID)
		switch {
		case err == nil:
			summary := podcast.Summary()
			resp.Podcast = &summary
		case apperr.IsKind(err, apperr.KindNotFound):
		default:
			httpx.Error(w, r, err)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"run": resp})
}

func (h *Handlers) ownedJob(r *http.Request) (auth.Identity, *models.Job, error) {
	id, err := identity(r)
	if err != nil {
		return id, nil, err
	}
	jobID, err := pathID(r, "id", keyJob)
	if err != nil {
		return id, nil, err
	}
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		return id, nil, err
	}
	if err := auth.RequireOwner(id, job.UserID, keyJob); err != nil {
		return id, nil, err
	}
	return id, job, nil
}

// decodeJob validates a create/update body and computes next_run_at. Paused
// jobs have no next run.
func (h *Handlers) decodeJob(r *http.Request, id auth.Identity) (*models.Job, error) {
	var req jobRequest
	if err := httpx.Decode(r, &req); err != nil {
		return nil, err
	}
	spec := strings.TrimSpace(req.Schedule)
	if err := schedule.Validate(spec); err != nil {
		return nil, err
	}
	if err := h.checkVoices(r.Context(), id, req.GenerationConfig); err != nil {
		return nil, err
	}

	job := &models.Job{
		UserID:           id.UserID,
		Name:             strings.TrimSpace(req.Name),
		Sources:          req.Sources,
		Schedule:         spec,
		FilterConfig:     req.FilterConfig,
		GenerationConfig: req.GenerationConfig,
		OutputConfig:     req.OutputConfig,
		Status:           req.Status,
	}
	if job.Status == "" {
		job.Status = models.JobActive
	}
	if job.Status == models.JobActive {
		next, err := schedule.Next(spec, h.now())
		if err != nil {
			return nil, err
		}
		job.NextRunAt = &next
	}
	return job, nil
}

// checkVoices rejects voice ids the caller does not own.
func (h *Handlers) checkVoices(ctx context.Context, id auth.Identity, cfg models.GenerationConfig) error {
	for _, voiceID := range []int64{cfg.HostVoiceID, cfg.GuestVoiceID} {
		if voiceID == 0 {
			continue
		}
		voice, err := h.store.GetVoice(ctx, voiceID)
		if err != nil {
			return err
		}
		if err := auth.RequireOwner(id, voice.UserID, keyVoice); err != nil {
			return err
		}
	}
	return nil
}
