package httpapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/keepoffline/internal/app"
	"github.com/cesargomez89/keepoffline/internal/domain"
	"github.com/cesargomez89/keepoffline/internal/http/dto"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.JobService.ListJobs()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dto.NewJobListResponse(jobs))
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.JobService.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dto.NewJobResponse(*job))
}

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.writeValidation(w, errs)
		return
	}

	job, err := h.JobService.RequestOffline(app.OfflineRequest{
		MediaID:    req.MediaID,
		Kind:       domain.MediaKind(req.Kind),
		Title:      req.Title,
		ArtworkURL: req.ArtworkURL,
		Count:      req.DesiredCount(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ui, err := h.JobService.GetJob(job.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, dto.NewJobResponse(*ui))
}

func (h *Handler) SetCount(w http.ResponseWriter, r *http.Request) {
	var req dto.CountRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.writeValidation(w, errs)
		return
	}

	if err := h.JobService.SetCount(chi.URLParam(r, "id"), *req.Count); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.JobService.DeleteJob(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PlaybackCompleted(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "mediaId")
	ids, err := h.JobService.MarkPlaybackCompleted(itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	h.writeJSON(w, http.StatusOK, dto.CompletedResponse{ItemID: itemID, JobIDs: ids})
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.JobService.Preferences()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) SetProfile(w http.ResponseWriter, r *http.Request) {
	var req dto.ProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.writeValidation(w, errs)
		return
	}
	if err := h.JobService.SwitchProfile(req.ProfileID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetMetered(w http.ResponseWriter, r *http.Request) {
	var req dto.MeteredRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.writeValidation(w, errs)
		return
	}
	if err := h.JobService.SetAllowMetered(*req.AllowMetered); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
