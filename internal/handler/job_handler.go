package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"github.com/gorilla/mux"
)

// JobService accepts jobs and reports their status.
type JobService interface {
	SubmitJob(ctx context.Context, req domain.JobRequest) (*domain.Job, error)
	PollStatus(ctx context.Context, jobID, ownerID string) (*domain.JobStatusResponse, error)
}

// JobHandler handles job submission and polling.
type JobHandler struct {
	jobs   JobService
	logger domain.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobService, logger domain.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// SubmitJob queues a job and answers 202 with its initial status.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var req domain.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.OwnerID = owner

	job, err := h.jobs.SubmitJob(r.Context(), req)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job.StatusResponse())
}

// GetJob returns the caller's job status.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	status, err := h.jobs.PollStatus(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
