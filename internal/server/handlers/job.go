// internal/server/handlers/job.go

package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"adintel/internal/domain/serp"
	"adintel/internal/service/ingest"
)

// JobStore is the job and target persistence the handlers need
type JobStore interface {
	CreateJob(ctx context.Context, name string) (*serp.Job, error)
	GetJob(ctx context.Context, id string) (*serp.Job, error)
	ListJobs(ctx context.Context) ([]serp.Job, error)
	DeleteJob(ctx context.Context, id string) error
	AddTargets(ctx context.Context, jobID string, keywords []string, location, country, language string) ([]serp.Target, error)
	GetTarget(ctx context.Context, id string) (*serp.Target, error)
	ListTargets(ctx context.Context, jobID string) ([]serp.Target, error)
	SetPresenceTracking(ctx context.Context, targetID string, enabled bool) error
}

// TargetRunner fetches fresh snapshots for targets
type TargetRunner interface {
	RunTargetByID(ctx context.Context, jobID, targetID string) ([]ingest.DeviceResult, error)
	RunJob(ctx context.Context, jobID string) (ingest.JobResult, error)
}

// JobHandler handles job and target requests
type JobHandler struct {
	store  JobStore
	runner TargetRunner
	logger *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(store JobStore, runner TargetRunner, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{store: store, runner: runner, logger: logger}
}

// RequireJob rejects requests for jobs that do not exist
func (h *JobHandler) RequireJob(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.store.GetJob(r.Context(), chi.URLParam(r, "jobID")); err != nil {
			respondWithServiceError(w, h.logger, "Failed to load job", err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createJobRequest struct {
	Name string `json:"name"`
}

// CreateJob creates a new research job
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "Job name is required")
		return
	}

	job, err := h.store.CreateJob(r.Context(), req.Name)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to create job", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, job)
}

// ListJobs returns every job
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListJobs(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []serp.Job{}
	}
	respondWithJSON(w, http.StatusOK, jobs)
}

// DeleteJob deletes a job and everything it owns
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteJob(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		respondWithServiceError(w, h.logger, "Failed to delete job", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addTargetsRequest struct {
	Keywords []string `json:"keywords"`
	Location string   `json:"location"`
	Country  string   `json:"country"`
	Language string   `json:"language"`
}

// AddTargets adds one target per keyword
func (h *JobHandler) AddTargets(w http.ResponseWriter, r *http.Request) {
	var req addTargetsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	keywords := make([]string, 0, len(req.Keywords))
	for _, k := range req.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		respondWithError(w, http.StatusBadRequest, "At least one keyword is required")
		return
	}

	targets, err := h.store.AddTargets(r.Context(), chi.URLParam(r, "jobID"), keywords, req.Location, req.Country, req.Language)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to add targets", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, targets)
}

// ListTargets returns the job's targets
func (h *JobHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.store.ListTargets(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to list targets", err)
		return
	}
	if targets == nil {
		targets = []serp.Target{}
	}
	respondWithJSON(w, http.StatusOK, targets)
}

// RunTarget fetches and records a snapshot per device for one target
func (h *JobHandler) RunTarget(w http.ResponseWriter, r *http.Request) {
	results, err := h.runner.RunTargetByID(r.Context(), chi.URLParam(r, "jobID"), chi.URLParam(r, "targetID"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to run target", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"devices": results})
}

// RunJob runs every target of the job
func (h *JobHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.RunJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to run job", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

type presenceTrackingRequest struct {
	Enabled bool `json:"enabled"`
}

// SetPresenceTracking toggles hourly presence sampling for a target
func (h *JobHandler) SetPresenceTracking(w http.ResponseWriter, r *http.Request) {
	var req presenceTrackingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	target, err := targetInJob(r.Context(), h.store, chi.URLParam(r, "jobID"), chi.URLParam(r, "targetID"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to load target", err)
		return
	}
	if err := h.store.SetPresenceTracking(r.Context(), target.ID, req.Enabled); err != nil {
		respondWithServiceError(w, h.logger, "Failed to update presence tracking", err)
		return
	}
	target.PresenceTrackingEnabled = req.Enabled
	respondWithJSON(w, http.StatusOK, target)
}

type jobGetter interface {
	GetJob(ctx context.Context, id string) (*serp.Job, error)
}

type targetGetter interface {
	GetTarget(ctx context.Context, id string) (*serp.Target, error)
}

// targetInJob loads a target, hiding targets owned by other jobs
func targetInJob(ctx context.Context, store targetGetter, jobID, targetID string) (*serp.Target, error) {
	target, err := store.GetTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.JobID != jobID {
		return nil, serp.ErrNotFound
	}
	return target, nil
}
