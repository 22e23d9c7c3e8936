// internal/server/handlers/brand.go

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"adintel/internal/domain/brand"
)

// BrandMatcher manages brand assets and the violations found against them
type BrandMatcher interface {
	CreateAsset(ctx context.Context, jobID *string, kind, term, pattern string) (*brand.Asset, error)
	ListAssets(ctx context.Context, jobID string) ([]brand.Asset, error)
	Scan(ctx context.Context, jobID string) (int, error)
	ListViolations(ctx context.Context, jobID, status string) ([]brand.Violation, error)
	UpdateStatus(ctx context.Context, jobID, violationID, status string) (brand.Status, error)
	ComplaintDoc(ctx context.Context, jobID string, violationIDs []string) (string, error)
}

// BrandHandler handles brand asset, scan and violation requests
type BrandHandler struct {
	matcher BrandMatcher
	logger  *zap.Logger
}

// NewBrandHandler creates a new brand handler
func NewBrandHandler(matcher BrandMatcher, logger *zap.Logger) *BrandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrandHandler{matcher: matcher, logger: logger}
}

type createAssetRequest struct {
	Kind    string `json:"kind"`
	Term    string `json:"term"`
	Pattern string `json:"pattern"`
	// Global assets are matched against every job
	Global bool `json:"global"`
}

// CreateAsset adds a brand asset to the job, or globally
func (h *BrandHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var jobID *string
	if !req.Global {
		id := chi.URLParam(r, "jobID")
		jobID = &id
	}

	asset, err := h.matcher.CreateAsset(r.Context(), jobID, req.Kind, req.Term, req.Pattern)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to create brand asset", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, asset)
}

// ListAssets returns the job's assets and the global ones
func (h *BrandHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.matcher.ListAssets(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to list brand assets", err)
		return
	}
	if assets == nil {
		assets = []brand.Asset{}
	}
	respondWithJSON(w, http.StatusOK, assets)
}

// Scan matches the job's ads against its brand assets
func (h *BrandHandler) Scan(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	inserted, err := h.matcher.Scan(r.Context(), jobID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to scan for brand violations", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":         jobID,
		"new_violations": inserted,
	})
}

// ListViolations returns violations, optionally filtered by ?status=
func (h *BrandHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	violations, err := h.matcher.ListViolations(r.Context(), chi.URLParam(r, "jobID"), r.URL.Query().Get("status"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to list violations", err)
		return
	}
	if violations == nil {
		violations = []brand.Violation{}
	}
	respondWithJSON(w, http.StatusOK, violations)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateViolation changes a violation's review status
func (h *BrandHandler) UpdateViolation(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	violationID := chi.URLParam(r, "violationID")
	status, err := h.matcher.UpdateStatus(r.Context(), chi.URLParam(r, "jobID"), violationID, req.Status)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to update violation", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"id":     violationID,
		"status": status,
	})
}

type complaintRequest struct {
	ViolationIDs []string `json:"violation_ids"`
}

// ComplaintDoc renders a plain-text evidence pack for selected violations
func (h *BrandHandler) ComplaintDoc(w http.ResponseWriter, r *http.Request) {
	var req complaintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc, err := h.matcher.ComplaintDoc(r.Context(), chi.URLParam(r, "jobID"), req.ViolationIDs)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to build complaint document", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}
