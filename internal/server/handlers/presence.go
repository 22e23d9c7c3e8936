// internal/server/handlers/presence.go

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"adintel/internal/domain/presence"
)

// PresenceTracker reads and refreshes hourly presence summaries
type PresenceTracker interface {
	Last24h(ctx context.Context, targetID string) ([]presence.Summary, error)
	Refresh(ctx context.Context, targetID string) (presence.Outcome, []presence.Summary, error)
}

// PresenceHandler serves per-target presence summaries
type PresenceHandler struct {
	targets targetGetter
	tracker PresenceTracker
	logger  *zap.Logger
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(targets targetGetter, tracker PresenceTracker, logger *zap.Logger) *PresenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceHandler{targets: targets, tracker: tracker, logger: logger}
}

type presenceResponse struct {
	TargetID string             `json:"target_id"`
	Outcome  presence.Outcome   `json:"outcome,omitempty"`
	Summary  []presence.Summary `json:"summary"`
}

// GetPresence returns the target's hour-of-day summary over the last day
func (h *PresenceHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	target, err := targetInJob(r.Context(), h.targets, chi.URLParam(r, "jobID"), chi.URLParam(r, "targetID"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to load target", err)
		return
	}

	summary, err := h.tracker.Last24h(r.Context(), target.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to summarise presence", err)
		return
	}
	if summary == nil {
		summary = []presence.Summary{}
	}
	respondWithJSON(w, http.StatusOK, presenceResponse{TargetID: target.ID, Summary: summary})
}

// RefreshPresence samples the target now and returns the updated summary
func (h *PresenceHandler) RefreshPresence(w http.ResponseWriter, r *http.Request) {
	target, err := targetInJob(r.Context(), h.targets, chi.URLParam(r, "jobID"), chi.URLParam(r, "targetID"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to load target", err)
		return
	}

	outcome, summary, err := h.tracker.Refresh(r.Context(), target.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to refresh presence", err)
		return
	}
	if summary == nil {
		summary = []presence.Summary{}
	}
	respondWithJSON(w, http.StatusOK, presenceResponse{TargetID: target.ID, Outcome: outcome, Summary: summary})
}
