// internal/server/handlers/creative.go

package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"adintel/internal/domain/creative"
	"adintel/internal/domain/serp"
)

// WatchlistStore persists watched competitors and their alerts
type WatchlistStore interface {
	AddWatchlistEntry(ctx context.Context, jobID, advertiser, region string) (*creative.WatchlistEntry, error)
	GetWatchlistEntry(ctx context.Context, id string) (*creative.WatchlistEntry, error)
	ListWatchlist(ctx context.Context, jobID string) ([]creative.WatchlistEntry, error)
	ListAlerts(ctx context.Context, jobID string, limit int) ([]creative.Alert, error)
}

// CreativePoller diffs a watched advertiser's creatives against the last poll
type CreativePoller interface {
	Poll(ctx context.Context, entry creative.WatchlistEntry) ([]creative.Alert, error)
}

// CreativeHandler handles watchlist and creative alert requests
type CreativeHandler struct {
	store  WatchlistStore
	poller CreativePoller
	logger *zap.Logger
}

// NewCreativeHandler creates a new creative handler
func NewCreativeHandler(store WatchlistStore, poller CreativePoller, logger *zap.Logger) *CreativeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreativeHandler{store: store, poller: poller, logger: logger}
}

type addWatchlistRequest struct {
	Advertiser string `json:"advertiser"`
	Region     string `json:"region"`
}

// AddWatchlistEntry starts watching a competitor's creatives
func (h *CreativeHandler) AddWatchlistEntry(w http.ResponseWriter, r *http.Request) {
	var req addWatchlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Advertiser = strings.TrimSpace(req.Advertiser)
	if req.Advertiser == "" {
		respondWithError(w, http.StatusBadRequest, "Advertiser is required")
		return
	}

	entry, err := h.store.AddWatchlistEntry(r.Context(), chi.URLParam(r, "jobID"), req.Advertiser, req.Region)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to add watchlist entry", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}

// ListWatchlist returns the job's watched competitors
func (h *CreativeHandler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListWatchlist(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to list watchlist", err)
		return
	}
	if entries == nil {
		entries = []creative.WatchlistEntry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// PollEntry polls one watched competitor now
func (h *CreativeHandler) PollEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.GetWatchlistEntry(r.Context(), chi.URLParam(r, "entryID"))
	if err == nil && entry.JobID != chi.URLParam(r, "jobID") {
		err = serp.ErrNotFound
	}
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to load watchlist entry", err)
		return
	}

	alerts, err := h.poller.Poll(r.Context(), *entry)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to poll creatives", err)
		return
	}
	if alerts == nil {
		alerts = []creative.Alert{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"entry_id": entry.ID,
		"alerts":   alerts,
	})
}

// ListAlerts returns the job's most recent creative alerts
func (h *CreativeHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	alerts, err := h.store.ListAlerts(r.Context(), chi.URLParam(r, "jobID"), limit)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to list creative alerts", err)
		return
	}
	if alerts == nil {
		alerts = []creative.Alert{}
	}
	respondWithJSON(w, http.StatusOK, alerts)
}
