// internal/server/handlers/insights.go

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"adintel/internal/domain/auction"
	"adintel/internal/domain/serp"
	auctionService "adintel/internal/service/auction"
)

// InsightsEngine computes auction insights over a trailing window
type InsightsEngine interface {
	Compute(ctx context.Context, jobID string, days int, device serp.DeviceFilter) (*auctionService.Report, error)
	Competitors(ctx context.Context, jobID string, days int, device serp.DeviceFilter) ([]auction.CompetitorStat, error)
	CompetitorDiffs(ctx context.Context, jobID string) (*auction.CompetitorDiffs, error)
	CompetitorDetail(ctx context.Context, jobID, advertiser string, days int, device serp.DeviceFilter) (*auction.CompetitorDetail, error)
}

// InsightsHandler serves auction insight and competitor reports
type InsightsHandler struct {
	engine      InsightsEngine
	defaultDays int
	logger      *zap.Logger
}

// NewInsightsHandler creates a new insights handler
func NewInsightsHandler(engine InsightsEngine, defaultDays int, logger *zap.Logger) *InsightsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightsHandler{engine: engine, defaultDays: defaultDays, logger: logger}
}

type insightsResponse struct {
	*auctionService.Report
	NoData bool `json:"no_data"`
}

// windowParams parses days and device, rejecting bad values before any read
func (h *InsightsHandler) windowParams(r *http.Request) (int, serp.DeviceFilter, error) {
	days, err := queryInt(r, "days", h.defaultDays)
	if err != nil {
		return 0, "", fmt.Errorf("%w: days must be an integer", serp.ErrInvalidWindow)
	}
	if days < 1 || days > serp.MaxWindowDays {
		return 0, "", fmt.Errorf("%w: got %d", serp.ErrInvalidWindow, days)
	}
	device, err := serp.ParseDeviceFilter(r.URL.Query().Get("device"))
	if err != nil {
		return 0, "", err
	}
	return days, device, nil
}

// GetAuctionInsights returns pairwise overlap and outranking rates
func (h *InsightsHandler) GetAuctionInsights(w http.ResponseWriter, r *http.Request) {
	days, device, err := h.windowParams(r)
	if err != nil {
		respondWithServiceError(w, h.logger, "Invalid parameters", err)
		return
	}

	report, err := h.engine.Compute(r.Context(), chi.URLParam(r, "jobID"), days, device)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to compute auction insights", err)
		return
	}
	respondWithJSON(w, http.StatusOK, insightsResponse{
		Report: report,
		NoData: report.LastSnapshotAt == nil,
	})
}

// GetCompetitors returns per-advertiser appearance counts and block shares,
// plus who started advertising today and who is advertising more this week
func (h *InsightsHandler) GetCompetitors(w http.ResponseWriter, r *http.Request) {
	days, device, err := h.windowParams(r)
	if err != nil {
		respondWithServiceError(w, h.logger, "Invalid parameters", err)
		return
	}

	stats, err := h.engine.Competitors(r.Context(), chi.URLParam(r, "jobID"), days, device)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to compute competitors", err)
		return
	}
	if stats == nil {
		stats = []auction.CompetitorStat{}
	}

	diffs, err := h.engine.CompetitorDiffs(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to compute competitor changes", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":      chi.URLParam(r, "jobID"),
		"window_days": days,
		"device":      device,
		"competitors": stats,
		"diffs":       diffs,
	})
}

// GetCompetitorDetail returns the drilldown for one advertiser
func (h *InsightsHandler) GetCompetitorDetail(w http.ResponseWriter, r *http.Request) {
	days, device, err := h.windowParams(r)
	if err != nil {
		respondWithServiceError(w, h.logger, "Invalid parameters", err)
		return
	}

	advertiser := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "advertiser")))
	if advertiser == "" {
		respondWithError(w, http.StatusBadRequest, "Advertiser is required")
		return
	}

	detail, err := h.engine.CompetitorDetail(r.Context(), chi.URLParam(r, "jobID"), advertiser, days, device)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to compute competitor detail", err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}
