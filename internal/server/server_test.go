package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"adintel/internal/config"
	"adintel/internal/domain/serp"
	"adintel/internal/server/handlers"
)

// jobsOnly answers job lookups; any other store call panics
type jobsOnly struct {
	handlers.JobStore
}

func (jobsOnly) GetJob(_ context.Context, id string) (*serp.Job, error) {
	if id != "j1" {
		return nil, serp.ErrNotFound
	}
	return &serp.Job{ID: id}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	return NewRouter(config.ServerConfig{CorsOrigins: []string{"*"}}, Dependencies{
		Jobs:              jobsOnly{},
		EventPrefix:       "adintel",
		DefaultWindowDays: 30,
	}, zaptest.NewLogger(t))
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	for _, path := range []string{"/api/health", "/api/v1/health"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "OK", rec.Body.String())
	}
}

func TestUnknownJobIsNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope/auction-insights", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidWindowRejectedBeforeCompute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/j1/auction-insights?days=400", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestAlertStreamDisabledWithoutEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/alerts?job_id=j1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownJobAlertStreamIsNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/alerts?job_id=nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompetitorDetailRouteChecksJob(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope/competitors/rival.io", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerTimeoutEndsBeforeWriteDeadline(t *testing.T) {
	assert.Equal(t, 27*time.Second, handlerTimeout(config.ServerConfig{WriteTimeout: 30 * time.Second}))
	assert.Less(t, handlerTimeout(config.ServerConfig{WriteTimeout: 5 * time.Second}), 5*time.Second)
	assert.Equal(t, 30*time.Second, handlerTimeout(config.ServerConfig{}))
}
