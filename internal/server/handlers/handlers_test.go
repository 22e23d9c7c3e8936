package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"adintel/internal/domain/auction"
	"adintel/internal/domain/brand"
	"adintel/internal/domain/creative"
	"adintel/internal/domain/presence"
	"adintel/internal/domain/serp"
	auctionService "adintel/internal/service/auction"
	"adintel/internal/service/ingest"
)

type fakeJobs struct {
	jobs    map[string]serp.Job
	targets map[string]serp.Target
	tracked map[string]bool
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		jobs: map[string]serp.Job{"j1": {ID: "j1", Name: "plumbers"}},
		targets: map[string]serp.Target{
			"t1": {ID: "t1", JobID: "j1", Keyword: "plumber"},
			"t2": {ID: "t2", JobID: "j2", Keyword: "roofer"},
		},
		tracked: map[string]bool{},
	}
}

func (f *fakeJobs) CreateJob(_ context.Context, name string) (*serp.Job, error) {
	j := serp.Job{ID: "j-new", Name: name}
	f.jobs[j.ID] = j
	return &j, nil
}

func (f *fakeJobs) GetJob(_ context.Context, id string) (*serp.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, serp.ErrNotFound
	}
	return &j, nil
}

func (f *fakeJobs) ListJobs(context.Context) ([]serp.Job, error) {
	return nil, nil
}

func (f *fakeJobs) DeleteJob(_ context.Context, id string) error {
	if _, ok := f.jobs[id]; !ok {
		return serp.ErrNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeJobs) AddTargets(_ context.Context, jobID string, keywords []string, location, country, language string) ([]serp.Target, error) {
	var out []serp.Target
	for i, k := range keywords {
		out = append(out, serp.Target{ID: fmt.Sprintf("n%d", i), JobID: jobID, Keyword: k, Location: location})
	}
	return out, nil
}

func (f *fakeJobs) GetTarget(_ context.Context, id string) (*serp.Target, error) {
	t, ok := f.targets[id]
	if !ok {
		return nil, serp.ErrNotFound
	}
	return &t, nil
}

func (f *fakeJobs) ListTargets(context.Context, string) ([]serp.Target, error) {
	return nil, nil
}

func (f *fakeJobs) SetPresenceTracking(_ context.Context, targetID string, enabled bool) error {
	f.tracked[targetID] = enabled
	return nil
}

type fakeRunner struct {
	err error
}

func (f *fakeRunner) RunTargetByID(_ context.Context, jobID, targetID string) ([]ingest.DeviceResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []ingest.DeviceResult{{Device: serp.DeviceDesktop, SnapshotID: "s1", Ads: 3}}, nil
}

func (f *fakeRunner) RunJob(context.Context, string) (ingest.JobResult, error) {
	return ingest.JobResult{Targets: 1, Snapshots: 2}, nil
}

func jobRouter(h *JobHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/jobs", h.ListJobs)
	r.Post("/jobs", h.CreateJob)
	r.Route("/jobs/{jobID}", func(r chi.Router) {
		r.Use(h.RequireJob)
		r.Delete("/", h.DeleteJob)
		r.Post("/targets", h.AddTargets)
		r.Post("/targets/{targetID}/run", h.RunTarget)
		r.Put("/targets/{targetID}/presence-tracking", h.SetPresenceTracking)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("wrap: %w", serp.ErrNotFound)))
	assert.Equal(t, http.StatusBadRequest, statusFor(serp.ErrInvalidWindow))
	assert.Equal(t, http.StatusBadRequest, statusFor(serp.ErrInvalidDevice))
	assert.Equal(t, http.StatusBadRequest, statusFor(brand.ErrInvalidStatus))
	assert.Equal(t, http.StatusBadRequest, statusFor(brand.ErrInvalidAsset))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(serp.ErrSourceUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestJobHandler(t *testing.T) {
	jobs := newFakeJobs()
	h := NewJobHandler(jobs, &fakeRunner{}, zaptest.NewLogger(t))
	router := jobRouter(h)

	t.Run("create requires name", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/jobs", `{"name":"  "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("create", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/jobs", `{"name":"roofers"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var job serp.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, "roofers", job.Name)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/jobs", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("unknown job", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/jobs/missing/targets", `{"keywords":["a"]}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("add targets skips blank keywords", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/jobs/j1/targets", `{"keywords":["plumber"," ","drain cleaning"],"location":"Austin"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var targets []serp.Target
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &targets))
		require.Len(t, targets, 2)
		assert.Equal(t, "drain cleaning", targets[1].Keyword)
	})

	t.Run("add targets needs a keyword", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/jobs/j1/targets", `{"keywords":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("presence tracking on foreign target", func(t *testing.T) {
		rec := do(t, router, http.MethodPut, "/jobs/j1/targets/t2/presence-tracking", `{"enabled":true}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NotContains(t, jobs.tracked, "t2")
	})

	t.Run("presence tracking", func(t *testing.T) {
		rec := do(t, router, http.MethodPut, "/jobs/j1/targets/t1/presence-tracking", `{"enabled":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, jobs.tracked["t1"])
	})

	t.Run("run target", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/jobs/j1/targets/t1/run", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"snapshot_id":"s1"`)
	})

	t.Run("delete", func(t *testing.T) {
		rec := do(t, router, http.MethodDelete, "/jobs/j1/", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRunTargetSourceUnavailable(t *testing.T) {
	h := NewJobHandler(newFakeJobs(), &fakeRunner{err: fmt.Errorf("%w: all devices failed", serp.ErrSourceUnavailable)}, zaptest.NewLogger(t))
	rec := do(t, jobRouter(h), http.MethodPost, "/jobs/j1/targets/t1/run", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeEngine struct {
	days       int
	device     serp.DeviceFilter
	last       *time.Time
	advertiser string
	detailErr  error
}

func (f *fakeEngine) Compute(_ context.Context, jobID string, days int, device serp.DeviceFilter) (*auctionService.Report, error) {
	f.days, f.device = days, device
	return &auctionService.Report{
		Report: auction.Report{JobID: jobID, WindowDays: days, Device: string(device), Rows: []auction.Row{}},
		LastSnapshotAt: f.last,
	}, nil
}

func (f *fakeEngine) Competitors(_ context.Context, jobID string, days int, device serp.DeviceFilter) ([]auction.CompetitorStat, error) {
	f.days, f.device = days, device
	return nil, nil
}

func (f *fakeEngine) CompetitorDiffs(context.Context, string) (*auction.CompetitorDiffs, error) {
	return &auction.CompetitorDiffs{NewToday: []string{"new.com"}, IncreasedThisWeek: []auction.Increase{}}, nil
}

func (f *fakeEngine) CompetitorDetail(_ context.Context, jobID, advertiser string, days int, device serp.DeviceFilter) (*auction.CompetitorDetail, error) {
	f.days, f.device, f.advertiser = days, device, advertiser
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return &auction.CompetitorDetail{
		JobID:        jobID,
		Advertiser:   advertiser,
		WindowDays:   days,
		Device:       string(device),
		Total:        3,
		MonthlySpend: 37,
		Series:       []auction.DayPoint{{Date: "2026-03-10", Appearances: 3, Top: 3}},
		Ads:          []serp.Sighting{},
	}, nil
}

func insightsRouter(h *InsightsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/jobs/{jobID}/auction-insights", h.GetAuctionInsights)
	r.Get("/jobs/{jobID}/competitors", h.GetCompetitors)
	r.Get("/jobs/{jobID}/competitors/{advertiser}", h.GetCompetitorDetail)
	return r
}

func TestInsightsHandler(t *testing.T) {
	engine := &fakeEngine{}
	router := insightsRouter(NewInsightsHandler(engine, 30, zaptest.NewLogger(t)))

	t.Run("defaults and no data", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/jobs/j1/auction-insights", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 30, engine.days)
		assert.Equal(t, serp.DeviceAll, engine.device)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, true, body["no_data"])
		assert.Equal(t, []interface{}{}, body["rows"])
	})

	t.Run("with data", func(t *testing.T) {
		last := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		engine.last = &last
		defer func() { engine.last = nil }()

		rec := do(t, router, http.MethodGet, "/jobs/j1/auction-insights?days=7&device=Mobile", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 7, engine.days)
		assert.Equal(t, serp.DeviceFilterMobile, engine.device)
		assert.Contains(t, rec.Body.String(), `"no_data":false`)
	})

	for _, q := range []string{"days=0", "days=366", "days=abc", "device=tablet"} {
		t.Run("rejects "+q, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, "/jobs/j1/auction-insights?"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	t.Run("competitors", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/jobs/j1/competitors?days=14", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"competitors":[]`)
		assert.Contains(t, rec.Body.String(), `"new_today":["new.com"]`)
		assert.Equal(t, 14, engine.days)
	})

	t.Run("competitor detail", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/jobs/j1/competitors/Rival.io?days=7&device=desktop", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "rival.io", engine.advertiser)
		assert.Equal(t, 7, engine.days)
		assert.Equal(t, serp.DeviceFilterDesktop, engine.device)

		var body auction.CompetitorDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "rival.io", body.Advertiser)
		assert.Equal(t, 37, body.MonthlySpend)
		require.Len(t, body.Series, 1)
	})

	t.Run("competitor detail rejects bad window", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/jobs/j1/competitors/rival.io?days=400", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("competitor detail read failure", func(t *testing.T) {
		engine.detailErr = errors.New("connection refused")
		defer func() { engine.detailErr = nil }()

		rec := do(t, router, http.MethodGet, "/jobs/j1/competitors/rival.io", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

type fakeTracker struct {
	refreshed []string
}

func (f *fakeTracker) Last24h(context.Context, string) ([]presence.Summary, error) {
	h := 9
	return []presence.Summary{{Advertiser: "a.com", HoursPresent: 1, FirstHour: &h, LastHour: &h}}, nil
}

func (f *fakeTracker) Refresh(ctx context.Context, targetID string) (presence.Outcome, []presence.Summary, error) {
	f.refreshed = append(f.refreshed, targetID)
	s, _ := f.Last24h(ctx, targetID)
	return presence.OutcomeSampled, s, nil
}

func TestPresenceHandler(t *testing.T) {
	tracker := &fakeTracker{}
	h := NewPresenceHandler(newFakeJobs(), tracker, zaptest.NewLogger(t))
	r := chi.NewRouter()
	r.Get("/jobs/{jobID}/targets/{targetID}/presence", h.GetPresence)
	r.Post("/jobs/{jobID}/targets/{targetID}/presence/refresh", h.RefreshPresence)

	rec := do(t, r, http.MethodGet, "/jobs/j1/targets/t1/presence", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"first_hour":9`)

	rec = do(t, r, http.MethodPost, "/jobs/j1/targets/t2/presence/refresh", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, tracker.refreshed)

	rec = do(t, r, http.MethodPost, "/jobs/j1/targets/t1/presence/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"sampled"`)
	assert.Equal(t, []string{"t1"}, tracker.refreshed)
}

type fakeMatcher struct {
	assetJobID *string
	docIDs     []string
}

func (f *fakeMatcher) CreateAsset(_ context.Context, jobID *string, kind, term, pattern string) (*brand.Asset, error) {
	f.assetJobID = jobID
	k, err := brand.ParseAssetKind(kind)
	if err != nil {
		return nil, err
	}
	a := brand.Asset{ID: "a1", JobID: jobID, Kind: k, Term: term, Pattern: pattern}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (f *fakeMatcher) ListAssets(context.Context, string) ([]brand.Asset, error) {
	return nil, nil
}

func (f *fakeMatcher) Scan(context.Context, string) (int, error) {
	return 2, nil
}

func (f *fakeMatcher) ListViolations(_ context.Context, _ string, status string) ([]brand.Violation, error) {
	if status != "" {
		if _, err := brand.ParseStatus(status); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (f *fakeMatcher) UpdateStatus(_ context.Context, _, id, status string) (brand.Status, error) {
	st, err := brand.ParseStatus(status)
	if err != nil {
		return "", err
	}
	if id != "v1" {
		return "", serp.ErrNotFound
	}
	return st, nil
}

func (f *fakeMatcher) ComplaintDoc(_ context.Context, _ string, ids []string) (string, error) {
	f.docIDs = ids
	return "GOOGLE ADS TRADEMARK COMPLAINT - EVIDENCE PACK\n", nil
}

func TestBrandHandler(t *testing.T) {
	m := &fakeMatcher{}
	h := NewBrandHandler(m, zaptest.NewLogger(t))
	r := chi.NewRouter()
	r.Route("/jobs/{jobID}", func(r chi.Router) {
		r.Get("/brand-assets", h.ListAssets)
		r.Post("/brand-assets", h.CreateAsset)
		r.Post("/brand-scan", h.Scan)
		r.Get("/violations", h.ListViolations)
		r.Patch("/violations/{violationID}", h.UpdateViolation)
		r.Post("/complaint-doc", h.ComplaintDoc)
	})

	rec := do(t, r, http.MethodPost, "/jobs/j1/brand-assets", `{"term":"Acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, m.assetJobID)
	assert.Equal(t, "j1", *m.assetJobID)

	rec = do(t, r, http.MethodPost, "/jobs/j1/brand-assets", `{"kind":"regex","pattern":"acme\\s+pro","global":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, m.assetJobID)

	rec = do(t, r, http.MethodPost, "/jobs/j1/brand-assets", `{"kind":"regex"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodGet, "/jobs/j1/brand-assets", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, r, http.MethodPost, "/jobs/j1/brand-scan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"new_violations":2`)

	rec = do(t, r, http.MethodGet, "/jobs/j1/violations?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPatch, "/jobs/j1/violations/v1", `{"status":"escalated"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"escalated"`)

	rec = do(t, r, http.MethodPatch, "/jobs/j1/violations/v1", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPatch, "/jobs/j1/violations/v9", `{"status":"reviewed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodPost, "/jobs/j1/complaint-doc", `{"violation_ids":["v1","v2"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, []string{"v1", "v2"}, m.docIDs)
}

type fakeWatchlist struct {
	entries map[string]creative.WatchlistEntry
	limit   int
}

func (f *fakeWatchlist) AddWatchlistEntry(_ context.Context, jobID, advertiser, region string) (*creative.WatchlistEntry, error) {
	e := creative.WatchlistEntry{ID: "w-new", JobID: jobID, Advertiser: advertiser, Region: strings.ToUpper(region)}
	return &e, nil
}

func (f *fakeWatchlist) GetWatchlistEntry(_ context.Context, id string) (*creative.WatchlistEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, serp.ErrNotFound
	}
	return &e, nil
}

func (f *fakeWatchlist) ListWatchlist(context.Context, string) ([]creative.WatchlistEntry, error) {
	return nil, nil
}

func (f *fakeWatchlist) ListAlerts(_ context.Context, _ string, limit int) ([]creative.Alert, error) {
	f.limit = limit
	return nil, nil
}

type fakePoller struct {
	polled []string
	err    error
}

func (f *fakePoller) Poll(_ context.Context, entry creative.WatchlistEntry) ([]creative.Alert, error) {
	f.polled = append(f.polled, entry.ID)
	if f.err != nil {
		return nil, f.err
	}
	return []creative.Alert{{ID: "al1", WatchlistID: entry.ID, Type: creative.AlertNewCreative, ChangeCount: 1}}, nil
}

func TestCreativeHandler(t *testing.T) {
	store := &fakeWatchlist{entries: map[string]creative.WatchlistEntry{
		"w1": {ID: "w1", JobID: "j1", Advertiser: "rival.com", Region: "US"},
		"w2": {ID: "w2", JobID: "j2", Advertiser: "other.com", Region: "US"},
	}}
	poller := &fakePoller{}
	h := NewCreativeHandler(store, poller, zaptest.NewLogger(t))
	r := chi.NewRouter()
	r.Route("/jobs/{jobID}", func(r chi.Router) {
		r.Get("/watchlist", h.ListWatchlist)
		r.Post("/watchlist", h.AddWatchlistEntry)
		r.Post("/watchlist/{entryID}/poll", h.PollEntry)
		r.Get("/creative-alerts", h.ListAlerts)
	})

	rec := do(t, r, http.MethodPost, "/jobs/j1/watchlist", `{"advertiser":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/jobs/j1/watchlist", `{"advertiser":"rival.com","region":"gb"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"region":"GB"`)

	rec = do(t, r, http.MethodPost, "/jobs/j1/watchlist/w2/poll", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, poller.polled)

	rec = do(t, r, http.MethodPost, "/jobs/j1/watchlist/w1/poll", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"new_creative"`)

	poller.err = fmt.Errorf("%w: empty inventory", serp.ErrSourceUnavailable)
	rec = do(t, r, http.MethodPost, "/jobs/j1/watchlist/w1/poll", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, r, http.MethodGet, "/jobs/j1/creative-alerts?limit=25", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, 25, store.limit)

	rec = do(t, r, http.MethodGet, "/jobs/j1/creative-alerts?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
