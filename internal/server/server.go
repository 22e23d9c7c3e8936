// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"adintel/internal/config"
	"adintel/internal/server/handlers"
)

// Dependencies are the services and stores the routes are served from.
// Events may be nil, which disables the websocket stream.
type Dependencies struct {
	Jobs      handlers.JobStore
	Runner    handlers.TargetRunner
	Insights  handlers.InsightsEngine
	Presence  handlers.PresenceTracker
	Brand     handlers.BrandMatcher
	Watchlist handlers.WatchlistStore
	Creatives handlers.CreativePoller
	Events    handlers.Subscriber

	EventPrefix       string
	DefaultWindowDays int
}

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, deps Dependencies, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := NewRouter(cfg, deps, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// handlerTimeout cancels API requests before the server's write deadline
// closes the connection, so a slow request still gets its 504
func handlerTimeout(cfg config.ServerConfig) time.Duration {
	if cfg.WriteTimeout <= 0 {
		return 30 * time.Second
	}
	return cfg.WriteTimeout * 9 / 10
}

// NewRouter builds the route tree
func NewRouter(cfg config.ServerConfig, deps Dependencies, logger *zap.Logger) *chi.Mux {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	jobHandler := handlers.NewJobHandler(deps.Jobs, deps.Runner, logger)
	insightsHandler := handlers.NewInsightsHandler(deps.Insights, deps.DefaultWindowDays, logger)
	presenceHandler := handlers.NewPresenceHandler(deps.Jobs, deps.Presence, logger)
	brandHandler := handlers.NewBrandHandler(deps.Brand, logger)
	creativeHandler := handlers.NewCreativeHandler(deps.Watchlist, deps.Creatives, logger)

	router.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Route("/v1", func(r chi.Router) {
			r.Use(middleware.Timeout(handlerTimeout(cfg)))

			r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("OK"))
			})

			r.Get("/jobs", jobHandler.ListJobs)
			r.Post("/jobs", jobHandler.CreateJob)

			r.Route("/jobs/{jobID}", func(r chi.Router) {
				r.Use(jobHandler.RequireJob)

				r.Delete("/", jobHandler.DeleteJob)
				r.Post("/run", jobHandler.RunJob)

				r.Route("/targets", func(r chi.Router) {
					r.Get("/", jobHandler.ListTargets)
					r.Post("/", jobHandler.AddTargets)
					r.Post("/{targetID}/run", jobHandler.RunTarget)
					r.Put("/{targetID}/presence-tracking", jobHandler.SetPresenceTracking)
					r.Get("/{targetID}/presence", presenceHandler.GetPresence)
					r.Post("/{targetID}/presence/refresh", presenceHandler.RefreshPresence)
				})

				r.Get("/auction-insights", insightsHandler.GetAuctionInsights)
				r.Get("/competitors", insightsHandler.GetCompetitors)
				r.Get("/competitors/{advertiser}", insightsHandler.GetCompetitorDetail)

				r.Get("/brand-assets", brandHandler.ListAssets)
				r.Post("/brand-assets", brandHandler.CreateAsset)
				r.Post("/brand-scan", brandHandler.Scan)
				r.Get("/violations", brandHandler.ListViolations)
				r.Patch("/violations/{violationID}", brandHandler.UpdateViolation)
				r.Post("/complaint-doc", brandHandler.ComplaintDoc)

				r.Get("/watchlist", creativeHandler.ListWatchlist)
				r.Post("/watchlist", creativeHandler.AddWatchlistEntry)
				r.Post("/watchlist/{entryID}/poll", creativeHandler.PollEntry)
				r.Get("/creative-alerts", creativeHandler.ListAlerts)
			})
		})
	})

	router.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint for live alerts
	router.Get("/ws/alerts", handlers.AlertStreamHandler(deps.Jobs, deps.Events, deps.EventPrefix, logger))

	return router
}

// requestLogger logs one line per request through zap
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
