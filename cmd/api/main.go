// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"adintel/internal/adapter/cache"
	"adintel/internal/adapter/events"
	"adintel/internal/adapter/serpapi"
	"adintel/internal/adapter/storage"
	"adintel/internal/config"
	"adintel/internal/logging"
	"adintel/internal/scheduler"
	"adintel/internal/server"
	"adintel/internal/server/handlers"
	auctionService "adintel/internal/service/auction"
	brandService "adintel/internal/service/brand"
	creativeService "adintel/internal/service/creative"
	"adintel/internal/service/ingest"
	presenceService "adintel/internal/service/presence"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := storage.Migrate(ctx, db); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Events are best effort: without NATS the services run and the
	// websocket stream is disabled
	var subscriber handlers.Subscriber
	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		logger.Warn("NATS unavailable, live events disabled", zap.Error(err))
	} else {
		defer natsConn.Close()
		subscriber = handlers.NATSSubscriber{Conn: natsConn}
	}
	publisher := events.NewPublisher(natsConn, cfg.NATS.SubjectPrefix, logger)

	var (
		insightCache auctionService.Cache
		invalidator  ingest.Invalidator
	)
	if cfg.Redis.Addr != "" {
		rc, err := cache.Connect(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis unavailable, auction insights uncached", zap.Error(err))
		} else {
			defer rc.Close()
			insightCache = rc
			invalidator = rc
		}
	}

	// Initialize storage adapters
	targetStore := storage.NewTargetStore(db)
	snapshotStore := storage.NewSnapshotStore(db)
	presenceStore := storage.NewPresenceStore(db)
	creativeStore := storage.NewCreativeStore(db)
	brandStore := storage.NewBrandStore(db)

	serpClient := serpapi.NewClient(cfg.SerpAPI, logger)

	// Initialize services
	ingestService := ingest.NewService(
		targetStore,
		snapshotStore,
		serpClient,
		invalidator,
		publisher,
		cfg.Analytics.MaxAdsPerSnapshot,
		logger.Named("ingest"),
	)
	engine := auctionService.NewEngine(snapshotStore, insightCache, logger.Named("auction"))
	tracker := presenceService.NewTracker(targetStore, presenceStore, serpClient, logger.Named("presence"))
	differ := creativeService.NewDiffer(creativeStore, serpClient, publisher, cfg.Analytics.AlertIDCap, logger.Named("creative"))
	matcher := brandService.NewMatcher(brandStore, snapshotStore, publisher, cfg.Analytics.SnippetTrail, logger.Named("brand"))

	// Periodic operations
	runner := scheduler.New(ctx, logger.Named("scheduler"))
	if cfg.Scheduler.Enabled {
		for _, task := range scheduler.Tasks(cfg.Scheduler, tracker, differ, matcher, targetStore, logger.Named("scheduler")) {
			if err := runner.Add(task); err != nil {
				logger.Fatal("Failed to schedule task", zap.String("task", task.Name), zap.Error(err))
			}
		}
		runner.Start()
	}

	// Initialize HTTP server
	httpServer := server.NewServer(cfg.Server, server.Dependencies{
		Jobs:              targetStore,
		Runner:            ingestService,
		Insights:          engine,
		Presence:          tracker,
		Brand:             matcher,
		Watchlist:         creativeStore,
		Creatives:         differ,
		Events:            subscriber,
		EventPrefix:       cfg.NATS.SubjectPrefix,
		DefaultWindowDays: cfg.Analytics.DefaultWindowDays,
	}, logger.Named("http"))

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Stop waits for running tasks; cancel lets them notice first
	cancel()
	runner.Stop()

	logger.Info("Shutdown complete")
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.Name("adintel"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
