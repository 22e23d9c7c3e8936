// internal/adapter/cache/insights.go

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"adintel/internal/config"
	"adintel/internal/domain/auction"
	"adintel/internal/metrics"
)

const keyPrefix = "adintel:insights"

// InsightCache keeps computed auction insight rows in Redis. Each job has a
// generation counter; ingestion bumps it and readers only look at keys for
// the current generation, so stale rows simply expire.
type InsightCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Connect dials Redis and verifies the connection
func Connect(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*InsightCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return New(rdb, cfg.CacheTTL, logger), nil
}

// New wraps an existing client
func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *InsightCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &InsightCache{
		client:  client,
		ttl:     ttl,
		metrics: metrics.New(),
		logger:  logger,
	}
}

func generationKey(jobID string) string {
	return fmt.Sprintf("%s:gen:%s", keyPrefix, jobID)
}

// rowsKey omits the window end. New snapshots move the generation, but
// sightings ageing out of the window start only drop once the entry expires,
// so a cached result trails the true window by at most the TTL.
func rowsKey(k auction.Key) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", keyPrefix, k.JobID, k.Generation, k.WindowDays, k.Device)
}

// Generation returns the job's current generation; a job never invalidated
// is at zero
func (c *InsightCache) Generation(ctx context.Context, jobID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(jobID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error reading generation: %w", err)
	}
	return gen, nil
}

// Get returns cached rows for the key
func (c *InsightCache) Get(ctx context.Context, key auction.Key) ([]auction.Row, bool, error) {
	b, err := c.client.Get(ctx, rowsKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.CacheMisses.Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reading cached rows: %w", err)
	}

	var rows []auction.Row
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, false, fmt.Errorf("error decoding cached rows: %w", err)
	}
	c.metrics.CacheHits.Inc()
	return rows, true, nil
}

// Set stores rows under the key until the TTL lapses
func (c *InsightCache) Set(ctx context.Context, key auction.Key, rows []auction.Row) error {
	b, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("error encoding rows: %w", err)
	}
	if err := c.client.Set(ctx, rowsKey(key), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("error caching rows: %w", err)
	}
	return nil
}

// Invalidate advances the job's generation
func (c *InsightCache) Invalidate(ctx context.Context, jobID string) error {
	gen, err := c.client.Incr(ctx, generationKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("error advancing generation: %w", err)
	}
	c.logger.Debug("Invalidated auction insights", zap.String("job_id", jobID), zap.Int64("generation", gen))
	return nil
}

// Close closes the Redis connection
func (c *InsightCache) Close() error {
	return c.client.Close()
}
