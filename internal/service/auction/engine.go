package auction

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"adintel/internal/domain/auction"
	"adintel/internal/domain/serp"
)

// SightingReader is the window read path over the sighting log
type SightingReader interface {
	ForEachInWindow(ctx context.Context, w serp.Window, fn func(serp.Sighting) error) error
	LastSnapshotAt(ctx context.Context, jobID string) (*time.Time, error)
}

// Cache stores computed rows under a per-job generation that advances when
// new snapshots arrive
type Cache interface {
	Generation(ctx context.Context, jobID string) (int64, error)
	Get(ctx context.Context, key auction.Key) ([]auction.Row, bool, error)
	Set(ctx context.Context, key auction.Key, rows []auction.Row) error
}

// Engine computes pairwise auction insights from the sighting log
type Engine struct {
	reader SightingReader
	cache  Cache
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a new engine. cache may be nil.
func NewEngine(reader SightingReader, cache Cache, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		reader: reader,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Report is the result of Compute. LastSnapshotAt is nil when the job has
// never recorded a snapshot.
type Report struct {
	auction.Report
	LastSnapshotAt *time.Time `json:"last_snapshot_at"`
}

// Compute returns overlap and outranking rates for every advertiser pair seen
// in the trailing window. An empty window yields no rows and no error.
func (e *Engine) Compute(ctx context.Context, jobID string, days int, device serp.DeviceFilter) (*Report, error) {
	now := e.now()
	w, err := serp.WindowFor(jobID, days, device, now)
	if err != nil {
		return nil, err
	}

	key := auction.Key{JobID: jobID, WindowDays: days, Device: string(w.Device)}
	rows, hit := e.cached(ctx, &key)
	if !hit {
		c := newCollector()
		if err := e.reader.ForEachInWindow(ctx, w, c.add); err != nil {
			return nil, fmt.Errorf("error reading window: %w", err)
		}
		rows = ComputeRows(c.snapshots())

		if e.cache != nil && key.Generation >= 0 {
			if err := e.cache.Set(ctx, key, rows); err != nil {
				e.logger.Warn("Failed to cache auction insights", zap.String("job_id", jobID), zap.Error(err))
			}
		}
	}

	last, err := e.reader.LastSnapshotAt(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("error reading last snapshot: %w", err)
	}

	return &Report{
		Report: auction.Report{
			JobID:      jobID,
			WindowDays: days,
			Device:     string(w.Device),
			ComputedAt: now,
			Rows:       rows,
		},
		LastSnapshotAt: last,
	}, nil
}

// cached looks up rows and pins key to the generation it read, so a result
// computed while new snapshots land is stored under the stale generation
func (e *Engine) cached(ctx context.Context, key *auction.Key) ([]auction.Row, bool) {
	if e.cache == nil {
		return nil, false
	}
	gen, err := e.cache.Generation(ctx, key.JobID)
	if err != nil {
		e.logger.Warn("Auction insight cache unavailable", zap.String("job_id", key.JobID), zap.Error(err))
		key.Generation = -1
		return nil, false
	}
	key.Generation = gen

	rows, ok, err := e.cache.Get(ctx, *key)
	if err != nil {
		e.logger.Warn("Auction insight cache read failed", zap.String("job_id", key.JobID), zap.Error(err))
		return nil, false
	}
	return rows, ok
}

// Competitors counts each advertiser's sightings in the window and the share
// of them shown in the top and bottom blocks.
func (e *Engine) Competitors(ctx context.Context, jobID string, days int, device serp.DeviceFilter) ([]auction.CompetitorStat, error) {
	w, err := serp.WindowFor(jobID, days, device, e.now())
	if err != nil {
		return nil, err
	}

	type tally struct{ total, top, bottom int }
	tallies := make(map[string]*tally)
	err = e.reader.ForEachInWindow(ctx, w, func(s serp.Sighting) error {
		t, ok := tallies[s.Advertiser]
		if !ok {
			t = &tally{}
			tallies[s.Advertiser] = t
		}
		t.total++
		if s.Block == serp.BlockTop {
			t.top++
		} else {
			t.bottom++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading window: %w", err)
	}

	stats := make([]auction.CompetitorStat, 0, len(tallies))
	for adv, t := range tallies {
		stats = append(stats, auction.CompetitorStat{
			Advertiser:  adv,
			Appearances: t.total,
			TopShare:    float64(t.top) / float64(t.total),
			BottomShare: float64(t.bottom) / float64(t.total),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Appearances != stats[j].Appearances {
			return stats[i].Appearances > stats[j].Appearances
		}
		return stats[i].Advertiser < stats[j].Advertiser
	})

	return stats, nil
}
