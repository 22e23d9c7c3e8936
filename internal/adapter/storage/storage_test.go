package storage

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/require"

	"adintel/internal/domain/brand"
	"adintel/internal/domain/creative"
	"adintel/internal/domain/presence"
	"adintel/internal/domain/serp"
)

// testPool connects to ADINTEL_TEST_DATABASE_URL and skips when it is unset
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("ADINTEL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ADINTEL_TEST_DATABASE_URL not set, skipping storage test")
	}

	ctx := context.Background()
	pool, err := pgxpool.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func seedTarget(t *testing.T, pool *pgxpool.Pool) (serp.Job, serp.Target) {
	t.Helper()
	ctx := context.Background()
	targets := NewTargetStore(pool)

	job, err := targets.CreateJob(ctx, "storage-test-"+uuid.New().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = targets.DeleteJob(context.Background(), job.ID) })

	added, err := targets.AddTargets(ctx, job.ID, []string{"emergency plumber"}, "Phoenix, Arizona, United States", "us", "en")
	require.NoError(t, err)
	require.Len(t, added, 1)

	return *job, added[0]
}

func sighting(jobID, advertiser string, block serp.Block, rank int) serp.Sighting {
	return serp.Sighting{
		JobID:      jobID,
		Advertiser: advertiser,
		Block:      block,
		Rank:       rank,
		Headline:   advertiser + " headline",
	}
}

func TestRecordSnapshotIsAtomic(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	job, target := seedTarget(t, pool)
	store := NewSnapshotStore(pool)

	snap := serp.Snapshot{TargetID: target.ID, Device: serp.DeviceDesktop, CapturedAt: time.Now().UTC()}
	bad := sighting(job.ID, "b.com", serp.Block("middle"), 2)
	_, err := store.RecordSnapshot(ctx, snap, []serp.Sighting{sighting(job.ID, "a.com", serp.BlockTop, 1), bad})
	require.Error(t, err)

	w, err := serp.WindowFor(job.ID, 1, serp.DeviceAll, time.Now().UTC())
	require.NoError(t, err)

	var seen int
	require.NoError(t, store.ForEachInWindow(ctx, w, func(serp.Sighting) error {
		seen++
		return nil
	}))
	require.Zero(t, seen)

	last, err := store.LastSnapshotAt(ctx, job.ID)
	require.NoError(t, err)
	require.Nil(t, last)
}

func TestForEachInWindowFiltersDeviceAndTime(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	job, target := seedTarget(t, pool)
	store := NewSnapshotStore(pool)
	now := time.Now().UTC()

	_, err := store.RecordSnapshot(ctx,
		serp.Snapshot{TargetID: target.ID, Device: serp.DeviceDesktop, CapturedAt: now.Add(-time.Hour), RawPayload: []byte(`{"ads":[]}`)},
		[]serp.Sighting{sighting(job.ID, "a.com", serp.BlockTop, 1), sighting(job.ID, "b.com", serp.BlockTop, 2)})
	require.NoError(t, err)
	_, err = store.RecordSnapshot(ctx,
		serp.Snapshot{TargetID: target.ID, Device: serp.DeviceMobile, CapturedAt: now.Add(-time.Hour)},
		[]serp.Sighting{sighting(job.ID, "c.com", serp.BlockBottom, 1)})
	require.NoError(t, err)
	_, err = store.RecordSnapshot(ctx,
		serp.Snapshot{TargetID: target.ID, Device: serp.DeviceDesktop, CapturedAt: now.AddDate(0, 0, -10)},
		[]serp.Sighting{sighting(job.ID, "old.com", serp.BlockTop, 1)})
	require.NoError(t, err)

	w, err := serp.WindowFor(job.ID, 7, serp.DeviceFilterDesktop, now)
	require.NoError(t, err)

	var advertisers []string
	require.NoError(t, store.ForEachInWindow(ctx, w, func(s serp.Sighting) error {
		advertisers = append(advertisers, s.Advertiser)
		return nil
	}))
	require.Equal(t, []string{"a.com", "b.com"}, advertisers)

	last, err := store.LastSnapshotAt(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
}

func TestInsertViolationDedupsUnderConcurrency(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	job, target := seedTarget(t, pool)
	snapshots := NewSnapshotStore(pool)
	brands := NewBrandStore(pool)

	ad := sighting(job.ID, "rival.com", serp.BlockTop, 1)
	ad.ID = uuid.New().String()
	_, err := snapshots.RecordSnapshot(ctx, serp.Snapshot{TargetID: target.ID, Device: serp.DeviceDesktop}, []serp.Sighting{ad})
	require.NoError(t, err)

	v := brand.Violation{
		JobID:          job.ID,
		AdID:           ad.ID,
		Advertiser:     "rival.com",
		MatchedAsset:   "Acme",
		MatchedSnippet: "Acme plumbing",
		CapturedAt:     time.Now().UTC(),
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := brands.InsertViolation(ctx, v)
			if err != nil {
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, inserted)

	list, err := brands.ListViolations(ctx, job.ID, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, brand.StatusNew, list[0].Status)

	require.NoError(t, brands.UpdateViolationStatus(ctx, job.ID, list[0].ID, brand.StatusEscalated, time.Now().UTC()))
	escalated := brand.StatusEscalated
	list, err = brands.ListViolations(ctx, job.ID, &escalated)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].ReviewedAt)

	keys, err := brands.ViolationKeys(ctx, job.ID)
	require.NoError(t, err)
	require.Contains(t, keys, v.Key())
}

func TestCommitPollAdvancesBaseline(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	job, _ := seedTarget(t, pool)
	store := NewCreativeStore(pool)

	entry, err := store.AddWatchlistEntry(ctx, job.ID, "rival.com", "us")
	require.NoError(t, err)
	require.Equal(t, "US", entry.Region)

	inv := creative.Inventory{
		ID:         uuid.New().String(),
		Advertiser: "rival.com",
		Region:     "US",
		Creatives:  []creative.Creative{{ID: "CR1", Title: "Spring sale"}},
		CapturedAt: time.Now().UTC(),
	}
	alert := creative.Alert{
		ID:                  uuid.New().String(),
		WatchlistID:         entry.ID,
		Type:                creative.AlertNewCreative,
		PreviousInventoryID: "prev",
		NewInventoryID:      inv.ID,
		CreativeIDs:         []string{"CR1"},
		ChangeCount:         1,
		CreatedAt:           inv.CapturedAt,
	}
	require.NoError(t, store.CommitPoll(ctx, creative.PollCommit{EntryID: entry.ID, Inventory: inv, Alerts: []creative.Alert{alert}, PolledAt: inv.CapturedAt}))

	got, err := store.GetWatchlistEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, inv.ID, got.LastInventoryID)
	require.NotNil(t, got.LastPolledAt)

	latest, err := store.LatestInventory(ctx, "rival.com", "US")
	require.NoError(t, err)
	require.Equal(t, inv.ID, latest.ID)
	require.Equal(t, inv.Creatives, latest.Creatives)

	alerts, err := store.ListAlerts(ctx, job.ID, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "rival.com", alerts[0].Advertiser)
}

func TestPresenceSamplesRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	_, target := seedTarget(t, pool)
	store := NewPresenceStore(pool)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.RecordSamples(ctx, []presence.Sample{
		{TargetID: target.ID, Advertiser: "a.com", Timestamp: now.Add(-30 * time.Hour), Appeared: true},
		{TargetID: target.ID, Advertiser: "a.com", Timestamp: now.Add(-2 * time.Hour), Appeared: true},
		{TargetID: target.ID, Advertiser: "b.com", Timestamp: now.Add(-1 * time.Hour), Appeared: true},
	}))

	samples, err := store.SamplesSince(ctx, target.ID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, "a.com", samples[0].Advertiser)
}
