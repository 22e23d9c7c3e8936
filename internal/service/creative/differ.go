package creative

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"adintel/internal/adapter/events"
	"adintel/internal/domain/creative"
	"adintel/internal/domain/serp"
	"adintel/internal/metrics"
)

// Store is the persistence the differ needs
type Store interface {
	GetWatchlistEntry(ctx context.Context, id string) (*creative.WatchlistEntry, error)
	ListWatchlist(ctx context.Context, jobID string) ([]creative.WatchlistEntry, error)
	GetInventory(ctx context.Context, id string) (*creative.Inventory, error)
	LatestInventory(ctx context.Context, advertiser, region string) (*creative.Inventory, error)
	CommitPoll(ctx context.Context, c creative.PollCommit) error
}

// Publisher relays committed alerts to live subscribers
type Publisher interface {
	Publish(topic, jobID string, payload interface{})
}

// Differ polls watched advertisers and raises alerts when their creative set
// changes between polls.
type Differ struct {
	store   Store
	fetcher creative.Fetcher
	events  Publisher
	idCap   int
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewDiffer creates a new differ. events may be nil.
func NewDiffer(store Store, fetcher creative.Fetcher, events Publisher, idCap int, logger *zap.Logger) *Differ {
	if logger == nil {
		logger = zap.NewNop()
	}
	if idCap < 1 {
		idCap = 20
	}
	return &Differ{
		store:   store,
		fetcher: fetcher,
		events:  events,
		idCap:   idCap,
		metrics: metrics.New(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PollEntry polls one watchlist entry by id
func (d *Differ) PollEntry(ctx context.Context, entryID string) ([]creative.Alert, error) {
	entry, err := d.store.GetWatchlistEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return d.Poll(ctx, *entry)
}

// Poll fetches the entry's current inventory and diffs it against the
// baseline. On cold start the inventory is stored without alerts. Every
// successful poll advances the entry's baseline, alerts or not. A failed or
// empty fetch leaves all state untouched.
func (d *Differ) Poll(ctx context.Context, entry creative.WatchlistEntry) ([]creative.Alert, error) {
	fetched, err := d.fetcher.FetchCreativeInventory(ctx, entry.Advertiser, entry.Region)
	if err != nil {
		d.metrics.FetchFailures.WithLabelValues("creatives").Inc()
		return nil, fmt.Errorf("%w: %v", serp.ErrSourceUnavailable, err)
	}

	now := d.now()
	current := creative.Inventory{
		ID:         uuid.New().String(),
		Advertiser: entry.Advertiser,
		Region:     entry.Region,
		Creatives:  fetched.Creatives,
		RawPayload: fetched.Raw,
		CapturedAt: now,
	}
	// creatives without a stable id cannot be diffed; an inventory made only
	// of those would read as every creative removed
	if len(current.IDs()) == 0 {
		return nil, fmt.Errorf("%w: no identifiable creatives for %s", serp.ErrSourceUnavailable, entry.Advertiser)
	}

	previous, err := d.baseline(ctx, entry)
	if err != nil {
		return nil, err
	}

	var alerts []creative.Alert
	if previous != nil {
		added, removed := Diff(previous.IDs(), current.IDs())
		if len(added) > 0 {
			alerts = append(alerts, d.alert(entry, creative.AlertNewCreative, previous.ID, current.ID, added, now))
		}
		if len(removed) > 0 {
			alerts = append(alerts, d.alert(entry, creative.AlertRemovedCreative, previous.ID, current.ID, removed, now))
		}
	}

	err = d.store.CommitPoll(ctx, creative.PollCommit{
		EntryID:   entry.ID,
		Inventory: current,
		Alerts:    alerts,
		PolledAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("error committing poll: %w", err)
	}

	for _, a := range alerts {
		d.metrics.CreativeAlerts.WithLabelValues(string(a.Type)).Inc()
		if d.events != nil {
			d.events.Publish(events.TopicCreativePrefix+string(a.Type), entry.JobID, a)
		}
	}

	d.logger.Info("Polled creative inventory",
		zap.String("watchlist_id", entry.ID),
		zap.String("advertiser", entry.Advertiser),
		zap.Int("creatives", len(current.Creatives)),
		zap.Int("alerts", len(alerts)),
		zap.Bool("cold_start", previous == nil),
	)
	return alerts, nil
}

// baseline returns the inventory to diff against, or nil on cold start
func (d *Differ) baseline(ctx context.Context, entry creative.WatchlistEntry) (*creative.Inventory, error) {
	if entry.LastInventoryID != "" {
		inv, err := d.store.GetInventory(ctx, entry.LastInventoryID)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, serp.ErrNotFound) {
			return nil, fmt.Errorf("error loading baseline inventory: %w", err)
		}
	}

	inv, err := d.store.LatestInventory(ctx, entry.Advertiser, entry.Region)
	if errors.Is(err, serp.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading latest inventory: %w", err)
	}
	return inv, nil
}

func (d *Differ) alert(entry creative.WatchlistEntry, typ creative.AlertType, prevID, newID string, ids []string, at time.Time) creative.Alert {
	capped := ids
	if len(capped) > d.idCap {
		capped = capped[:d.idCap]
	}
	return creative.Alert{
		ID:                  uuid.New().String(),
		WatchlistID:         entry.ID,
		Advertiser:          entry.Advertiser,
		Type:                typ,
		PreviousInventoryID: prevID,
		NewInventoryID:      newID,
		CreativeIDs:         capped,
		ChangeCount:         len(ids),
		CreatedAt:           at,
	}
}

// PollAll polls every watchlist entry. A failing entry is logged and the
// pass moves on.
func (d *Differ) PollAll(ctx context.Context) (int, error) {
	entries, err := d.store.ListWatchlist(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("error listing watchlist: %w", err)
	}

	total := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		alerts, err := d.Poll(ctx, entry)
		if err != nil {
			d.logger.Warn("Creative poll failed",
				zap.String("watchlist_id", entry.ID),
				zap.String("advertiser", entry.Advertiser),
				zap.Error(err),
			)
			continue
		}
		total += len(alerts)
	}
	return total, nil
}

// Diff returns the ids only in current (added) and only in previous
// (removed), each sorted.
func Diff(previous, current map[string]struct{}) (added, removed []string) {
	for id := range current {
		if _, ok := previous[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range previous {
		if _, ok := current[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
