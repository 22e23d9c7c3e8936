package creative

import (
	"context"
	"time"
)

// AlertType is the kind of change an alert reports
type AlertType string

const (
	AlertNewCreative     AlertType = "new_creative"
	AlertRemovedCreative AlertType = "removed_creative"
)

// Creative is one ad creative attributed to an advertiser
type Creative struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Format    string `json:"format"`
	FirstSeen string `json:"first_seen,omitempty"`
	LastSeen  string `json:"last_seen,omitempty"`
}

// Inventory is an advertiser's full creative set at one point in time
type Inventory struct {
	ID         string     `json:"id"`
	Advertiser string     `json:"advertiser"`
	Region     string     `json:"region"`
	Creatives  []Creative `json:"creatives"`
	RawPayload []byte     `json:"-"`
	CapturedAt time.Time  `json:"captured_at"`
}

// IDs returns the set of stable creative identifiers, skipping creatives the
// source reported without one.
func (inv Inventory) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(inv.Creatives))
	for _, c := range inv.Creatives {
		if c.ID != "" {
			ids[c.ID] = struct{}{}
		}
	}
	return ids
}

// WatchlistEntry is a competitor whose creatives are polled for changes
type WatchlistEntry struct {
	ID              string     `json:"id"`
	JobID           string     `json:"job_id"`
	Advertiser      string     `json:"advertiser"`
	Region          string     `json:"region"`
	LastInventoryID string     `json:"last_inventory_id,omitempty"`
	LastPolledAt    *time.Time `json:"last_polled_at,omitempty"`
}

// Alert records one detected change-set between two inventories. CreativeIDs
// is capped; ChangeCount is not.
type Alert struct {
	ID                  string    `json:"id"`
	WatchlistID         string    `json:"watchlist_id"`
	Advertiser          string    `json:"advertiser,omitempty"`
	Type                AlertType `json:"type"`
	PreviousInventoryID string    `json:"previous_inventory_id"`
	NewInventoryID      string    `json:"new_inventory_id"`
	CreativeIDs         []string  `json:"creative_ids"`
	ChangeCount         int       `json:"change_count"`
	CreatedAt           time.Time `json:"created_at"`
}

// Fetched is a resolved inventory fetch
type Fetched struct {
	Creatives []Creative
	Raw       []byte
}

// Fetcher fetches an advertiser's current creative inventory
type Fetcher interface {
	FetchCreativeInventory(ctx context.Context, advertiser, region string) (Fetched, error)
}

// PollCommit is everything one poll persists: the new inventory, any alerts
// against the previous one, and the entry's advanced baseline.
type PollCommit struct {
	EntryID   string
	Inventory Inventory
	Alerts    []Alert
	PolledAt  time.Time
}
