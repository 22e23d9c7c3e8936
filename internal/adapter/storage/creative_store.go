package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"adintel/internal/domain/creative"
	"adintel/internal/domain/serp"
)

// CreativeStore implements storage for the competitor watchlist, creative
// inventories and the alerts derived from them
type CreativeStore struct {
	db *pgxpool.Pool
}

// NewCreativeStore creates a new creative store
func NewCreativeStore(db *pgxpool.Pool) *CreativeStore {
	return &CreativeStore{
		db: db,
	}
}

// AddWatchlistEntry starts watching an advertiser's creatives for a job
func (s *CreativeStore) AddWatchlistEntry(ctx context.Context, jobID, advertiser, region string) (*creative.WatchlistEntry, error) {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = "US"
	}

	entry := creative.WatchlistEntry{
		ID:         uuid.New().String(),
		JobID:      jobID,
		Advertiser: strings.TrimSpace(advertiser),
		Region:     region,
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO competitor_watchlist (id, job_id, advertiser, region) VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.JobID, entry.Advertiser, entry.Region)
	if err != nil {
		return nil, fmt.Errorf("error inserting watchlist entry: %w", err)
	}

	return &entry, nil
}

const watchlistColumns = `id, job_id, advertiser, region, last_inventory_id, last_polled_at`

func scanWatchlistEntry(row pgx.Row) (creative.WatchlistEntry, error) {
	var e creative.WatchlistEntry
	var lastInventory *string
	err := row.Scan(&e.ID, &e.JobID, &e.Advertiser, &e.Region, &lastInventory, &e.LastPolledAt)
	if lastInventory != nil {
		e.LastInventoryID = *lastInventory
	}
	return e, err
}

// GetWatchlistEntry retrieves a watchlist entry by ID
func (s *CreativeStore) GetWatchlistEntry(ctx context.Context, id string) (*creative.WatchlistEntry, error) {
	e, err := scanWatchlistEntry(s.db.QueryRow(ctx, `SELECT `+watchlistColumns+` FROM competitor_watchlist WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, serp.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying watchlist entry: %w", err)
	}
	return &e, nil
}

// ListWatchlist returns a job's entries, or every entry when jobID is empty
func (s *CreativeStore) ListWatchlist(ctx context.Context, jobID string) ([]creative.WatchlistEntry, error) {
	query := `SELECT ` + watchlistColumns + ` FROM competitor_watchlist WHERE ($1::text = '' OR job_id = $1::text) ORDER BY advertiser, id`

	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var entries []creative.WatchlistEntry
	for rows.Next() {
		e, err := scanWatchlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning watchlist entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watchlist: %w", err)
	}

	return entries, nil
}

const inventoryColumns = `id, advertiser, region, creatives, captured_at`

func scanInventory(row pgx.Row) (creative.Inventory, error) {
	var inv creative.Inventory
	var creativesJSON []byte
	if err := row.Scan(&inv.ID, &inv.Advertiser, &inv.Region, &creativesJSON, &inv.CapturedAt); err != nil {
		return inv, err
	}
	if err := json.Unmarshal(creativesJSON, &inv.Creatives); err != nil {
		return inv, fmt.Errorf("error unmarshaling creatives: %w", err)
	}
	return inv, nil
}

// GetInventory retrieves an inventory snapshot by ID
func (s *CreativeStore) GetInventory(ctx context.Context, id string) (*creative.Inventory, error) {
	inv, err := scanInventory(s.db.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM creative_inventories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, serp.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying inventory: %w", err)
	}
	return &inv, nil
}

// LatestInventory returns the most recent inventory for an advertiser and
// region, or ErrNotFound on a cold start
func (s *CreativeStore) LatestInventory(ctx context.Context, advertiser, region string) (*creative.Inventory, error) {
	query := `SELECT ` + inventoryColumns + ` FROM creative_inventories
		WHERE advertiser = $1 AND region = $2
		ORDER BY captured_at DESC LIMIT 1`

	inv, err := scanInventory(s.db.QueryRow(ctx, query, advertiser, region))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, serp.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying latest inventory: %w", err)
	}
	return &inv, nil
}

// CommitPoll stores the new inventory, its alerts and the entry's new
// baseline atomically, so a failed poll leaves the previous baseline intact.
func (s *CreativeStore) CommitPoll(ctx context.Context, c creative.PollCommit) error {
	inv := c.Inventory

	creativesJSON, err := json.Marshal(inv.Creatives)
	if err != nil {
		return fmt.Errorf("error marshaling creatives: %w", err)
	}

	ids := make([]string, 0, len(inv.Creatives))
	for _, cr := range inv.Creatives {
		if cr.ID != "" {
			ids = append(ids, cr.ID)
		}
	}

	var raw []byte
	if len(inv.RawPayload) > 0 && json.Valid(inv.RawPayload) {
		raw = inv.RawPayload
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(
		ctx,
		`INSERT INTO creative_inventories (id, advertiser, region, creative_ids, creatives, raw_payload, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.Advertiser, inv.Region, ids, creativesJSON, raw, inv.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting inventory: %w", err)
	}

	for _, a := range c.Alerts {
		_, err = tx.Exec(
			ctx,
			`INSERT INTO creative_alerts (
				id, watchlist_id, type, previous_inventory_id, new_inventory_id,
				creative_ids, change_count, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.WatchlistID, string(a.Type), a.PreviousInventoryID, a.NewInventoryID,
			a.CreativeIDs, a.ChangeCount, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("error inserting creative alert: %w", err)
		}
	}

	tag, err := tx.Exec(
		ctx,
		`UPDATE competitor_watchlist SET last_inventory_id = $2, last_polled_at = $3 WHERE id = $1`,
		c.EntryID, inv.ID, c.PolledAt,
	)
	if err != nil {
		return fmt.Errorf("error updating watchlist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return serp.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing poll: %w", err)
	}

	return nil
}

// ListAlerts returns a job's most recent creative alerts
func (s *CreativeStore) ListAlerts(ctx context.Context, jobID string, limit int) ([]creative.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT
			a.id, a.watchlist_id, w.advertiser, a.type, a.previous_inventory_id,
			a.new_inventory_id, a.creative_ids, a.change_count, a.created_at
		FROM creative_alerts a
		JOIN competitor_watchlist w ON w.id = a.watchlist_id
		WHERE w.job_id = $1
		ORDER BY a.created_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var alerts []creative.Alert
	for rows.Next() {
		var a creative.Alert
		var alertType string
		err := rows.Scan(
			&a.ID,
			&a.WatchlistID,
			&a.Advertiser,
			&alertType,
			&a.PreviousInventoryID,
			&a.NewInventoryID,
			&a.CreativeIDs,
			&a.ChangeCount,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning creative alert: %w", err)
		}
		a.Type = creative.AlertType(alertType)
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating creative alerts: %w", err)
	}

	return alerts, nil
}
