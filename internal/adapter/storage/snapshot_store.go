// internal/adapter/storage/snapshot_store.go

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"adintel/internal/domain/serp"
)

// SnapshotStore implements the append-only sighting log
type SnapshotStore struct {
	db *pgxpool.Pool
}

// NewSnapshotStore creates a new snapshot store
func NewSnapshotStore(db *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{
		db: db,
	}
}

// RecordSnapshot writes a snapshot and all of its sightings in one
// transaction. Either everything is visible afterwards or nothing is.
func (s *SnapshotStore) RecordSnapshot(ctx context.Context, snap serp.Snapshot, sightings []serp.Sighting) (string, error) {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}

	var raw []byte
	if len(snap.RawPayload) > 0 && json.Valid(snap.RawPayload) {
		raw = snap.RawPayload
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(
		ctx,
		`INSERT INTO serp_snapshots (id, target_id, device, captured_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5)`,
		snap.ID,
		snap.TargetID,
		string(snap.Device),
		snap.CapturedAt,
		raw,
	)
	if err != nil {
		return "", fmt.Errorf("error inserting snapshot: %w", err)
	}

	for _, si := range sightings {
		if si.ID == "" {
			si.ID = uuid.New().String()
		}

		_, err = tx.Exec(
			ctx,
			`INSERT INTO sightings (
				id, snapshot_id, job_id, advertiser, external_ad_id, device, block, rank,
				headline, description, displayed_link, destination_url, captured_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			si.ID,
			snap.ID,
			si.JobID,
			si.Advertiser,
			si.ExternalAdID,
			string(snap.Device),
			string(si.Block),
			si.Rank,
			si.Headline,
			si.Description,
			si.DisplayedLink,
			si.DestinationURL,
			snap.CapturedAt,
		)
		if err != nil {
			return "", fmt.Errorf("error inserting sighting: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("error committing snapshot: %w", err)
	}

	return snap.ID, nil
}

// ForEachInWindow streams every sighting of the window, ordered by snapshot,
// to fn. It is the only read path over sightings; returning an error from fn
// stops the iteration.
func (s *SnapshotStore) ForEachInWindow(ctx context.Context, w serp.Window, fn func(serp.Sighting) error) error {
	device := w.Device
	if device == "" {
		device = serp.DeviceAll
	}

	query := `
		SELECT
			id, snapshot_id, job_id, advertiser, external_ad_id, device, block, rank,
			headline, description, displayed_link, destination_url, captured_at
		FROM sightings
		WHERE job_id = $1
		AND captured_at >= $2
		AND ($3::text = 'all' OR device = $3::text)
		ORDER BY captured_at, snapshot_id, rank
	`

	rows, err := s.db.Query(ctx, query, w.JobID, w.Since, string(device))
	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var si serp.Sighting
		var deviceStr, blockStr string

		err := rows.Scan(
			&si.ID,
			&si.SnapshotID,
			&si.JobID,
			&si.Advertiser,
			&si.ExternalAdID,
			&deviceStr,
			&blockStr,
			&si.Rank,
			&si.Headline,
			&si.Description,
			&si.DisplayedLink,
			&si.DestinationURL,
			&si.CapturedAt,
		)
		if err != nil {
			return fmt.Errorf("error scanning sighting: %w", err)
		}
		si.Device = serp.Device(deviceStr)
		si.Block = serp.Block(blockStr)

		if err := fn(si); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating sightings: %w", err)
	}

	return nil
}

// LastSnapshotAt returns when the job last recorded a snapshot, or nil if no
// fetch cycle has ever succeeded for it.
func (s *SnapshotStore) LastSnapshotAt(ctx context.Context, jobID string) (*time.Time, error) {
	query := `
		SELECT MAX(s.captured_at)
		FROM serp_snapshots s
		JOIN targets t ON t.id = s.target_id
		WHERE t.job_id = $1
	`

	var last *time.Time
	if err := s.db.QueryRow(ctx, query, jobID).Scan(&last); err != nil {
		return nil, fmt.Errorf("error querying last snapshot: %w", err)
	}

	return last, nil
}
