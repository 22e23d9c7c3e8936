package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"adintel/internal/domain/presence"
)

// PresenceStore implements storage for presence samples
type PresenceStore struct {
	db *pgxpool.Pool
}

// NewPresenceStore creates a new presence store
func NewPresenceStore(db *pgxpool.Pool) *PresenceStore {
	return &PresenceStore{
		db: db,
	}
}

// RecordSamples appends one sampling tick's rows in a single transaction
func (s *PresenceStore) RecordSamples(ctx context.Context, samples []presence.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, sample := range samples {
		_, err := tx.Exec(
			ctx,
			`INSERT INTO presence_samples (target_id, advertiser, sampled_at, appeared) VALUES ($1, $2, $3, $4)`,
			sample.TargetID,
			sample.Advertiser,
			sample.Timestamp,
			sample.Appeared,
		)
		if err != nil {
			return fmt.Errorf("error inserting presence sample: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing presence samples: %w", err)
	}

	return nil
}

// SamplesSince returns a target's samples at or after since, oldest first
func (s *PresenceStore) SamplesSince(ctx context.Context, targetID string, since time.Time) ([]presence.Sample, error) {
	query := `
		SELECT target_id, advertiser, sampled_at, appeared
		FROM presence_samples
		WHERE target_id = $1 AND sampled_at >= $2
		ORDER BY sampled_at
	`

	rows, err := s.db.Query(ctx, query, targetID, since)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var samples []presence.Sample
	for rows.Next() {
		var sample presence.Sample
		if err := rows.Scan(&sample.TargetID, &sample.Advertiser, &sample.Timestamp, &sample.Appeared); err != nil {
			return nil, fmt.Errorf("error scanning presence sample: %w", err)
		}
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating presence samples: %w", err)
	}

	return samples, nil
}
