package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"adintel/internal/domain/serp"
)

// TargetStore implements storage for jobs and their query targets
type TargetStore struct {
	db *pgxpool.Pool
}

// NewTargetStore creates a new target store
func NewTargetStore(db *pgxpool.Pool) *TargetStore {
	return &TargetStore{
		db: db,
	}
}

// CreateJob inserts a new research job
func (s *TargetStore) CreateJob(ctx context.Context, name string) (*serp.Job, error) {
	job := serp.Job{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(ctx, `INSERT INTO jobs (id, name, created_at) VALUES ($1, $2, $3)`,
		job.ID, job.Name, job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error inserting job: %w", err)
	}

	return &job, nil
}

// GetJob retrieves a job by ID
func (s *TargetStore) GetJob(ctx context.Context, id string) (*serp.Job, error) {
	var job serp.Job
	err := s.db.QueryRow(ctx, `SELECT id, name, created_at FROM jobs WHERE id = $1`, id).
		Scan(&job.ID, &job.Name, &job.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, serp.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying job: %w", err)
	}
	return &job, nil
}

// ListJobs returns every job, newest first
func (s *TargetStore) ListJobs(ctx context.Context) ([]serp.Job, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, created_at FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var jobs []serp.Job
	for rows.Next() {
		var job serp.Job
		if err := rows.Scan(&job.ID, &job.Name, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// DeleteJob removes a job; targets, snapshots, sightings and every derived
// record cascade with it.
func (s *TargetStore) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return serp.ErrNotFound
	}
	return nil
}

// AddTargets inserts one target per keyword sharing location and locale
func (s *TargetStore) AddTargets(ctx context.Context, jobID string, keywords []string, location, country, language string) ([]serp.Target, error) {
	if country == "" {
		country = "us"
	}
	if language == "" {
		language = "en"
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var targets []serp.Target
	now := time.Now().UTC()
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}

		t := serp.Target{
			ID:        uuid.New().String(),
			JobID:     jobID,
			Keyword:   kw,
			Location:  strings.TrimSpace(location),
			Country:   country,
			Language:  language,
			CreatedAt: now,
		}

		_, err := tx.Exec(
			ctx,
			`INSERT INTO targets (id, job_id, keyword, location, serp_location, country, language, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, t.JobID, t.Keyword, t.Location, t.Location, t.Country, t.Language, t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error inserting target: %w", err)
		}
		t.SerpLocation = t.Location
		targets = append(targets, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing targets: %w", err)
	}

	return targets, nil
}

const targetColumns = `id, job_id, keyword, location, serp_location, country, language, presence_tracking_enabled, created_at`

func scanTarget(row pgx.Row) (serp.Target, error) {
	var t serp.Target
	err := row.Scan(
		&t.ID,
		&t.JobID,
		&t.Keyword,
		&t.Location,
		&t.SerpLocation,
		&t.Country,
		&t.Language,
		&t.PresenceTrackingEnabled,
		&t.CreatedAt,
	)
	return t, err
}

// GetTarget retrieves a target by ID
func (s *TargetStore) GetTarget(ctx context.Context, id string) (*serp.Target, error) {
	t, err := scanTarget(s.db.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, serp.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying target: %w", err)
	}
	return &t, nil
}

// ListTargets returns the targets of a job
func (s *TargetStore) ListTargets(ctx context.Context, jobID string) ([]serp.Target, error) {
	return s.listTargets(ctx, `SELECT `+targetColumns+` FROM targets WHERE job_id = $1 ORDER BY created_at, keyword`, jobID)
}

// ListTrackedTargets returns every target with presence tracking enabled
func (s *TargetStore) ListTrackedTargets(ctx context.Context) ([]serp.Target, error) {
	return s.listTargets(ctx, `SELECT `+targetColumns+` FROM targets WHERE presence_tracking_enabled ORDER BY created_at`)
}

func (s *TargetStore) listTargets(ctx context.Context, query string, args ...interface{}) ([]serp.Target, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var targets []serp.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning target: %w", err)
		}
		targets = append(targets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}

	return targets, nil
}

// SetPresenceTracking switches presence sampling for a target on or off
func (s *TargetStore) SetPresenceTracking(ctx context.Context, targetID string, enabled bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE targets SET presence_tracking_enabled = $2 WHERE id = $1`, targetID, enabled)
	if err != nil {
		return fmt.Errorf("error updating target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return serp.ErrNotFound
	}
	return nil
}
