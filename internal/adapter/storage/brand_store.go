package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"adintel/internal/domain/brand"
	"adintel/internal/domain/serp"
)

// BrandStore implements storage for brand assets and trademark violations
type BrandStore struct {
	db *pgxpool.Pool
}

// NewBrandStore creates a new brand store
func NewBrandStore(db *pgxpool.Pool) *BrandStore {
	return &BrandStore{
		db: db,
	}
}

// CreateAsset inserts a brand asset; a nil JobID makes it global
func (s *BrandStore) CreateAsset(ctx context.Context, a brand.Asset) (*brand.Asset, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO brand_assets (id, job_id, kind, term, pattern, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.JobID, string(a.Kind), a.Term, a.Pattern, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error inserting brand asset: %w", err)
	}

	return &a, nil
}

// ListAssets returns the job's own assets followed by the global ones
func (s *BrandStore) ListAssets(ctx context.Context, jobID string) ([]brand.Asset, error) {
	query := `
		SELECT id, job_id, kind, term, pattern, created_at
		FROM brand_assets
		WHERE job_id = $1 OR job_id IS NULL
		ORDER BY (job_id IS NULL), created_at, id
	`

	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var assets []brand.Asset
	for rows.Next() {
		var a brand.Asset
		var kind string
		if err := rows.Scan(&a.ID, &a.JobID, &kind, &a.Term, &a.Pattern, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning brand asset: %w", err)
		}
		a.Kind = brand.AssetKind(kind)
		assets = append(assets, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating brand assets: %w", err)
	}

	return assets, nil
}

// ViolationKeys returns the dedup keys already recorded for a job
func (s *BrandStore) ViolationKeys(ctx context.Context, jobID string) (map[brand.Key]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT ad_id, matched_asset FROM trademark_violations WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	keys := make(map[brand.Key]struct{})
	for rows.Next() {
		k := brand.Key{JobID: jobID}
		if err := rows.Scan(&k.AdID, &k.MatchedAsset); err != nil {
			return nil, fmt.Errorf("error scanning violation key: %w", err)
		}
		keys[k] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating violation keys: %w", err)
	}

	return keys, nil
}

// InsertViolation records a violation unless one already exists for its
// (job, ad, matched asset) key. The check and the insert share a transaction
// and the unique constraint settles races between concurrent scans; a
// duplicate reports false without an error.
func (s *BrandStore) InsertViolation(ctx context.Context, v brand.Violation) (bool, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.Status == "" {
		v.Status = brand.StatusNew
	}
	if v.Source == "" {
		v.Source = "serp"
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM trademark_violations WHERE job_id = $1 AND ad_id = $2 AND matched_asset = $3)`,
		v.JobID, v.AdID, v.MatchedAsset,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking violation: %w", err)
	}
	if exists {
		return false, nil
	}

	tag, err := tx.Exec(
		ctx,
		`INSERT INTO trademark_violations (
			id, job_id, ad_id, advertiser, source, matched_asset, matched_snippet, captured_at, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id, ad_id, matched_asset) DO NOTHING`,
		v.ID, v.JobID, v.AdID, v.Advertiser, v.Source, v.MatchedAsset, v.MatchedSnippet, v.CapturedAt, string(v.Status),
	)
	if err != nil {
		return false, fmt.Errorf("error inserting violation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("error committing violation: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

const violationColumns = `id, job_id, ad_id, advertiser, source, matched_asset, matched_snippet, captured_at, reviewed_at, status`

func scanViolation(row pgx.Row) (brand.Violation, error) {
	var v brand.Violation
	var status string
	err := row.Scan(
		&v.ID,
		&v.JobID,
		&v.AdID,
		&v.Advertiser,
		&v.Source,
		&v.MatchedAsset,
		&v.MatchedSnippet,
		&v.CapturedAt,
		&v.ReviewedAt,
		&status,
	)
	v.Status = brand.Status(status)
	return v, err
}

// ListViolations returns a job's violations, newest capture first,
// optionally narrowed to one status
func (s *BrandStore) ListViolations(ctx context.Context, jobID string, status *brand.Status) ([]brand.Violation, error) {
	query := `SELECT ` + violationColumns + ` FROM trademark_violations WHERE job_id = $1`
	args := []interface{}{jobID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY captured_at DESC LIMIT 500`

	return s.queryViolations(ctx, query, args...)
}

// GetViolations returns the listed violations that belong to the job
func (s *BrandStore) GetViolations(ctx context.Context, jobID string, ids []string) ([]brand.Violation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + violationColumns + ` FROM trademark_violations
		WHERE job_id = $1 AND id = ANY($2) ORDER BY captured_at DESC`
	return s.queryViolations(ctx, query, jobID, ids)
}

func (s *BrandStore) queryViolations(ctx context.Context, query string, args ...interface{}) ([]brand.Violation, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var violations []brand.Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning violation: %w", err)
		}
		violations = append(violations, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating violations: %w", err)
	}

	return violations, nil
}

// UpdateViolationStatus sets a violation's review status
func (s *BrandStore) UpdateViolationStatus(ctx context.Context, jobID, id string, status brand.Status, reviewedAt time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE trademark_violations SET status = $3, reviewed_at = $4 WHERE id = $1 AND job_id = $2`,
		id, jobID, string(status), reviewedAt)
	if err != nil {
		return fmt.Errorf("error updating violation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return serp.ErrNotFound
	}
	return nil
}
