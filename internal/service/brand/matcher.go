package brand

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"adintel/internal/adapter/events"
	"adintel/internal/domain/brand"
	"adintel/internal/domain/serp"
	"adintel/internal/metrics"
)

// Store is the brand asset and violation persistence
type Store interface {
	CreateAsset(ctx context.Context, a brand.Asset) (*brand.Asset, error)
	ListAssets(ctx context.Context, jobID string) ([]brand.Asset, error)
	ViolationKeys(ctx context.Context, jobID string) (map[brand.Key]struct{}, error)
	InsertViolation(ctx context.Context, v brand.Violation) (bool, error)
	ListViolations(ctx context.Context, jobID string, status *brand.Status) ([]brand.Violation, error)
	GetViolations(ctx context.Context, jobID string, ids []string) ([]brand.Violation, error)
	UpdateViolationStatus(ctx context.Context, jobID, id string, status brand.Status, reviewedAt time.Time) error
}

// SightingReader supplies the job's ad text
type SightingReader interface {
	ForEachInWindow(ctx context.Context, w serp.Window, fn func(serp.Sighting) error) error
}

// Publisher relays new violations to live subscribers
type Publisher interface {
	Publish(topic, jobID string, payload interface{})
}

// Matcher scans a job's ads for brand asset mentions
type Matcher struct {
	store     Store
	sightings SightingReader
	events    Publisher
	trail     int
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewMatcher creates a new matcher. trail is how many characters after the
// match are kept as evidence. events may be nil.
func NewMatcher(store Store, sightings SightingReader, events Publisher, trail int, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if trail < 0 {
		trail = 40
	}
	return &Matcher{
		store:     store,
		sightings: sightings,
		events:    events,
		trail:     trail,
		metrics:   metrics.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type compiledAsset struct {
	label string
	re    *regexp.Regexp
}

// compile turns assets into case-insensitive matchers, dropping any regex
// that does not parse
func (m *Matcher) compile(assets []brand.Asset) []compiledAsset {
	out := make([]compiledAsset, 0, len(assets))
	for _, a := range assets {
		var expr string
		switch a.Kind {
		case brand.KindRegex:
			if a.Pattern == "" {
				continue
			}
			expr = "(?i)" + a.Pattern
		default:
			if a.Term == "" {
				continue
			}
			expr = "(?i)" + regexp.QuoteMeta(a.Term)
		}

		re, err := regexp.Compile(expr)
		if err != nil {
			m.logger.Warn("Skipping brand asset with invalid pattern",
				zap.String("asset_id", a.ID),
				zap.String("pattern", a.Pattern),
				zap.Error(err),
			)
			continue
		}
		out = append(out, compiledAsset{label: a.Label(), re: re})
	}
	return out
}

// Scan matches every ad recorded for the job against the job's and the global
// assets and records new violations. It returns how many were inserted; a
// repeat scan with no new ads returns zero.
func (m *Matcher) Scan(ctx context.Context, jobID string) (int, error) {
	assets, err := m.store.ListAssets(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("error listing brand assets: %w", err)
	}
	compiled := m.compile(assets)
	if len(compiled) == 0 {
		return 0, nil
	}

	known, err := m.store.ViolationKeys(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("error loading violation keys: %w", err)
	}

	var candidates []brand.Violation
	err = m.sightings.ForEachInWindow(ctx, serp.Window{JobID: jobID, Device: serp.DeviceAll}, func(s serp.Sighting) error {
		text := s.Text()
		for _, asset := range compiled {
			loc := asset.re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			v := brand.Violation{
				JobID:          jobID,
				AdID:           s.ID,
				Advertiser:     s.Advertiser,
				Source:         "serp",
				MatchedAsset:   asset.label,
				MatchedSnippet: snippet(text, loc, m.trail),
				CapturedAt:     s.CapturedAt,
				Status:         brand.StatusNew,
			}
			if _, seen := known[v.Key()]; seen {
				continue
			}
			known[v.Key()] = struct{}{}
			candidates = append(candidates, v)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error reading job ads: %w", err)
	}

	inserted := 0
	for _, v := range candidates {
		ok, err := m.store.InsertViolation(ctx, v)
		if err != nil {
			return inserted, fmt.Errorf("error recording violation: %w", err)
		}
		if !ok {
			continue
		}
		inserted++
		m.metrics.BrandViolations.Inc()
		if m.events != nil {
			m.events.Publish(events.TopicBrandViolation, jobID, v)
		}
	}

	m.logger.Info("Brand scan complete",
		zap.String("job_id", jobID),
		zap.Int("assets", len(compiled)),
		zap.Int("violations", inserted),
	)
	return inserted, nil
}

// snippet returns the matched span plus up to trail characters after it
func snippet(text string, loc []int, trail int) string {
	rest := text[loc[1]:]
	cut := len(rest)
	n := 0
	for i := range rest {
		if n == trail {
			cut = i
			break
		}
		n++
	}
	return text[loc[0]:loc[1]] + rest[:cut]
}

// UpdateStatus moves a violation to a new review status. Anything outside
// the fixed status set is rejected before the store is touched.
func (m *Matcher) UpdateStatus(ctx context.Context, jobID, violationID, status string) (brand.Status, error) {
	st, err := brand.ParseStatus(status)
	if err != nil {
		return "", err
	}
	if err := m.store.UpdateViolationStatus(ctx, jobID, violationID, st, m.now()); err != nil {
		return "", err
	}
	return st, nil
}

// ListViolations returns a job's violations, optionally filtered by status
func (m *Matcher) ListViolations(ctx context.Context, jobID, status string) ([]brand.Violation, error) {
	var filter *brand.Status
	if status != "" {
		st, err := brand.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter = &st
	}
	return m.store.ListViolations(ctx, jobID, filter)
}

// CreateAsset adds an asset. A nil jobID makes it global.
func (m *Matcher) CreateAsset(ctx context.Context, jobID *string, kind, term, pattern string) (*brand.Asset, error) {
	k, err := brand.ParseAssetKind(kind)
	if err != nil {
		return nil, err
	}
	a := brand.Asset{JobID: jobID, Kind: k, Term: term, Pattern: pattern}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return m.store.CreateAsset(ctx, a)
}

// ListAssets returns the job's assets and the global ones
func (m *Matcher) ListAssets(ctx context.Context, jobID string) ([]brand.Asset, error) {
	return m.store.ListAssets(ctx, jobID)
}
