package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"adintel/internal/adapter/events"
	"adintel/internal/domain/serp"
	"adintel/internal/metrics"
)

// TargetReader resolves a job's targets
type TargetReader interface {
	GetTarget(ctx context.Context, id string) (*serp.Target, error)
	ListTargets(ctx context.Context, jobID string) ([]serp.Target, error)
}

// SnapshotWriter appends snapshots to the sighting log
type SnapshotWriter interface {
	RecordSnapshot(ctx context.Context, snap serp.Snapshot, sightings []serp.Sighting) (string, error)
}

// Invalidator drops derived results for a job once new snapshots land
type Invalidator interface {
	Invalidate(ctx context.Context, jobID string) error
}

// Publisher relays ingestion events to live subscribers
type Publisher interface {
	Publish(topic, jobID string, payload interface{})
}

// DeviceResult is the outcome of one device fetch for a target
type DeviceResult struct {
	Device     serp.Device `json:"device"`
	SnapshotID string      `json:"snapshot_id,omitempty"`
	Ads        int         `json:"ads"`
	Error      string      `json:"error,omitempty"`
}

// JobResult tallies one ingestion pass over a job
type JobResult struct {
	Targets   int `json:"targets"`
	Snapshots int `json:"snapshots"`
	Failed    int `json:"failed"`
}

// SnapshotEvent is published after a snapshot commits
type SnapshotEvent struct {
	SnapshotID string      `json:"snapshot_id"`
	TargetID   string      `json:"target_id"`
	Device     serp.Device `json:"device"`
	Ads        int         `json:"ads"`
	CapturedAt time.Time   `json:"captured_at"`
}

// Service fetches ad sightings for targets and records them as snapshots
type Service struct {
	targets TargetReader
	writer  SnapshotWriter
	fetcher serp.Fetcher
	cache   Invalidator
	events  Publisher
	maxAds  int
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new ingestion service. cache and events may be nil.
func NewService(
	targets TargetReader,
	writer SnapshotWriter,
	fetcher serp.Fetcher,
	cache Invalidator,
	events Publisher,
	maxAds int,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		targets: targets,
		writer:  writer,
		fetcher: fetcher,
		cache:   cache,
		events:  events,
		maxAds:  maxAds,
		metrics: metrics.New(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RunTargetByID runs a target after checking it belongs to the job
func (s *Service) RunTargetByID(ctx context.Context, jobID, targetID string) ([]DeviceResult, error) {
	target, err := s.targets.GetTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.JobID != jobID {
		return nil, serp.ErrNotFound
	}
	return s.RunTarget(ctx, *target)
}

// RunTarget fetches the target once per device and records one snapshot per
// successful fetch. A failed device is skipped and reported; only when every
// device fails does it return serp.ErrSourceUnavailable. A storage failure
// stops the run, but snapshots committed before it still invalidate the
// job's cached insights.
func (s *Service) RunTarget(ctx context.Context, target serp.Target) ([]DeviceResult, error) {
	results := make([]DeviceResult, 0, len(serp.Devices))
	recorded := 0
	var recordErr error

	for _, device := range serp.Devices {
		res := DeviceResult{Device: device}

		fetched, err := s.fetcher.FetchAdSightings(ctx, target.Query(device))
		if err != nil {
			s.metrics.FetchFailures.WithLabelValues("serp").Inc()
			s.logger.Warn("Ad fetch failed",
				zap.String("target_id", target.ID),
				zap.String("device", string(device)),
				zap.Error(err),
			)
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		snap, sightings := s.build(target, device, fetched)
		id, err := s.writer.RecordSnapshot(ctx, snap, sightings)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			recordErr = fmt.Errorf("error recording snapshot: %w", err)
			break
		}

		res.SnapshotID = id
		res.Ads = len(sightings)
		results = append(results, res)
		recorded++

		s.metrics.SnapshotsRecorded.WithLabelValues(string(device)).Inc()
		if s.events != nil {
			s.events.Publish(events.TopicSnapshotRecorded, target.JobID, SnapshotEvent{
				SnapshotID: id,
				TargetID:   target.ID,
				Device:     device,
				Ads:        len(sightings),
				CapturedAt: snap.CapturedAt,
			})
		}
	}

	if recorded > 0 && s.cache != nil {
		if err := s.cache.Invalidate(ctx, target.JobID); err != nil {
			s.logger.Warn("Failed to invalidate insight cache", zap.String("job_id", target.JobID), zap.Error(err))
		}
	}

	if recordErr != nil {
		return results, recordErr
	}
	if recorded == 0 {
		return results, fmt.Errorf("%w: no device could be fetched for target %s", serp.ErrSourceUnavailable, target.ID)
	}
	return results, nil
}

func (s *Service) build(target serp.Target, device serp.Device, fetched serp.FetchResult) (serp.Snapshot, []serp.Sighting) {
	now := s.now()
	snap := serp.Snapshot{
		ID:         uuid.New().String(),
		TargetID:   target.ID,
		Device:     device,
		CapturedAt: now,
		RawPayload: fetched.Raw,
	}

	observations := fetched.Observations
	if s.maxAds > 0 && len(observations) > s.maxAds {
		observations = observations[:s.maxAds]
	}

	sightings := make([]serp.Sighting, 0, len(observations))
	for i, obs := range observations {
		rank := obs.Rank
		if rank <= 0 {
			rank = i + 1
		}
		block := obs.Block
		if block == "" {
			block = serp.BlockBottom
		}
		sightings = append(sightings, serp.Sighting{
			ID:             uuid.New().String(),
			SnapshotID:     snap.ID,
			JobID:          target.JobID,
			Advertiser:     obs.Advertiser(),
			ExternalAdID:   obs.ExternalAdID,
			Device:         device,
			Block:          block,
			Rank:           rank,
			Headline:       obs.Headline,
			Description:    obs.Description,
			DisplayedLink:  obs.DisplayedLink,
			DestinationURL: obs.DestinationURL,
			CapturedAt:     now,
		})
	}
	return snap, sightings
}

// RunJob runs every target of the job. A failing target is logged and the
// pass continues.
func (s *Service) RunJob(ctx context.Context, jobID string) (JobResult, error) {
	var result JobResult

	targets, err := s.targets.ListTargets(ctx, jobID)
	if err != nil {
		return result, fmt.Errorf("error listing targets: %w", err)
	}

	for _, target := range targets {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Targets++

		devices, err := s.RunTarget(ctx, target)
		for _, d := range devices {
			if d.SnapshotID != "" {
				result.Snapshots++
			}
		}
		if err != nil {
			result.Failed++
			s.logger.Warn("Target ingestion failed",
				zap.String("job_id", jobID),
				zap.String("target_id", target.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Job ingestion complete",
		zap.String("job_id", jobID),
		zap.Int("targets", result.Targets),
		zap.Int("snapshots", result.Snapshots),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}
