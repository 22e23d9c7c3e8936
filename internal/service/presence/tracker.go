package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"adintel/internal/domain/presence"
	"adintel/internal/domain/serp"
	"adintel/internal/metrics"
)

// TargetReader resolves the targets to sample
type TargetReader interface {
	GetTarget(ctx context.Context, id string) (*serp.Target, error)
	ListTrackedTargets(ctx context.Context) ([]serp.Target, error)
}

// SampleStore persists presence samples
type SampleStore interface {
	RecordSamples(ctx context.Context, samples []presence.Sample) error
	SamplesSince(ctx context.Context, targetID string, since time.Time) ([]presence.Sample, error)
}

// Tracker samples which advertisers are showing for tracked targets and
// summarises their hour-of-day presence.
type Tracker struct {
	targets TargetReader
	samples SampleStore
	fetcher serp.Fetcher
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewTracker creates a new presence tracker
func NewTracker(targets TargetReader, samples SampleStore, fetcher serp.Fetcher, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		targets: targets,
		samples: samples,
		fetcher: fetcher,
		metrics: metrics.New(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SampleOne records one presence sample per advertiser currently shown for
// the target. Targets without tracking enabled are skipped. A fetch failure
// returns OutcomeFailed wrapping serp.ErrSourceUnavailable and writes nothing.
func (t *Tracker) SampleOne(ctx context.Context, targetID string) (presence.Outcome, error) {
	target, err := t.targets.GetTarget(ctx, targetID)
	if err != nil {
		return presence.OutcomeFailed, err
	}
	return t.sample(ctx, *target)
}

func (t *Tracker) sample(ctx context.Context, target serp.Target) (presence.Outcome, error) {
	if !target.PresenceTrackingEnabled {
		return presence.OutcomeSkipped, nil
	}

	res, err := t.fetcher.FetchAdSightings(ctx, target.Query(serp.DeviceDesktop))
	if err != nil {
		t.metrics.FetchFailures.WithLabelValues("serp").Inc()
		return presence.OutcomeFailed, fmt.Errorf("%w: %v", serp.ErrSourceUnavailable, err)
	}

	at := t.now()
	seen := make(map[string]struct{})
	var samples []presence.Sample
	for _, obs := range res.Observations {
		adv := obs.Advertiser()
		if adv == serp.UnknownAdvertiser {
			continue
		}
		if _, dup := seen[adv]; dup {
			continue
		}
		seen[adv] = struct{}{}
		samples = append(samples, presence.Sample{
			TargetID:   target.ID,
			Advertiser: adv,
			Timestamp:  at,
			Appeared:   true,
		})
	}

	if err := t.samples.RecordSamples(ctx, samples); err != nil {
		return presence.OutcomeFailed, fmt.Errorf("error recording presence samples: %w", err)
	}
	t.metrics.PresenceSamples.Add(float64(len(samples)))

	t.logger.Debug("Sampled presence",
		zap.String("target_id", target.ID),
		zap.Int("advertisers", len(samples)),
	)
	return presence.OutcomeSampled, nil
}

// SampleAllEnabled samples every tracked target. A failing target is logged
// and counted; it never stops the rest of the pass.
func (t *Tracker) SampleAllEnabled(ctx context.Context) (presence.BatchResult, error) {
	var result presence.BatchResult

	targets, err := t.targets.ListTrackedTargets(ctx)
	if err != nil {
		return result, fmt.Errorf("error listing tracked targets: %w", err)
	}

	for _, target := range targets {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		outcome, err := t.sampleIsolated(ctx, target)
		switch outcome {
		case presence.OutcomeSampled:
			result.Sampled++
		case presence.OutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
			t.metrics.PresenceTargetFailures.Inc()
			t.logger.Warn("Presence sampling failed",
				zap.String("target_id", target.ID),
				zap.Error(err),
			)
		}
	}

	t.logger.Info("Presence sampling pass complete",
		zap.Int("sampled", result.Sampled),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (t *Tracker) sampleIsolated(ctx context.Context, target serp.Target) (outcome presence.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = presence.OutcomeFailed
			err = fmt.Errorf("panic sampling target: %v", r)
		}
	}()
	return t.sample(ctx, target)
}

// Last24h summarises the target's samples over the trailing 24 hours
func (t *Tracker) Last24h(ctx context.Context, targetID string) ([]presence.Summary, error) {
	samples, err := t.samples.SamplesSince(ctx, targetID, t.now().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("error reading presence samples: %w", err)
	}
	return SummarizeByHour(samples), nil
}

// Refresh samples the target once and returns its updated summary. A source
// failure is reported through the outcome, not as an error.
func (t *Tracker) Refresh(ctx context.Context, targetID string) (presence.Outcome, []presence.Summary, error) {
	outcome, err := t.SampleOne(ctx, targetID)
	if err != nil && !errors.Is(err, serp.ErrSourceUnavailable) {
		return outcome, nil, err
	}
	if err != nil {
		t.logger.Warn("Presence refresh fetch failed", zap.String("target_id", targetID), zap.Error(err))
	}

	summary, err := t.Last24h(ctx, targetID)
	if err != nil {
		return outcome, nil, err
	}
	return outcome, summary, nil
}

// SummarizeByHour buckets samples by UTC hour of day (0-23). Samples from
// different days that fall in the same hour share a bucket, and a bucket with
// no sample is indistinguishable from one sampled while absent.
func SummarizeByHour(samples []presence.Sample) []presence.Summary {
	hours := make(map[string]map[int]struct{})
	for _, s := range samples {
		set, ok := hours[s.Advertiser]
		if !ok {
			set = make(map[int]struct{})
			hours[s.Advertiser] = set
		}
		if s.Appeared {
			set[s.Timestamp.UTC().Hour()] = struct{}{}
		}
	}

	out := make([]presence.Summary, 0, len(hours))
	for adv, set := range hours {
		list := make([]int, 0, len(set))
		for h := range set {
			list = append(list, h)
		}
		sort.Ints(list)

		summary := presence.Summary{Advertiser: adv, HoursPresent: len(list)}
		if len(list) > 0 {
			first, last := list[0], list[len(list)-1]
			summary.FirstHour = &first
			summary.LastHour = &last
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Advertiser < out[j].Advertiser })
	return out
}
