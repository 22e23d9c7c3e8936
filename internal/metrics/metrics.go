package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for ingestion and the analytics engines.
type Metrics struct {
	SnapshotsRecorded *prometheus.CounterVec
	FetchFailures     *prometheus.CounterVec

	PresenceSamples        prometheus.Counter
	PresenceTargetFailures prometheus.Counter

	CreativeAlerts  *prometheus.CounterVec
	BrandViolations prometheus.Counter

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// New returns the process-wide metrics, registering them on first use.
//
// Metrics:
//   - adintel_snapshots_recorded_total{device}
//   - adintel_fetch_failures_total{source}
//   - adintel_presence_samples_total
//   - adintel_presence_target_failures_total
//   - adintel_creative_alerts_total{type}
//   - adintel_brand_violations_total
//   - adintel_insight_cache_hits_total / _misses_total
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SnapshotsRecorded: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "adintel_snapshots_recorded_total",
					Help: "Total number of snapshots written to the sighting log",
				},
				[]string{"device"},
			),
			FetchFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "adintel_fetch_failures_total",
					Help: "Total number of failed data source fetches",
				},
				[]string{"source"}, // "serp" or "creatives"
			),
			PresenceSamples: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "adintel_presence_samples_total",
					Help: "Total number of presence samples recorded",
				},
			),
			PresenceTargetFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "adintel_presence_target_failures_total",
					Help: "Total number of targets whose presence sampling failed",
				},
			),
			CreativeAlerts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "adintel_creative_alerts_total",
					Help: "Total number of creative change alerts raised",
				},
				[]string{"type"},
			),
			BrandViolations: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "adintel_brand_violations_total",
					Help: "Total number of new brand violations recorded",
				},
			),
			CacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "adintel_insight_cache_hits_total",
					Help: "Total number of auction insight cache hits",
				},
			),
			CacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "adintel_insight_cache_misses_total",
					Help: "Total number of auction insight cache misses",
				},
			),
		}
	})
	return globalMetrics
}
