package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder using Prometheus client_golang
// metrics: CounterVec for counts, HistogramVec for durations and
// distributions, each labeled for this pipeline's own dimensions.
type PrometheusRecorder struct {
	extractionDuration *prometheus.HistogramVec
	dedupClusterSize   *prometheus.HistogramVec
	retrievalFallback  *prometheus.CounterVec
	rateLimitThrottle  *prometheus.CounterVec
}

// NewPrometheusRecorder registers and returns a Prometheus-backed Recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		extractionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memlayer_extraction_duration_seconds",
				Help:    "Duration of per-chunk memory extraction calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mem_type"},
		),
		dedupClusterSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memlayer_dedup_cluster_size",
				Help:    "Size of near-duplicate memory clusters merged by the deduplicator",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"workspace_id"},
		),
		retrievalFallback: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memlayer_retrieval_fallback_total",
				Help: "Number of times each retrieval fallback-cascade stage fired",
			},
			[]string{"stage"},
		),
		rateLimitThrottle: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memlayer_rate_limit_throttle_total",
				Help: "Number of completion requests parked by the provider rate-limit queue",
			},
			[]string{"provider"},
		),
	}
}

func (p *PrometheusRecorder) ObserveExtractionDuration(memType string, d time.Duration) {
	p.extractionDuration.WithLabelValues(memType).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveDedupCluster(workspaceID string, clusterSize int) {
	p.dedupClusterSize.WithLabelValues(workspaceID).Observe(float64(clusterSize))
}

func (p *PrometheusRecorder) IncRetrievalFallback(stage string) {
	p.retrievalFallback.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncRateLimitThrottle(provider string) {
	p.rateLimitThrottle.WithLabelValues(provider).Inc()
}
