// Package metrics records pipeline observability: extraction latency,
// dedup cluster sizes, retrieval fallback-cascade stage counts, and
// rate-limit throttle events. Every consumer holds a Recorder and
// defaults to Noop so instrumentation is always optional.
package metrics

import "time"

// Recorder receives pipeline observability events. Implementations must be
// safe for concurrent use.
type Recorder interface {
	// ObserveExtractionDuration records how long a single chunk's extraction
	// call took, labeled by memory type.
	ObserveExtractionDuration(memType string, d time.Duration)
	// ObserveDedupCluster records the size of a cluster the deduplicator
	// merged into one canonical memory.
	ObserveDedupCluster(workspaceID string, clusterSize int)
	// IncRetrievalFallback counts one firing of a named fallback stage in
	// the context-builder cascade.
	IncRetrievalFallback(stage string)
	// IncRateLimitThrottle counts one request parked by the provider-wide
	// rate-limit queue.
	IncRateLimitThrottle(provider string)
}

// NoopRecorder discards every observation.
type NoopRecorder struct{}

// Nop returns a Recorder that does nothing, the default for every consumer
// until a real one is wired in with SetRecorder.
func Nop() Recorder { return NoopRecorder{} }

func (NoopRecorder) ObserveExtractionDuration(string, time.Duration) {}
func (NoopRecorder) ObserveDedupCluster(string, int)                 {}
func (NoopRecorder) IncRetrievalFallback(string)                     {}
func (NoopRecorder) IncRateLimitThrottle(string)                     {}
