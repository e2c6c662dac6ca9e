package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one counter or histogram.
type MetricID uint8

const (
	MetricRateLimitAllowed MetricID = iota
	MetricRateLimitDenied
	MetricClientBlocked
	MetricRateLimitFailOpen
	MetricSessionCreated
	MetricSessionValidated
	MetricSessionNotFound
	MetricSessionStoreError
	MetricSessionTerminated
	MetricSessionRevoked
	MetricLoginFailureRecorded
	MetricClientUnblocked
	MetricAnomalyFallback
	MetricAuthorizeLatency

	MetricIDCount
)

// HistogramBuckets is the fixed bucket count for latency histograms; the
// last bucket is the overflow.
const HistogramBuckets = 8

// BucketBoundsMicros are the upper bounds, in microseconds, of the first
// seven histogram buckets.
var BucketBoundsMicros = [HistogramBuckets - 1]uint64{100, 250, 500, 1000, 2500, 5000, 10000}

// Config controls which instruments are active.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds atomic counters and an authorize-latency histogram. All
// operations are safe for concurrent use and become no-ops when disabled.
type Metrics struct {
	enabled bool
	latency bool

	counters [MetricIDCount]atomic.Uint64
	buckets  [HistogramBuckets]atomic.Uint64
	observed atomic.Uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatency,
	}
}

// Inc increments a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Observe records one authorize-path latency sample.
func (m *Metrics) Observe(d time.Duration) {
	if m == nil || !m.latency {
		return
	}
	micros := uint64(d.Microseconds())
	for i, bound := range BucketBoundsMicros {
		if micros <= bound {
			m.buckets[i].Add(1)
			m.observed.Add(1)
			return
		}
	}
	m.buckets[HistogramBuckets-1].Add(1)
	m.observed.Add(1)
}

// Snapshot is a point-in-time deep copy of all instruments.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// Snapshot captures current values. Counters and buckets are read
// individually, so a snapshot taken under load is approximate, not a
// consistent cut.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Counters:   make(map[MetricID]uint64, MetricIDCount),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	if m == nil || !m.enabled {
		return snap
	}

	for id := MetricID(0); id < MetricIDCount; id++ {
		if value := m.counters[id].Load(); value > 0 {
			snap.Counters[id] = value
		}
	}

	if m.latency && m.observed.Load() > 0 {
		buckets := make([]uint64, HistogramBuckets)
		for i := range m.buckets {
			buckets[i] = m.buckets[i].Load()
		}
		snap.Histograms[MetricAuthorizeLatency] = buckets
	}

	return snap
}
