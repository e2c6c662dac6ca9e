package perimeter

import (
	internalaudit "github.com/perimeterhq/perimeter/internal/audit"
	"github.com/perimeterhq/perimeter/ratelimit"
	"github.com/perimeterhq/perimeter/session"
)

// Gatekeeper is the per-request entry point. It holds no mutable state of
// its own; everything durable lives in Redis, so instances are safe for
// concurrent use and horizontally scalable without coordination.
type Gatekeeper struct {
	config   Config
	sessions *session.Store
	limiter  *ratelimit.Limiter
	resolver *ratelimit.Resolver
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	logger   Logger
}

// Close drains the audit dispatcher. Call once on shutdown.
func (g *Gatekeeper) Close() {
	if g == nil {
		return
	}
	g.audit.Close()
}

// Sessions exposes the session authority for callers that need direct
// lifecycle access beyond the gatekeeper operations.
func (g *Gatekeeper) Sessions() *session.Store {
	return g.sessions
}

// AuditDropped returns how many audit events were shed under backpressure.
func (g *Gatekeeper) AuditDropped() uint64 {
	if g == nil {
		return 0
	}
	return g.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all metrics.
func (g *Gatekeeper) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return g.metrics.Snapshot()
}
