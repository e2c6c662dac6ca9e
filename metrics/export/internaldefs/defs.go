package internaldefs

import (
	perimeter "github.com/perimeterhq/perimeter"
	internalmetrics "github.com/perimeterhq/perimeter/internal/metrics"
)

// CounterDef binds a metric id to its exported name and help text.
type CounterDef struct {
	ID   perimeter.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{perimeter.MetricRateLimitAllowed, "perimeter_rate_limit_allowed_total", "Requests admitted by the rate limiter."},
	{perimeter.MetricRateLimitDenied, "perimeter_rate_limit_denied_total", "Requests denied by a rule's sliding window."},
	{perimeter.MetricClientBlocked, "perimeter_client_blocked_total", "Requests denied by a standing client block."},
	{perimeter.MetricRateLimitFailOpen, "perimeter_rate_limit_fail_open_total", "Rate limit checks that failed open on store errors."},
	{perimeter.MetricSessionCreated, "perimeter_session_created_total", "Sessions established from verified identities."},
	{perimeter.MetricSessionValidated, "perimeter_session_validated_total", "Successful session validations."},
	{perimeter.MetricSessionNotFound, "perimeter_session_not_found_total", "Validations of absent, expired, or terminated tokens."},
	{perimeter.MetricSessionStoreError, "perimeter_session_store_error_total", "Session operations that hit an unavailable store."},
	{perimeter.MetricSessionTerminated, "perimeter_session_terminated_total", "Sessions terminated by logout."},
	{perimeter.MetricSessionRevoked, "perimeter_session_revoked_total", "Administrative revocations of a subject's sessions."},
	{perimeter.MetricLoginFailureRecorded, "perimeter_login_failure_total", "Recorded failures of the external identity exchange."},
	{perimeter.MetricClientUnblocked, "perimeter_client_unblocked_total", "Standing blocks lifted ahead of their TTL."},
	{perimeter.MetricAnomalyFallback, "perimeter_anomaly_fallback_total", "Gatekeeper anomalies recovered into the safe fallback."},
}

// HistogramDef describes the authorize-latency histogram.
type HistogramDef struct {
	ID           perimeter.MetricID
	Name         string
	Help         string
	BoundsMicros []uint64
}

// AuthorizeLatency is the single exported histogram.
var AuthorizeLatency = HistogramDef{
	ID:           perimeter.MetricAuthorizeLatency,
	Name:         "perimeter_authorize_latency_microseconds",
	Help:         "Gatekeeper authorize path latency.",
	BoundsMicros: internalmetrics.BucketBoundsMicros[:],
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(buckets []uint64) []uint64 {
	out := make([]uint64, len(buckets))
	var total uint64
	for i, count := range buckets {
		total += count
		out[i] = total
	}
	return out
}
