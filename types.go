package perimeter

import (
	"io"

	internalaudit "github.com/perimeterhq/perimeter/internal/audit"
	internalmetrics "github.com/perimeterhq/perimeter/internal/metrics"
	"github.com/perimeterhq/perimeter/ratelimit"
	"github.com/perimeterhq/perimeter/session"
)

// Identity is a verified external identity assertion: the provider that
// vouched for the subject plus its provider-assigned id. The
// authorization-code/PKCE exchange that produced it happens outside this
// module.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// Ref returns the provider-qualified subject identifier.
func (i Identity) Ref() string {
	return i.Provider + ":" + i.Subject
}

// RequestMeta carries the request context attached to session lifecycle
// operations and their audit events.
type RequestMeta struct {
	ClientIP      string
	UserAgent     string
	CorrelationID string
}

// AccessRequest describes one inbound request to authorize. Header values
// are passed raw; the gatekeeper validates them because forwarded chains are
// attacker-controlled.
type AccessRequest struct {
	// RemoteAddr is the socket address ("host:port" or bare host).
	RemoteAddr string

	// ForwardedFor is the raw forwarded-IP header chain, comma separated.
	// The first entry is treated as the originating client.
	ForwardedFor string

	// RealIP is the raw single-IP proxy header, consulted after
	// ForwardedFor.
	RealIP string

	// Route is the target path used for rule resolution.
	Route string

	// Token is the opaque session token, empty when the caller presented
	// none. A missing or invalid token is not an error at this layer.
	Token string

	UserAgent     string
	CorrelationID string
}

// Decision is the composite result of one gatekeeper evaluation.
type Decision struct {
	CorrelationID string
	ClientIP      string
	Rule          string

	// RateLimit carries limit, remaining quota, reset time, and retry-after
	// for the HTTP layer's response headers.
	RateLimit ratelimit.Result

	// Session is nil for unauthenticated requests. Whether that matters is
	// the business layer's call.
	Session *session.Session

	// AuthUnavailable is set when the session store could not be reached:
	// the caller cannot authenticate right now, which is distinct from
	// being unauthenticated.
	AuthUnavailable bool
}

// Allowed reports whether the rate limiter admitted the request.
func (d Decision) Allowed() bool {
	return d.RateLimit.Allowed
}

// Authenticated reports whether a valid session accompanied the request.
func (d Decision) Authenticated() bool {
	return d.Session != nil
}

// Blocked reports whether a standing client block produced the denial.
func (d Decision) Blocked() bool {
	return d.RateLimit.Blocked
}

// AuditEvent is the structured audit record emitted by the gatekeeper.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes line-delimited JSON to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// KafkaSink is an [AuditSink] that publishes events to a Kafka topic.
type KafkaSink = internalaudit.KafkaSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewKafkaSink creates a [KafkaSink] publishing to the given brokers and
// topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return internalaudit.NewKafkaSink(brokers, topic)
}

// Audit event types.
const (
	EventLoginSuccess       = internalaudit.TypeLoginSuccess
	EventLoginFailure       = internalaudit.TypeLoginFailure
	EventSessionTerminated  = internalaudit.TypeSessionTerminated
	EventRateLimitViolation = internalaudit.TypeRateLimitViolation
	EventClientBlocked      = internalaudit.TypeClientBlocked
	EventClientUnblocked    = internalaudit.TypeClientUnblocked
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricRateLimitAllowed     = internalmetrics.MetricRateLimitAllowed
	MetricRateLimitDenied      = internalmetrics.MetricRateLimitDenied
	MetricClientBlocked        = internalmetrics.MetricClientBlocked
	MetricRateLimitFailOpen    = internalmetrics.MetricRateLimitFailOpen
	MetricSessionCreated       = internalmetrics.MetricSessionCreated
	MetricSessionValidated     = internalmetrics.MetricSessionValidated
	MetricSessionNotFound      = internalmetrics.MetricSessionNotFound
	MetricSessionStoreError    = internalmetrics.MetricSessionStoreError
	MetricSessionTerminated    = internalmetrics.MetricSessionTerminated
	MetricSessionRevoked       = internalmetrics.MetricSessionRevoked
	MetricLoginFailureRecorded = internalmetrics.MetricLoginFailureRecorded
	MetricClientUnblocked      = internalmetrics.MetricClientUnblocked
	MetricAnomalyFallback      = internalmetrics.MetricAnomalyFallback
	MetricAuthorizeLatency     = internalmetrics.MetricAuthorizeLatency
)

// Metrics holds atomic counters and an optional latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
