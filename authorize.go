package perimeter

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	internalmetrics "github.com/perimeterhq/perimeter/internal/metrics"
	"github.com/perimeterhq/perimeter/ratelimit"
	"github.com/perimeterhq/perimeter/session"
)

// Authorize evaluates one inbound request: rate limit first, session second.
// A rate limit denial short-circuits without consulting the session
// authority and produces exactly one audit event. Any panic inside the
// orchestration is recovered into the least-privileged, most-available
// decision: unauthenticated, rate-limit allowed.
func (g *Gatekeeper) Authorize(ctx context.Context, req AccessRequest) (decision Decision) {
	start := time.Now()
	correlationID := ensureCorrelationID(ctx, req.CorrelationID)
	ctx = WithCorrelationID(ctx, correlationID)

	defer func() {
		g.metrics.Observe(time.Since(start))
		if r := recover(); r != nil {
			g.logger.Error(ctx, "gatekeeper anomaly, falling back to unauthenticated: %v", r)
			g.metrics.Inc(internalmetrics.MetricAnomalyFallback)
			decision = g.fallbackDecision(correlationID, req)
		}
	}()

	decision = Decision{
		CorrelationID: correlationID,
		ClientIP:      ResolveClientIP(req.RemoteAddr, req.ForwardedFor, req.RealIP),
	}

	rule, res := g.checkRateLimit(ctx, decision.ClientIP, req.Route)
	decision.Rule = rule.Name
	decision.RateLimit = res

	switch {
	case res.Blocked:
		g.metrics.Inc(internalmetrics.MetricClientBlocked)
		g.emitDenial(ctx, EventClientBlocked, decision, req)
		return decision
	case !res.Allowed:
		g.metrics.Inc(internalmetrics.MetricRateLimitDenied)
		g.emitDenial(ctx, EventRateLimitViolation, decision, req)
		return decision
	case res.FailedOpen:
		g.metrics.Inc(internalmetrics.MetricRateLimitFailOpen)
	default:
		g.metrics.Inc(internalmetrics.MetricRateLimitAllowed)
	}

	if req.Token != "" {
		sess, err := g.sessions.Validate(ctx, req.Token)
		switch {
		case err == nil:
			decision.Session = sess
			g.metrics.Inc(internalmetrics.MetricSessionValidated)
		case errors.Is(err, session.ErrNotFound):
			// Unauthenticated, not an error: the business layer decides
			// whether this route needed a session.
			g.metrics.Inc(internalmetrics.MetricSessionNotFound)
		default:
			decision.AuthUnavailable = true
			g.metrics.Inc(internalmetrics.MetricSessionStoreError)
			g.logger.Error(ctx, "session validation unavailable: %v", err)
		}
	}

	return decision
}

func (g *Gatekeeper) checkRateLimit(ctx context.Context, clientIP, route string) (ratelimit.Rule, ratelimit.Result) {
	if g.limiter == nil || g.resolver == nil {
		rule := ratelimit.Rule{Name: "disabled"}
		return rule, ratelimit.Result{Allowed: true, Rule: rule.Name}
	}
	rule := g.resolver.Resolve(route)
	return rule, g.limiter.Check(ctx, clientIP, rule)
}

func (g *Gatekeeper) fallbackDecision(correlationID string, req AccessRequest) Decision {
	return Decision{
		CorrelationID: correlationID,
		ClientIP:      ResolveClientIP(req.RemoteAddr, req.ForwardedFor, req.RealIP),
		RateLimit:     ratelimit.Result{Allowed: true, FailedOpen: true},
	}
}

// ResolveClientIP picks the client identity for rate limiting: first entry
// of the forwarded chain, then the single-IP proxy header, then the socket
// address. Header values are attacker-controlled, so anything that does not
// parse as an IP is discarded rather than trusted.
func ResolveClientIP(remoteAddr, forwardedFor, realIP string) string {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.SplitN(forwardedFor, ",", 2)[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	if realIP != "" {
		if ip := net.ParseIP(strings.TrimSpace(realIP)); ip != nil {
			return ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
