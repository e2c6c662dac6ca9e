package perimeter

import (
	"context"
	"strconv"

	internalmetrics "github.com/perimeterhq/perimeter/internal/metrics"
	"github.com/perimeterhq/perimeter/session"
)

// EstablishSession creates a session for a verified external identity and
// emits a login_success event. The identity verification itself (the
// authorization-code/PKCE exchange) happened before this call.
func (g *Gatekeeper) EstablishSession(ctx context.Context, identity Identity, meta RequestMeta) (*session.Session, error) {
	sess, err := g.sessions.Create(ctx, session.NewSessionInput{
		Provider:  identity.Provider,
		Subject:   identity.Subject,
		Email:     identity.Email,
		Name:      identity.Name,
		IP:        meta.ClientIP,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		g.metrics.Inc(internalmetrics.MetricSessionStoreError)
		return nil, err
	}

	g.metrics.Inc(internalmetrics.MetricSessionCreated)
	g.emitLifecycle(ctx, EventLoginSuccess, identity.Ref(), meta, map[string]string{
		"provider": identity.Provider,
	})
	return sess, nil
}

// RecordLoginFailure emits a login_failure event for a failed external
// identity exchange. Only the gatekeeper's caller knows that outcome, so it
// reports it here; the subject is empty when the exchange never produced one.
func (g *Gatekeeper) RecordLoginFailure(ctx context.Context, meta RequestMeta, reason string) {
	g.metrics.Inc(internalmetrics.MetricLoginFailureRecorded)
	g.emitLifecycle(ctx, EventLoginFailure, "", meta, map[string]string{
		"reason": reason,
	})
}

// Logout terminates the session immediately and emits a session_terminated
// event when one actually existed. Idempotent: a second logout of the same
// token reports false without erroring.
func (g *Gatekeeper) Logout(ctx context.Context, token string, meta RequestMeta) (bool, error) {
	terminated, err := g.sessions.Terminate(ctx, token)
	if err != nil {
		g.metrics.Inc(internalmetrics.MetricSessionStoreError)
		return false, err
	}
	if !terminated {
		return false, nil
	}

	g.metrics.Inc(internalmetrics.MetricSessionTerminated)
	g.emitLifecycle(ctx, EventSessionTerminated, "", meta, map[string]string{
		"cause": "logout",
	})
	return true, nil
}

// RevokeSessions administratively terminates every session of the identity,
// for credential compromise or forced sign-out. Emits one
// session_terminated event carrying the count.
func (g *Gatekeeper) RevokeSessions(ctx context.Context, identity Identity, meta RequestMeta) (int, error) {
	revoked, err := g.sessions.RevokeSubject(ctx, identity.Provider, identity.Subject)
	if err != nil {
		g.metrics.Inc(internalmetrics.MetricSessionStoreError)
		return 0, err
	}
	if revoked == 0 {
		return 0, nil
	}

	g.metrics.Inc(internalmetrics.MetricSessionRevoked)
	g.emitLifecycle(ctx, EventSessionTerminated, identity.Ref(), meta, map[string]string{
		"cause":   "revocation",
		"revoked": strconv.Itoa(revoked),
	})
	return revoked, nil
}

// UnblockClient lifts a standing rate limit block ahead of its TTL and
// emits a client_unblocked event when a block existed.
func (g *Gatekeeper) UnblockClient(ctx context.Context, clientID string, meta RequestMeta) (bool, error) {
	if g.limiter == nil {
		return false, nil
	}
	removed, err := g.limiter.Unblock(ctx, clientID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	g.metrics.Inc(internalmetrics.MetricClientUnblocked)
	g.emitLifecycle(ctx, EventClientUnblocked, "", RequestMeta{
		ClientIP:      clientID,
		CorrelationID: meta.CorrelationID,
		UserAgent:     meta.UserAgent,
	}, nil)
	return true, nil
}
