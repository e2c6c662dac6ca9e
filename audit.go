package perimeter

import (
	"context"
	"strconv"
	"time"

	internalaudit "github.com/perimeterhq/perimeter/internal/audit"
)

func (g *Gatekeeper) emitDenial(ctx context.Context, eventType string, d Decision, req AccessRequest) {
	detail := map[string]string{
		"rule":        d.Rule,
		"route":       req.Route,
		"retry_after": d.RateLimit.RetryAfter.String(),
	}
	if d.RateLimit.Violations > 0 {
		detail["violations"] = strconv.Itoa(d.RateLimit.Violations)
	}
	g.emit(ctx, internalaudit.Event{
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		CorrelationID: d.CorrelationID,
		ClientIP:      d.ClientIP,
		UserAgent:     req.UserAgent,
		Detail:        detail,
	})
}

func (g *Gatekeeper) emitLifecycle(ctx context.Context, eventType, subject string, meta RequestMeta, detail map[string]string) {
	g.emit(ctx, internalaudit.Event{
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		CorrelationID: ensureCorrelationID(ctx, meta.CorrelationID),
		Subject:       subject,
		ClientIP:      meta.ClientIP,
		UserAgent:     meta.UserAgent,
		Detail:        detail,
	})
}

func (g *Gatekeeper) emit(ctx context.Context, event internalaudit.Event) {
	if event.CorrelationID == "" {
		event.CorrelationID = ensureCorrelationID(ctx, "")
	}
	g.audit.Emit(ctx, event)
}
