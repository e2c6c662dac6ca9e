package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	perimeter "github.com/perimeterhq/perimeter"
)

type decisionContextKey struct{}

// DecisionFromContext returns the gatekeeper decision stored by [Protect].
func DecisionFromContext(ctx context.Context) (perimeter.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(perimeter.Decision)
	return d, ok
}

// Options tunes header and cookie extraction.
type Options struct {
	// CookieName is the session token cookie. Default "session".
	CookieName string

	// CorrelationHeader is read for an inbound correlation id and echoed
	// on the response. Default "X-Correlation-ID".
	CorrelationHeader string
}

func (o *Options) defaults() {
	if o.CookieName == "" {
		o.CookieName = "session"
	}
	if o.CorrelationHeader == "" {
		o.CorrelationHeader = "X-Correlation-ID"
	}
}

// Protect wraps a handler with the gatekeeper. Denied requests receive a 429
// with a retry-after hint; everything else proceeds with the decision stored
// in the request context. Authentication is not enforced here — handlers
// inspect the decision and decide whether their route needs a session.
func Protect(gk *perimeter.Gatekeeper, opts Options) func(http.Handler) http.Handler {
	opts.defaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := gk.Authorize(r.Context(), perimeter.AccessRequest{
				RemoteAddr:    r.RemoteAddr,
				ForwardedFor:  r.Header.Get("X-Forwarded-For"),
				RealIP:        r.Header.Get("X-Real-IP"),
				Route:         r.URL.Path,
				Token:         sessionToken(r, opts.CookieName),
				UserAgent:     r.UserAgent(),
				CorrelationID: r.Header.Get(opts.CorrelationHeader),
			})

			w.Header().Set(opts.CorrelationHeader, decision.CorrelationID)
			writeRateLimitHeaders(w, decision)

			if !decision.Allowed() {
				writeDenied(w, decision)
				return
			}

			ctx := context.WithValue(r.Context(), decisionContextKey{}, decision)
			ctx = perimeter.WithCorrelationID(ctx, decision.CorrelationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const bearer = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, bearer) {
		return auth[len(bearer):]
	}
	return ""
}

func writeRateLimitHeaders(w http.ResponseWriter, d perimeter.Decision) {
	rl := d.RateLimit
	if rl.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(rl.Remaining, 0)))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
}

func writeDenied(w http.ResponseWriter, d perimeter.Decision) {
	retryAfter := int(d.RateLimit.RetryAfter / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	reason := "rate_limit_exceeded"
	if d.Blocked() {
		reason = "client_blocked"
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":          reason,
		"retry_after":    retryAfter,
		"correlation_id": d.CorrelationID,
	})
}
