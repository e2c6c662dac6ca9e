package echomw

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	perimeter "github.com/perimeterhq/perimeter"
)

const decisionKey = "perimeter.decision"

// HeaderCorrelationID carries the correlation id on requests and responses.
const HeaderCorrelationID = "X-Correlation-ID"

// DecisionFrom returns the gatekeeper decision stored by [Gatekeeper].
func DecisionFrom(c echo.Context) (perimeter.Decision, bool) {
	d, ok := c.Get(decisionKey).(perimeter.Decision)
	return d, ok
}

// RequestID ensures every request carries a correlation id: inbound header
// value when present, otherwise a fresh UUID. The id is placed in the
// request context for the gatekeeper and echoed on the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(HeaderCorrelationID)
			if id == "" {
				id = uuid.NewString()
			}

			ctx := perimeter.WithCorrelationID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(HeaderCorrelationID, id)

			return next(c)
		}
	}
}

// Options tunes token extraction.
type Options struct {
	// CookieName is the session token cookie. Default "session".
	CookieName string
}

// Gatekeeper evaluates every request through the gatekeeper. Denials return
// 429 with a retry-after hint; allowed requests proceed with the decision
// available via [DecisionFrom]. Routes that require authentication should
// additionally use [RequireSession].
func Gatekeeper(gk *perimeter.Gatekeeper, opts Options) echo.MiddlewareFunc {
	if opts.CookieName == "" {
		opts.CookieName = "session"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			decision := gk.Authorize(req.Context(), perimeter.AccessRequest{
				RemoteAddr:    req.RemoteAddr,
				ForwardedFor:  req.Header.Get(echo.HeaderXForwardedFor),
				RealIP:        req.Header.Get(echo.HeaderXRealIP),
				Route:         req.URL.Path,
				Token:         sessionToken(c, opts.CookieName),
				UserAgent:     req.UserAgent(),
				CorrelationID: perimeter.CorrelationIDFromContext(req.Context()),
			})

			header := c.Response().Header()
			header.Set(HeaderCorrelationID, decision.CorrelationID)
			if rl := decision.RateLimit; rl.Limit > 0 {
				header.Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
				header.Set("X-RateLimit-Remaining", strconv.Itoa(max(rl.Remaining, 0)))
				header.Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
			}

			if !decision.Allowed() {
				retryAfter := int(decision.RateLimit.RetryAfter / time.Second)
				if retryAfter < 1 {
					retryAfter = 1
				}
				header.Set("Retry-After", strconv.Itoa(retryAfter))

				reason := "rate_limit_exceeded"
				if decision.Blocked() {
					reason = "client_blocked"
				}
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":          reason,
					"retry_after":    retryAfter,
					"correlation_id": decision.CorrelationID,
				})
			}

			c.Set(decisionKey, decision)
			return next(c)
		}
	}
}

// RequireSession rejects requests whose decision carries no session: 401
// when unauthenticated, 503 when the session store could not be reached.
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision, ok := DecisionFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}
			if decision.AuthUnavailable {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "authentication temporarily unavailable")
			}
			if !decision.Authenticated() {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}
			return next(c)
		}
	}
}

func sessionToken(c echo.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const bearer = "Bearer "
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, bearer) {
		return auth[len(bearer):]
	}
	return ""
}
