package echomw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perimeter "github.com/perimeterhq/perimeter"
	"github.com/perimeterhq/perimeter/ratelimit"
)

func newTestServer(t *testing.T) (*echo.Echo, *perimeter.Gatekeeper, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := perimeter.DefaultConfig()
	cfg.RateLimit.Rules = []ratelimit.Rule{
		{Name: "auth", MaxRequests: 1, Window: time.Minute},
		{Name: "api", MaxRequests: 100, Window: time.Minute},
	}
	cfg.RateLimit.RouteMatches = []ratelimit.RouteMatch{
		{Prefix: "/api/v1/auth/", Rule: "auth"},
	}
	cfg.RateLimit.DefaultRule = "api"

	gk, err := perimeter.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAuditSink(perimeter.NoOpSink{}).
		WithLogger(perimeter.NopLogger{}).
		Build()
	require.NoError(t, err)
	t.Cleanup(gk.Close)

	e := echo.New()
	e.Use(RequestID())
	e.Use(Gatekeeper(gk, Options{}))
	e.GET("/api/v1/orders", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/auth/login", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/me", func(c echo.Context) error {
		decision, _ := DecisionFrom(c)
		return c.String(http.StatusOK, decision.Session.Subject)
	}, RequireSession())
	return e, gk, mr
}

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	e, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.RemoteAddr = "192.0.2.10:4242"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderCorrelationID))
}

func TestRequestIDKeepsInboundID(t *testing.T) {
	e, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.RemoteAddr = "192.0.2.10:4242"
	req.Header.Set(HeaderCorrelationID, "corr-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "corr-123", rec.Header().Get(HeaderCorrelationID))
}

func TestGatekeeperSetsRateLimitHeaders(t *testing.T) {
	e, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.RemoteAddr = "192.0.2.10:4242"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestGatekeeperDeniesOverLimit(t *testing.T) {
	e, _, _ := newTestServer(t)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "192.0.2.10:4242"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, send().Code)

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	assert.Contains(t, rec.Body.String(), "correlation_id")
}

func TestRequireSession(t *testing.T) {
	e, gk, mr := newTestServer(t)

	sess, err := gk.EstablishSession(context.Background(), perimeter.Identity{Provider: "google", Subject: "114093"}, perimeter.RequestMeta{})
	require.NoError(t, err)

	authed := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	authed.RemoteAddr = "192.0.2.10:4242"
	authed.AddCookie(&http.Cookie{Name: "session", Value: sess.Token})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "114093", rec.Body.String())

	anonymous := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	anonymous.RemoteAddr = "192.0.2.10:4242"
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, anonymous)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Store outage yields 503, never a silent 401.
	mr.Close()
	degraded := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	degraded.RemoteAddr = "192.0.2.10:4242"
	degraded.AddCookie(&http.Cookie{Name: "session", Value: sess.Token})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, degraded)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBearerTokenAccepted(t *testing.T) {
	e, gk, _ := newTestServer(t)

	sess, err := gk.EstablishSession(context.Background(), perimeter.Identity{Provider: "google", Subject: "114093"}, perimeter.RequestMeta{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.RemoteAddr = "192.0.2.10:4242"
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
