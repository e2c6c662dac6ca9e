// Command perimeterd runs a minimal HTTP front for the gatekeeper: login,
// logout, a protected echo endpoint, and a Prometheus scrape target. It
// exists for local exploration and load testing; the identity exchange is
// stubbed because provider handshakes are outside the module's scope.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	perimeter "github.com/perimeterhq/perimeter"
	"github.com/perimeterhq/perimeter/echomw"
	promexport "github.com/perimeterhq/perimeter/metrics/export/prometheus"
)

func main() {
	cfg := loadConfig()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.GetString("redis.addr")})
	defer rdb.Close()

	sink := buildSink(cfg)

	pcfg := perimeter.DefaultConfig()
	pcfg.RedisPrefix = cfg.GetString("redis.prefix")
	pcfg.StoreTimeout = cfg.GetDuration("store.timeout")
	pcfg.Session.TTL = cfg.GetDuration("session.ttl")
	pcfg.Session.Sliding = cfg.GetBool("session.sliding")
	pcfg.Session.MaxLifetime = cfg.GetDuration("session.max_lifetime")
	pcfg.Metrics.EnableLatencyHistograms = true

	gk, err := perimeter.New().
		WithConfig(pcfg).
		WithRedis(rdb).
		WithAuditSink(sink).
		Build()
	if err != nil {
		log.Fatalf("gatekeeper build failed: %v", err)
	}
	defer gk.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Gatekeeper(gk, echomw.Options{CookieName: cfg.GetString("session.cookie")}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promexport.Handler(gk)))

	e.POST("/api/v1/auth/login", loginHandler(gk, cfg.GetString("session.cookie")))
	e.POST("/api/v1/auth/logout", logoutHandler(gk, cfg.GetString("session.cookie")))

	me := e.Group("/api/v1/me", echomw.RequireSession())
	me.GET("", func(c echo.Context) error {
		decision, _ := echomw.DecisionFrom(c)
		sess := decision.Session
		return c.JSON(http.StatusOK, map[string]any{
			"provider":  sess.Provider,
			"subject":   sess.Subject,
			"email":     sess.Email,
			"name":      sess.Name,
			"expires":   time.Unix(sess.ExpiresAt, 0).UTC(),
			"last_seen": time.Unix(sess.LastSeenAt, 0).UTC(),
		})
	})

	go func() {
		if err := e.Start(cfg.GetString("listen")); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

func loadConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("listen", ":8080")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "pm")
	v.SetDefault("store.timeout", 150*time.Millisecond)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.sliding", false)
	v.SetDefault("session.max_lifetime", time.Duration(0))
	v.SetDefault("session.cookie", "session")
	v.SetDefault("audit.sink", "stdout")
	v.SetDefault("audit.kafka.brokers", "localhost:9092")
	v.SetDefault("audit.kafka.topic", "perimeter-audit")

	v.SetConfigName("perimeterd")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/perimeterd")
	v.SetEnvPrefix("PERIMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("config read failed: %v", err)
		}
	}
	return v
}

func buildSink(cfg *viper.Viper) perimeter.AuditSink {
	switch cfg.GetString("audit.sink") {
	case "kafka":
		return perimeter.NewKafkaSink(
			strings.Split(cfg.GetString("audit.kafka.brokers"), ","),
			cfg.GetString("audit.kafka.topic"),
		)
	case "none":
		return perimeter.NoOpSink{}
	default:
		return perimeter.NewJSONWriterSink(os.Stdout)
	}
}

// loginHandler stubs the identity-provider exchange: it trusts form fields
// as the verified identity. Real deployments replace this with their OAuth2
// callback and call EstablishSession with the provider's assertion.
func loginHandler(gk *perimeter.Gatekeeper, cookieName string) echo.HandlerFunc {
	return func(c echo.Context) error {
		meta := requestMeta(c)

		subject := c.FormValue("subject")
		if subject == "" {
			gk.RecordLoginFailure(c.Request().Context(), meta, "missing subject")
			return echo.NewHTTPError(http.StatusBadRequest, "subject required")
		}

		sess, err := gk.EstablishSession(c.Request().Context(), perimeter.Identity{
			Provider: "demo",
			Subject:  subject,
			Email:    c.FormValue("email"),
			Name:     c.FormValue("name"),
		}, meta)
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "cannot create session")
		}

		c.SetCookie(&http.Cookie{
			Name:     cookieName,
			Value:    sess.Token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Unix(sess.ExpiresAt, 0),
		})
		return c.NoContent(http.StatusNoContent)
	}
}

func logoutHandler(gk *perimeter.Gatekeeper, cookieName string) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := ""
		if cookie, err := c.Cookie(cookieName); err == nil {
			token = cookie.Value
		}

		if _, err := gk.Logout(c.Request().Context(), token, requestMeta(c)); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "cannot terminate session")
		}

		c.SetCookie(&http.Cookie{
			Name:     cookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		})
		return c.NoContent(http.StatusNoContent)
	}
}

func requestMeta(c echo.Context) perimeter.RequestMeta {
	req := c.Request()
	return perimeter.RequestMeta{
		ClientIP: perimeter.ResolveClientIP(
			req.RemoteAddr,
			req.Header.Get(echo.HeaderXForwardedFor),
			req.Header.Get(echo.HeaderXRealIP),
		),
		UserAgent:     req.UserAgent(),
		CorrelationID: perimeter.CorrelationIDFromContext(req.Context()),
	}
}
