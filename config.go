package perimeter

import (
	"errors"
	"time"

	"github.com/perimeterhq/perimeter/ratelimit"
)

// Config is the full gatekeeper configuration. Zero values are filled with
// the defaults from [DefaultConfig]; validation happens once, at Build.
type Config struct {
	// RedisPrefix namespaces every key the module writes.
	RedisPrefix string

	// StoreTimeout is the hard deadline for each Redis round trip. A slow
	// store degrades one request's latency instead of queuing unboundedly.
	StoreTimeout time.Duration

	Session   SessionConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// SessionConfig controls session lifetimes.
type SessionConfig struct {
	// TTL is the session lifetime; with Sliding it becomes the idle
	// timeout, refreshed on each successful validation.
	TTL time.Duration

	// Sliding enables sliding expiration.
	Sliding bool

	// MaxLifetime caps the absolute session age under sliding expiration.
	// Zero means TTL is also the absolute cap.
	MaxLifetime time.Duration
}

// RateLimitConfig controls the rate limit engine. ViolationTTL and BlockTTL
// are deliberately independent: a violation counter that outlives one block
// re-arms the next block faster, and operators may want exactly that.
type RateLimitConfig struct {
	Enabled bool

	Rules        []ratelimit.Rule
	RouteMatches []ratelimit.RouteMatch
	DefaultRule  string

	MaxViolations int
	ViolationTTL  time.Duration
	BlockTTL      time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int

	// DropIfFull sheds events under backpressure instead of blocking the
	// request path. The dropped count is observable via AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: 24h sessions, the standard
// rule set (auth 5/min, password 3/5min, payment 10/min, api 100/min),
// 5 violations within 15 minutes escalating to a 30 minute block.
func DefaultConfig() Config {
	return Config{
		RedisPrefix:  "pm",
		StoreTimeout: 150 * time.Millisecond,
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Rules:         ratelimit.DefaultRules(),
			RouteMatches:  ratelimit.DefaultRouteMatches(),
			DefaultRule:   "api",
			MaxViolations: 5,
			ViolationTTL:  15 * time.Minute,
			BlockTTL:      30 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

var (
	errSessionTTLInvalid   = errors.New("session ttl must be positive")
	errMaxLifetimeTooShort = errors.New("session max lifetime shorter than ttl")
	errStoreTimeoutInvalid = errors.New("store timeout must not be negative")
)

func validateConfig(cfg Config) error {
	if cfg.StoreTimeout < 0 {
		return errStoreTimeoutInvalid
	}
	if cfg.Session.TTL <= 0 {
		return errSessionTTLInvalid
	}
	if cfg.Session.Sliding && cfg.Session.MaxLifetime > 0 && cfg.Session.MaxLifetime < cfg.Session.TTL {
		return errMaxLifetimeTooShort
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.RateLimit.Rules = append([]ratelimit.Rule(nil), cfg.RateLimit.Rules...)
	out.RateLimit.RouteMatches = append([]ratelimit.RouteMatch(nil), cfg.RateLimit.RouteMatches...)
	return out
}
