package perimeter

import (
	"github.com/redis/go-redis/v9"

	internalaudit "github.com/perimeterhq/perimeter/internal/audit"
	"github.com/perimeterhq/perimeter/ratelimit"
	"github.com/perimeterhq/perimeter/session"
)

// Builder assembles a [Gatekeeper]. Configure it during initialization and
// call Build exactly once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	auditSink AuditSink
	logger    Logger
	built     bool
}

// New returns a [Builder] seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client all durable state goes through.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for audit events. Without one, enabled
// auditing falls back to a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the diagnostics logger. Defaults to a gommon logger.
func (b *Builder) WithLogger(logger Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process metrics system.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the gatekeeper.
func (b *Builder) Build() (*Gatekeeper, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	if b.redis == nil {
		return nil, ErrRedisRequired
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = NewGommonLogger("perimeter")
	}

	var resolver *ratelimit.Resolver
	var limiter *ratelimit.Limiter
	if b.config.RateLimit.Enabled {
		var err error
		resolver, err = ratelimit.NewResolver(
			b.config.RateLimit.Rules,
			b.config.RateLimit.RouteMatches,
			b.config.RateLimit.DefaultRule,
		)
		if err != nil {
			return nil, err
		}
		limiter = ratelimit.New(b.redis, ratelimit.Config{
			Prefix:        b.config.RedisPrefix,
			MaxViolations: b.config.RateLimit.MaxViolations,
			ViolationTTL:  b.config.RateLimit.ViolationTTL,
			BlockTTL:      b.config.RateLimit.BlockTTL,
			OpTimeout:     b.config.StoreTimeout,
		}, logger)
	}

	sessions := session.NewStore(b.redis, session.Config{
		Prefix:      b.config.RedisPrefix,
		TTL:         b.config.Session.TTL,
		Sliding:     b.config.Session.Sliding,
		MaxLifetime: b.config.Session.MaxLifetime,
		OpTimeout:   b.config.StoreTimeout,
	})

	gk := &Gatekeeper{
		config:   b.config,
		sessions: sessions,
		limiter:  limiter,
		resolver: resolver,
		logger:   logger,
		metrics:  NewMetrics(b.config.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    b.config.Audit.Enabled,
			BufferSize: b.config.Audit.BufferSize,
			DropIfFull: b.config.Audit.DropIfFull,
		}, b.auditSink),
	}

	b.built = true
	return gk, nil
}
