package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is returned by administrative operations when Redis is
// unreachable. Check itself never surfaces it; it fails open instead.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Logger receives limiter diagnostics. The root package's logger satisfies it.
type Logger interface {
	Warning(ctx context.Context, format string, args ...any)
	Error(ctx context.Context, format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warning(context.Context, string, ...any) {}
func (nopLogger) Error(context.Context, string, ...any)   {}

// Config holds limiter tuning parameters. Violation and block TTLs are
// independent knobs: the counter is not cleared when a block is written, so
// a counter outliving a block re-arms the next block faster.
type Config struct {
	// Prefix namespaces all Redis keys written by the limiter.
	Prefix string

	// MaxViolations is the denial count at which a client block is written.
	MaxViolations int

	// ViolationTTL bounds how long denials accumulate toward a block.
	ViolationTTL time.Duration

	// BlockTTL is the cool-down applied to a blocked client.
	BlockTTL time.Duration

	// OpTimeout is the hard deadline applied to every Redis round trip.
	OpTimeout time.Duration
}

// Limiter enforces sliding-window rate limits per (client, rule) pair and
// escalates repeat offenders to a temporary full block. All state lives in
// Redis; two limiter instances observe a consistent shared view.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	logger Logger
	now    func() time.Time
}

// New creates a [Limiter] backed by the given Redis client.
func New(client redis.UniversalClient, cfg Config, logger Logger) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "pm"
	}
	if cfg.MaxViolations <= 0 {
		cfg.MaxViolations = 5
	}
	if cfg.ViolationTTL <= 0 {
		cfg.ViolationTTL = 15 * time.Minute
	}
	if cfg.BlockTTL <= 0 {
		cfg.BlockTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Limiter{
		redis:  client,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Check evaluates one request from clientID against the rule. A standing
// block denies immediately for every rule. Store failures return Allowed
// with FailedOpen set; blocking all traffic because Redis is down would turn
// a degradation into an outage.
func (l *Limiter) Check(ctx context.Context, clientID string, rule Rule) Result {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	now := l.now()

	blockTTL, err := l.redis.TTL(ctx, l.blockKey(clientID)).Result()
	if err != nil {
		return l.failOpen(ctx, rule, now, err)
	}
	if blockTTL > 0 {
		return Result{
			Blocked:    true,
			Rule:       rule.Name,
			Limit:      rule.MaxRequests,
			ResetAt:    now.Add(blockTTL),
			RetryAfter: blockTTL,
			Reason:     ReasonBlocked,
		}
	}

	windowKey := l.windowKey(clientID, rule.Name)
	nowMs := now.UnixMilli()
	cutoff := nowMs - rule.Window.Milliseconds()

	if err := l.redis.ZRemRangeByScore(ctx, windowKey, "0", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return l.failOpen(ctx, rule, now, err)
	}
	count, err := l.redis.ZCard(ctx, windowKey).Result()
	if err != nil {
		return l.failOpen(ctx, rule, now, err)
	}

	if int(count) >= rule.MaxRequests {
		return l.deny(ctx, clientID, rule, windowKey, now, nowMs)
	}

	// Member must be unique so concurrent hits in the same millisecond all
	// count. The score alone would deduplicate them.
	member := strconv.FormatInt(nowMs, 10) + ":" + uuid.NewString()
	pipe := l.redis.TxPipeline()
	pipe.ZAdd(ctx, windowKey, redis.Z{Score: float64(nowMs), Member: member})
	pipe.PExpire(ctx, windowKey, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return l.failOpen(ctx, rule, now, err)
	}

	return Result{
		Allowed:   true,
		Rule:      rule.Name,
		Limit:     rule.MaxRequests,
		Remaining: rule.MaxRequests - int(count) - 1,
		ResetAt:   now.Add(rule.Window),
	}
}

func (l *Limiter) deny(ctx context.Context, clientID string, rule Rule, windowKey string, now time.Time, nowMs int64) Result {
	res := Result{
		Rule:   rule.Name,
		Limit:  rule.MaxRequests,
		Reason: ReasonWindowExceeded,
	}

	// Retry once the oldest recorded request leaves the window.
	res.RetryAfter = rule.Window
	oldest, err := l.redis.ZRangeWithScores(ctx, windowKey, 0, 0).Result()
	if err == nil && len(oldest) == 1 {
		oldestMs := int64(oldest[0].Score)
		if wait := time.Duration(oldestMs+rule.Window.Milliseconds()-nowMs) * time.Millisecond; wait > 0 {
			res.RetryAfter = wait
		}
	}
	res.ResetAt = now.Add(res.RetryAfter)

	// The violation counter increments only on denials, never on allowed
	// requests, and is best effort: a counter failure never rescinds the
	// denial the window already produced.
	violationKey := l.violationKey(clientID, rule.Name)
	violations, err := l.redis.Incr(ctx, violationKey).Result()
	if err != nil {
		l.logger.Error(ctx, "rate limit violation counter unavailable for %s: %v", clientID, err)
		return res
	}
	if violations == 1 {
		if err := l.redis.Expire(ctx, violationKey, l.config.ViolationTTL).Err(); err != nil {
			l.logger.Error(ctx, "rate limit violation ttl not set for %s: %v", clientID, err)
		}
	}
	res.Violations = int(violations)

	if violations >= int64(l.config.MaxViolations) {
		if err := l.redis.Set(ctx, l.blockKey(clientID), "blocked", l.config.BlockTTL).Err(); err != nil {
			l.logger.Error(ctx, "client block not written for %s: %v", clientID, err)
			return res
		}
		l.logger.Warning(ctx, "client %s blocked for %s after %d rate limit violations", clientID, l.config.BlockTTL, violations)
	}

	return res
}

func (l *Limiter) failOpen(ctx context.Context, rule Rule, now time.Time, err error) Result {
	l.logger.Error(ctx, "rate limit store unavailable, failing open: %v", err)
	return Result{
		Allowed:    true,
		FailedOpen: true,
		Rule:       rule.Name,
		Limit:      rule.MaxRequests,
		Remaining:  rule.MaxRequests,
		ResetAt:    now.Add(rule.Window),
	}
}

// Blocked reports whether a standing block currently denies the client.
func (l *Limiter) Blocked(ctx context.Context, clientID string) (bool, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	ttl, err := l.redis.TTL(ctx, l.blockKey(clientID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ttl > 0, nil
}

// Unblock lifts a standing block ahead of its TTL. Returns whether a block
// existed.
func (l *Limiter) Unblock(ctx context.Context, clientID string) (bool, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	removed, err := l.redis.Del(ctx, l.blockKey(clientID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return removed > 0, nil
}

func (l *Limiter) windowKey(clientID, rule string) string {
	return l.config.Prefix + ":win:" + clientID + ":" + rule
}

func (l *Limiter) violationKey(clientID, rule string) string {
	return l.config.Prefix + ":vio:" + clientID + ":" + rule
}

func (l *Limiter) blockKey(clientID string) string {
	return l.config.Prefix + ":block:" + clientID
}

func (l *Limiter) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.config.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.config.OpTimeout)
}
