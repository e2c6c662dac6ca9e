package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recordingLogger struct {
	warnings int
	errors   int
}

func (l *recordingLogger) Warning(context.Context, string, ...any) { l.warnings++ }
func (l *recordingLogger) Error(context.Context, string, ...any)   { l.errors++ }

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, *recordingLogger) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := &recordingLogger{}
	return New(client, cfg, logger), mr, logger
}

// clock is a settable time source for the limiter.
type clock struct{ now time.Time }

func (c *clock) get() time.Time { return c.now }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestSlidingWindowAllowsThenDenies(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, Config{})
	ctx := context.Background()
	rule := Rule{Name: "auth", MaxRequests: 5, Window: time.Minute}

	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	limiter.now = clk.get

	for i := 0; i < 5; i++ {
		res := limiter.Check(ctx, "10.0.0.1", rule)
		if !res.Allowed {
			t.Fatalf("request %d denied: %+v", i+1, res)
		}
		if res.Remaining != 5-i-1 {
			t.Errorf("request %d: remaining = %d, want %d", i+1, res.Remaining, 5-i-1)
		}
		clk.advance(2 * time.Second)
	}

	// Sixth request at t=10s: the oldest entry (t=0) leaves the window at
	// t=60s, so the retry hint is 50s.
	res := limiter.Check(ctx, "10.0.0.1", rule)
	if res.Allowed {
		t.Fatal("sixth request within window was allowed")
	}
	if res.Reason != ReasonWindowExceeded {
		t.Errorf("reason = %q, want %q", res.Reason, ReasonWindowExceeded)
	}
	if res.RetryAfter != 50*time.Second {
		t.Errorf("retry after = %v, want 50s", res.RetryAfter)
	}
	if res.Violations != 1 {
		t.Errorf("violations = %d, want 1", res.Violations)
	}

	// Another client is unaffected.
	if res := limiter.Check(ctx, "10.0.0.2", rule); !res.Allowed {
		t.Errorf("independent client denied: %+v", res)
	}

	// Once the oldest entry ages out, capacity returns.
	clk.advance(51 * time.Second)
	if res := limiter.Check(ctx, "10.0.0.1", rule); !res.Allowed {
		t.Errorf("request after window slide denied: %+v", res)
	}
}

func TestRulesAreIndependentPerClient(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, Config{})
	ctx := context.Background()
	auth := Rule{Name: "auth", MaxRequests: 1, Window: time.Minute}
	api := Rule{Name: "api", MaxRequests: 100, Window: time.Minute}

	if res := limiter.Check(ctx, "10.0.0.1", auth); !res.Allowed {
		t.Fatalf("first auth request denied: %+v", res)
	}
	if res := limiter.Check(ctx, "10.0.0.1", auth); res.Allowed {
		t.Fatal("second auth request allowed")
	}
	// Exhausting auth does not touch the api window for the same client.
	if res := limiter.Check(ctx, "10.0.0.1", api); !res.Allowed {
		t.Errorf("api request denied after auth exhaustion: %+v", res)
	}
}

func TestViolationsEscalateToBlock(t *testing.T) {
	limiter, _, logger := newTestLimiter(t, Config{MaxViolations: 3})
	ctx := context.Background()
	auth := Rule{Name: "auth", MaxRequests: 1, Window: time.Minute}
	api := Rule{Name: "api", MaxRequests: 100, Window: time.Minute}

	if res := limiter.Check(ctx, "10.0.0.1", auth); !res.Allowed {
		t.Fatalf("setup request denied: %+v", res)
	}

	for i := 1; i <= 3; i++ {
		res := limiter.Check(ctx, "10.0.0.1", auth)
		if res.Allowed {
			t.Fatalf("violation %d allowed", i)
		}
		if res.Violations != i {
			t.Errorf("violation %d: counter = %d", i, res.Violations)
		}
	}
	if logger.warnings != 1 {
		t.Errorf("block warnings = %d, want 1", logger.warnings)
	}

	// The block denies every rule, not just the one that tripped it.
	res := limiter.Check(ctx, "10.0.0.1", api)
	if res.Allowed || !res.Blocked || res.Reason != ReasonBlocked {
		t.Fatalf("blocked client passed an unrelated rule: %+v", res)
	}
	if res.RetryAfter <= 0 {
		t.Errorf("blocked retry after = %v, want positive", res.RetryAfter)
	}

	blocked, err := limiter.Blocked(ctx, "10.0.0.1")
	if err != nil || !blocked {
		t.Errorf("Blocked() = %v, %v, want true", blocked, err)
	}
	if blocked, err := limiter.Blocked(ctx, "10.0.0.2"); err != nil || blocked {
		t.Errorf("unrelated client reported blocked: %v, %v", blocked, err)
	}
}

func TestBlockExpires(t *testing.T) {
	limiter, mr, _ := newTestLimiter(t, Config{MaxViolations: 2, BlockTTL: 30 * time.Minute})
	ctx := context.Background()
	rule := Rule{Name: "auth", MaxRequests: 1, Window: time.Minute}

	limiter.Check(ctx, "10.0.0.1", rule)
	limiter.Check(ctx, "10.0.0.1", rule)
	limiter.Check(ctx, "10.0.0.1", rule)

	if res := limiter.Check(ctx, "10.0.0.1", rule); !res.Blocked {
		t.Fatalf("client not blocked: %+v", res)
	}

	mr.FastForward(31 * time.Minute)

	// Block, window, and violation counter have all aged out.
	if res := limiter.Check(ctx, "10.0.0.1", rule); !res.Allowed {
		t.Errorf("request after block expiry denied: %+v", res)
	}
}

func TestUnblock(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, Config{MaxViolations: 2})
	ctx := context.Background()
	rule := Rule{Name: "auth", MaxRequests: 1, Window: time.Minute}

	limiter.Check(ctx, "10.0.0.1", rule)
	limiter.Check(ctx, "10.0.0.1", rule)
	limiter.Check(ctx, "10.0.0.1", rule)

	removed, err := limiter.Unblock(ctx, "10.0.0.1")
	if err != nil || !removed {
		t.Fatalf("Unblock() = %v, %v, want true", removed, err)
	}
	if blocked, _ := limiter.Blocked(ctx, "10.0.0.1"); blocked {
		t.Error("client still blocked after Unblock")
	}
	if removed, err := limiter.Unblock(ctx, "10.0.0.1"); err != nil || removed {
		t.Errorf("second Unblock() = %v, %v, want false", removed, err)
	}
}

func TestStoreFailureFailsOpen(t *testing.T) {
	limiter, mr, logger := newTestLimiter(t, Config{})
	ctx := context.Background()
	rule := Rule{Name: "auth", MaxRequests: 1, Window: time.Minute}

	mr.Close()

	res := limiter.Check(ctx, "10.0.0.1", rule)
	if !res.Allowed || !res.FailedOpen {
		t.Fatalf("store failure did not fail open: %+v", res)
	}
	if logger.errors == 0 {
		t.Error("fail-open not logged")
	}

	if _, err := limiter.Blocked(ctx, "10.0.0.1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Blocked: got %v, want ErrStoreUnavailable", err)
	}
	if _, err := limiter.Unblock(ctx, "10.0.0.1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Unblock: got %v, want ErrStoreUnavailable", err)
	}
}
