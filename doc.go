// Package perimeter is the composition root for opaque-token session
// authentication and distributed rate limiting.
//
// The [Gatekeeper] is invoked once per inbound request before business logic
// runs. It resolves the client identity from the forwarded-header chain,
// consults the rate limit engine, validates the presented session token, and
// returns a composite [Decision]. Denials and session lifecycle changes are
// recorded through an asynchronous audit dispatcher.
//
// All durable state (sessions, rate limit windows, violation counters,
// client blocks) lives in Redis; no component caches it in process, so any
// number of gatekeeper instances share one consistent view.
//
// Two failure postures coexist and must stay asymmetric: the rate limiter
// fails open (Redis outage admits traffic), the session authority fails
// closed (Redis outage reports "cannot authenticate right now", never
// "logged out").
//
// Construction goes through the [Builder]:
//
//	gk, err := perimeter.New().
//		WithRedis(redisClient).
//		WithAuditSink(perimeter.NewJSONWriterSink(os.Stdout)).
//		Build()
package perimeter
