// Package ratelimit implements a Redis-backed sliding-window rate limiter
// with violation tracking and temporary client blocking.
//
// # Algorithm
//
// Each (client, rule) pair owns a sorted set of request timestamps in
// milliseconds. A check prunes entries older than the window, counts the
// remainder, and either records the request or denies it. Repeated denials
// accumulate on a violation counter with its own, longer TTL; crossing the
// violation threshold writes a block record that short-circuits every rule
// for that client until it expires.
//
// The prune-count-insert sequence is not atomic across concurrent checks,
// so a small overshoot is possible under extreme concurrency. That margin
// is accepted in exchange for not holding a distributed lock.
//
// # Failure posture
//
// This package is fail-open: when Redis is unreachable or the deadline
// expires, Check returns Allowed and marks the result as FailedOpen. The
// limiter errs toward availability while the session authority errs toward
// safety; the asymmetry is deliberate and must not be unified.
package ratelimit
