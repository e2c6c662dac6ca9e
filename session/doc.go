// Package session implements the opaque-token session authority backed by Redis.
//
// # Tokens
//
// Session tokens are 32 bytes of crypto/rand output, base64url-encoded without
// padding. The token itself is the Redis key suffix; it carries no embedded
// claims and is never parsed.
//
// # Binary encoding
//
// Session records are stored as a compact binary blob (schema versions v1–v2)
// with forward migration on read. The encoder is append-only: new versions add
// fields but never reinterpret old ones.
//
// # Failure posture
//
// This package is fail-closed. A Redis error or deadline is surfaced as
// [ErrStoreUnavailable], which callers must keep distinct from
// [ErrNotFound]: an unreachable store means "cannot authenticate right now",
// never "logged out".
//
// # What this package must NOT do
//
//   - Import the root package, ratelimit, or middleware (no upward imports).
//   - Perform rate limiting or emit audit events.
//   - Retry store operations; retries belong to the Redis client layer.
package session
