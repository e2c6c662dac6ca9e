// Package audit implements fire-and-forget dispatching of security events.
//
// Emission is isolated from the caller's request path: the dispatcher hands
// events to a background goroutine over a buffered channel, and sink
// failures never propagate back. No ordering or deduplication guarantees
// exist across events; each emission is independent.
package audit
