package ratelimit

import (
	"errors"
	"time"
)

var (
	errRuleUnnamed        = errors.New("rate limit rule without a name")
	errRuleInvalid        = errors.New("rate limit rule with non-positive bounds")
	errDefaultRuleUnknown = errors.New("default rate limit rule not defined")
	errMatchRuleUnknown   = errors.New("route match references unknown rule")
)

// Reason classifies why a check was denied.
type Reason string

const (
	// ReasonWindowExceeded marks a denial from a single rule's window.
	ReasonWindowExceeded Reason = "window_exceeded"
	// ReasonBlocked marks a denial from a standing client block.
	ReasonBlocked Reason = "blocked"
)

// Result is the outcome of one rate limit check. Expected denials are data,
// not errors: Check never returns an error to its caller.
type Result struct {
	Allowed bool

	// Blocked is set when a standing block record denied the request
	// without consulting the per-rule window.
	Blocked bool

	Rule      string
	Limit     int
	Remaining int

	// ResetAt is when the current window fully recycles.
	ResetAt time.Time

	// RetryAfter is the hint handed to denied callers: time until the
	// oldest recorded request leaves the window, or until the block lifts.
	RetryAfter time.Duration

	// Violations is the counter value after this check, populated on denial.
	Violations int

	// FailedOpen is set when a store failure forced the allow.
	FailedOpen bool

	Reason Reason
}
