package ratelimit

import (
	"strings"
	"time"
)

// Rule bounds one class of routes to MaxRequests per Window.
type Rule struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

// RouteMatch binds a path pattern to a rule name. Contains takes precedence
// over Prefix when both are set on the same entry.
type RouteMatch struct {
	Contains string
	Prefix   string
	Rule     string
}

// Resolver maps a route path to exactly one rule. Resolution is a pure
// function of the path: first matching entry wins, and paths with no match
// fall through to the default rule, so the mapping is total.
type Resolver struct {
	rules    map[string]Rule
	matches  []RouteMatch
	fallback string
}

// NewResolver builds a [Resolver] from named rules, ordered route matchers,
// and the name of the default rule. Matchers referencing unknown rules and a
// missing default are rejected at construction rather than at request time.
func NewResolver(rules []Rule, matches []RouteMatch, fallback string) (*Resolver, error) {
	byName := make(map[string]Rule, len(rules))
	for _, rule := range rules {
		if rule.Name == "" {
			return nil, errRuleUnnamed
		}
		if rule.MaxRequests <= 0 || rule.Window <= 0 {
			return nil, errRuleInvalid
		}
		byName[rule.Name] = rule
	}

	if _, ok := byName[fallback]; !ok {
		return nil, errDefaultRuleUnknown
	}
	for _, match := range matches {
		if _, ok := byName[match.Rule]; !ok {
			return nil, errMatchRuleUnknown
		}
	}

	return &Resolver{
		rules:    byName,
		matches:  append([]RouteMatch(nil), matches...),
		fallback: fallback,
	}, nil
}

// Resolve returns the rule governing the given route path.
func (r *Resolver) Resolve(path string) Rule {
	for _, match := range r.matches {
		if match.Contains != "" && strings.Contains(path, match.Contains) {
			return r.rules[match.Rule]
		}
		if match.Prefix != "" && strings.HasPrefix(path, match.Prefix) {
			return r.rules[match.Rule]
		}
	}
	return r.rules[r.fallback]
}

// Rule returns a named rule and whether it exists.
func (r *Resolver) Rule(name string) (Rule, bool) {
	rule, ok := r.rules[name]
	return rule, ok
}

// DefaultRules mirrors the production rule set: authentication routes get
// the strictest window, generic API routes the most permissive.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "auth", MaxRequests: 5, Window: time.Minute},
		{Name: "password", MaxRequests: 3, Window: 5 * time.Minute},
		{Name: "payment", MaxRequests: 10, Window: time.Minute},
		{Name: "api", MaxRequests: 100, Window: time.Minute},
	}
}

// DefaultRouteMatches pairs with [DefaultRules]. Password routes are matched
// first so that /api/v1/auth/password lands on the stricter rule.
func DefaultRouteMatches() []RouteMatch {
	return []RouteMatch{
		{Contains: "password", Rule: "password"},
		{Prefix: "/api/v1/auth/", Rule: "auth"},
		{Prefix: "/api/v1/payment/", Rule: "payment"},
	}
}
