// Package middleware adapts the gatekeeper to net/http handler chains.
package middleware
