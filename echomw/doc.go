// Package echomw adapts the gatekeeper to Echo v4 middleware chains.
package echomw
