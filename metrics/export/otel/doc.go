// Package otel bridges gatekeeper metrics into an OpenTelemetry meter via
// observable instruments polled at collection time.
package otel
