// Package prometheus exports gatekeeper metrics through a
// prometheus/client_golang collector reading point-in-time snapshots.
package prometheus
