// Package metrics provides lock-free in-process counters and a fixed-bucket
// latency histogram for the gatekeeper hot path. Exporters read point-in-time
// snapshots; nothing here talks to the network.
package metrics
