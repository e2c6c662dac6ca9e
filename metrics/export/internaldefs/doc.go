// Package internaldefs holds the shared metric name and help definitions
// used by the Prometheus and OTel exporters. Not intended for direct use.
package internaldefs
