package prometheus

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	perimeter "github.com/perimeterhq/perimeter"
	"github.com/perimeterhq/perimeter/metrics/export/internaldefs"
)

// MetricsSource is satisfied by [perimeter.Gatekeeper].
type MetricsSource interface {
	MetricsSnapshot() perimeter.MetricsSnapshot
	AuditDropped() uint64
}

// Collector exposes gatekeeper metrics as a prometheus.Collector. Values
// are read from snapshots at scrape time; nothing is accumulated here.
type Collector struct {
	source       MetricsSource
	counterDescs map[perimeter.MetricID]*prometheus.Desc
	bucketDesc   *prometheus.Desc
	countDesc    *prometheus.Desc
	droppedDesc  *prometheus.Desc
}

// NewCollector creates a [Collector] reading from the given source.
func NewCollector(source MetricsSource) *Collector {
	descs := make(map[perimeter.MetricID]*prometheus.Desc, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		descs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return &Collector{
		source:       source,
		counterDescs: descs,
		bucketDesc: prometheus.NewDesc(
			internaldefs.AuthorizeLatency.Name+"_bucket",
			internaldefs.AuthorizeLatency.Help,
			[]string{"le"}, nil,
		),
		countDesc: prometheus.NewDesc(
			internaldefs.AuthorizeLatency.Name+"_count",
			internaldefs.AuthorizeLatency.Help,
			nil, nil,
		),
		droppedDesc: prometheus.NewDesc(
			"perimeter_audit_dropped_total",
			"Audit events dropped under dispatcher backpressure.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.counterDescs {
		ch <- desc
	}
	ch <- c.bucketDesc
	ch <- c.countDesc
	ch <- c.droppedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.MetricsSnapshot()

	for _, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(
			c.counterDescs[def.ID],
			prometheus.CounterValue,
			float64(snapshot.Counters[def.ID]),
		)
	}

	if buckets, ok := snapshot.Histograms[internaldefs.AuthorizeLatency.ID]; ok {
		cumulative := internaldefs.CumulativeBuckets(buckets)
		bounds := internaldefs.AuthorizeLatency.BoundsMicros
		for i, bound := range bounds {
			ch <- prometheus.MustNewConstMetric(
				c.bucketDesc,
				prometheus.CounterValue,
				float64(cumulative[i]),
				strconv.FormatUint(bound, 10),
			)
		}
		total := cumulative[len(cumulative)-1]
		ch <- prometheus.MustNewConstMetric(c.bucketDesc, prometheus.CounterValue, float64(total), "+Inf")
		ch <- prometheus.MustNewConstMetric(c.countDesc, prometheus.CounterValue, float64(total))
	}

	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(c.source.AuditDropped()))
}

// Handler returns an http.Handler serving the source's metrics from a
// dedicated registry.
func Handler(source MetricsSource) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(source))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
