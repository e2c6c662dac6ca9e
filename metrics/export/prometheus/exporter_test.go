package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	perimeter "github.com/perimeterhq/perimeter"
)

type fakeSource struct {
	snapshot perimeter.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() perimeter.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                       { return f.dropped }

func testSource() *fakeSource {
	return &fakeSource{
		snapshot: perimeter.MetricsSnapshot{
			Counters: map[perimeter.MetricID]uint64{
				perimeter.MetricRateLimitAllowed: 42,
				perimeter.MetricSessionCreated:   3,
			},
			Histograms: map[perimeter.MetricID][]uint64{
				perimeter.MetricAuthorizeLatency: {1, 2, 0, 0, 0, 0, 0, 3},
			},
		},
		dropped: 7,
	}
}

func gather(t *testing.T, source *fakeSource) map[string]*dto.MetricFamily {
	t.Helper()
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(source))
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}
	return byName
}

func TestCollectorExportsCounters(t *testing.T) {
	families := gather(t, testSource())

	allowed, ok := families["perimeter_rate_limit_allowed_total"]
	if !ok {
		t.Fatal("allowed counter missing")
	}
	if got := allowed.GetMetric()[0].GetCounter().GetValue(); got != 42 {
		t.Errorf("allowed = %v, want 42", got)
	}

	created := families["perimeter_session_created_total"]
	if got := created.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("created = %v, want 3", got)
	}

	// Untouched counters export as zero rather than disappearing between
	// scrapes.
	denied := families["perimeter_rate_limit_denied_total"]
	if got := denied.GetMetric()[0].GetCounter().GetValue(); got != 0 {
		t.Errorf("denied = %v, want 0", got)
	}

	dropped := families["perimeter_audit_dropped_total"]
	if got := dropped.GetMetric()[0].GetCounter().GetValue(); got != 7 {
		t.Errorf("dropped = %v, want 7", got)
	}
}

func TestCollectorExportsCumulativeHistogram(t *testing.T) {
	families := gather(t, testSource())

	buckets, ok := families["perimeter_authorize_latency_microseconds_bucket"]
	if !ok {
		t.Fatal("histogram buckets missing")
	}

	byBound := make(map[string]float64)
	for _, metric := range buckets.GetMetric() {
		byBound[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
	}
	expect := map[string]float64{
		"100":   1,
		"250":   3,
		"500":   3,
		"1000":  3,
		"2500":  3,
		"5000":  3,
		"10000": 3,
		"+Inf":  6,
	}
	for bound, want := range expect {
		if got := byBound[bound]; got != want {
			t.Errorf("bucket le=%s: %v, want %v", bound, got, want)
		}
	}

	count := families["perimeter_authorize_latency_microseconds_count"]
	if got := count.GetMetric()[0].GetCounter().GetValue(); got != 6 {
		t.Errorf("count = %v, want 6", got)
	}
}

func TestCollectorWithoutHistogramData(t *testing.T) {
	source := testSource()
	source.snapshot.Histograms = map[perimeter.MetricID][]uint64{}

	families := gather(t, source)
	if _, ok := families["perimeter_authorize_latency_microseconds_bucket"]; ok {
		t.Error("histogram exported with no samples")
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler(testSource()).ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"perimeter_rate_limit_allowed_total 42",
		"perimeter_audit_dropped_total 7",
		`perimeter_authorize_latency_microseconds_bucket{le="+Inf"} 6`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}
