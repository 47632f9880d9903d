package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goSSO "github.com/MrEthical07/goSSO"
)

type fakeSource struct {
	snapshot goSSO.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goSSO.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                   { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSSO.MetricsSnapshot{
			Counters:   map[goSSO.MetricID]uint64{},
			Histograms: map[goSSO.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSSO.MetricsSnapshot{
			Counters: map[goSSO.MetricID]uint64{
				goSSO.MetricConversionSuccess:   7,
				goSSO.MetricConversionMalformed: 1,
			},
			Histograms: map[goSSO.MetricID][]uint64{
				goSSO.MetricConversionLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"gosso_conversion_success_total 7",
		"gosso_conversion_malformed_total 1",
		"gosso_logout_total 0",
		"gosso_conversion_latency_seconds_bucket{le=\"0.00005\"} 1",
		"gosso_conversion_latency_seconds_bucket{le=\"+Inf\"} 36",
		"gosso_conversion_latency_seconds_count 36",
		"gosso_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderOmitsDisabledHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSSO.MetricsSnapshot{
			Counters:   map[goSSO.MetricID]uint64{goSSO.MetricSessionCreated: 3},
			Histograms: map[goSSO.MetricID][]uint64{},
		},
	})

	out := exp.Render()
	if strings.Contains(out, "gosso_conversion_latency_seconds") {
		t.Fatalf("expected no histogram, got:\n%s", out)
	}
	if !strings.Contains(out, "gosso_session_created_total 3") {
		t.Fatalf("expected session counter, got:\n%s", out)
	}
}

func TestExporterReadsClient(t *testing.T) {
	cfg := goSSO.DefaultConfig()
	cfg.Providers = []goSSO.ProviderConfig{{Name: "corp", Format: goSSO.FormatJSON}}
	cfg.Metrics.Enabled = true

	client, err := goSSO.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer client.Close()

	if _, err := client.Deserialize(context.Background(), "", `{"uid":"u1"}`); err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	out := NewPrometheusExporter(client).Render()
	if !strings.Contains(out, "gosso_conversion_success_total 1") {
		t.Fatalf("expected success counter from client, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSSO.MetricsSnapshot{
			Counters:   map[goSSO.MetricID]uint64{goSSO.MetricConversionSuccess: 1},
			Histograms: map[goSSO.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSSO.MetricsSnapshot{
			Counters: map[goSSO.MetricID]uint64{
				goSSO.MetricConversionSuccess:           1000,
				goSSO.MetricConversionMalformed:         40,
				goSSO.MetricConversionMissingIdentifier: 12,
				goSSO.MetricSessionCreated:              800,
				goSSO.MetricSessionLookup:               9000,
				goSSO.MetricLogout:                      20,
			},
			Histograms: map[goSSO.MetricID][]uint64{
				goSSO.MetricConversionLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
