package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	reg := New()
	c := reg.Counter("requests_total", "Total requests")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("expected 5, got %d", c.Value())
	}

	g := reg.Gauge("sessions_active", "Active sessions")
	g.Set(3)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 2 {
		t.Errorf("expected 2, got %d", g.Value())
	}

	// Re-registering returns the same metric.
	if reg.Counter("requests_total", "") != c {
		t.Error("counter registration should be idempotent")
	}
}

func TestHistogramBuckets(t *testing.T) {
	reg := New()
	h := reg.Histogram("latency_seconds", "Request latency", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50) // above the last bucket, counted only in +Inf

	out := reg.Render()
	for _, want := range []string{
		`latency_seconds_bucket{le="0.1"} 1`,
		`latency_seconds_bucket{le="1"} 2`,
		`latency_seconds_bucket{le="10"} 3`,
		`latency_seconds_bucket{le="+Inf"} 4`,
		`latency_seconds_count 4`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderFormat(t *testing.T) {
	reg := New()
	reg.Counter("b_second", "Second metric").Inc()
	reg.Counter("a_first", "First metric").Inc()

	out := reg.Render()
	if !strings.Contains(out, "# HELP b_second Second metric\n# TYPE b_second counter\nb_second 1\n") {
		t.Errorf("unexpected exposition format:\n%s", out)
	}
	// Registration order, not lexical order.
	if strings.Index(out, "b_second") > strings.Index(out, "a_first") {
		t.Error("metrics should render in registration order")
	}
}

func TestHandler(t *testing.T) {
	reg := New()
	reg.Counter("hits_total", "").Add(7)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "hits_total 7") {
		t.Errorf("unexpected body:\n%s", rec.Body.String())
	}
}
