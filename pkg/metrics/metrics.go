// Package metrics provides a lightweight Prometheus-compatible metrics
// registry using only the standard library: counters, gauges, and
// histograms, rendered in the text exposition format for an HTTP
// /metrics endpoint.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are the default histogram buckets (in seconds).
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Counter is a monotonically increasing counter.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Gauge can go up and down.
type Gauge struct{ val atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.val.Store(n) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// Histogram tracks the distribution of observed values in fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *Histogram {
	b := make([]float64, len(buckets))
	copy(b, buckets)
	sort.Float64s(b)
	return &Histogram{buckets: b, counts: make([]uint64, len(b))}
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			break
		}
	}
	h.mu.Unlock()
}

// Since observes the duration since t, in seconds.
func (h *Histogram) Since(t time.Time) {
	h.Observe(time.Since(t).Seconds())
}

func (h *Histogram) snapshot() ([]float64, []uint64, float64, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := make([]uint64, len(h.counts))
	copy(c, h.counts)
	return h.buckets, c, h.sum, h.count
}

// Registry holds named metrics, rendered in registration order.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	help       map[string]string
	types      map[string]string
	order      []string
}

// New creates a new Registry.
func New() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		help:       make(map[string]string),
		types:      make(map[string]string),
	}
}

func (r *Registry) track(name, typ, help string) {
	if _, ok := r.types[name]; !ok {
		r.order = append(r.order, name)
	}
	r.types[name] = typ
	if help != "" {
		r.help[name] = help
	}
}

// Counter returns (or creates) the named counter.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{}
	r.counters[name] = c
	r.track(name, "counter", help)
	return c
}

// Gauge returns (or creates) the named gauge.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{}
	r.gauges[name] = g
	r.track(name, "gauge", help)
	return g
}

// Histogram returns (or creates) the named histogram.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	h := newHistogram(buckets)
	r.histograms[name] = h
	r.track(name, "histogram", help)
	return h
}

// Render returns the Prometheus text exposition format output.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, name := range r.order {
		typ := r.types[name]
		if h, ok := r.help[name]; ok {
			fmt.Fprintf(&b, "# HELP %s %s\n", name, h)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, typ)

		switch typ {
		case "counter":
			fmt.Fprintf(&b, "%s %d\n", name, r.counters[name].Value())
		case "gauge":
			fmt.Fprintf(&b, "%s %d\n", name, r.gauges[name].Value())
		case "histogram":
			buckets, counts, sum, count := r.histograms[name].snapshot()
			cumulative := uint64(0)
			for i, bk := range buckets {
				cumulative += counts[i]
				fmt.Fprintf(&b, "%s_bucket{le=\"%g\"} %d\n", name, bk, cumulative)
			}
			fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", name, count)
			fmt.Fprintf(&b, "%s_sum %g\n", name, sum)
			fmt.Fprintf(&b, "%s_count %d\n", name, count)
		}
	}
	return b.String()
}

// Handler returns an http.Handler that serves the rendered metrics.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(r.Render()))
	})
}
