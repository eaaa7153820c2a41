// Package metrics is a small Prometheus-compatible metrics registry built on
// the standard library. It supports counters, gauges, and histograms with
// optional labels and serves them in the text exposition format.
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

// DefaultBuckets are the default histogram buckets, in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Counter is a monotonically increasing counter.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Gauge is a value that can go up and down.
type Gauge struct{ val atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.val.Store(n) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// Histogram tracks a distribution over fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
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

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) {
	h.Observe(time.Since(t).Seconds())
}

// Registry holds named metrics. Label pairs are baked into the name as
// name{k="v"} so each label combination is a distinct series.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	types      map[string]string // base name → counter|gauge|histogram
	help       map[string]string
	order      []string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		types:      make(map[string]string),
		help:       make(map[string]string),
	}
}

func (r *Registry) track(name, typ, help string) {
	base := baseName(name)
	if _, ok := r.types[base]; !ok {
		r.order = append(r.order, base)
	}
	r.types[base] = typ
	if help != "" {
		r.help[base] = help
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
	b := make([]float64, len(buckets))
	copy(b, buckets)
	sort.Float64s(b)
	h := &Histogram{buckets: b, counts: make([]uint64, len(b))}
	r.histograms[name] = h
	r.track(name, "histogram", help)
	return h
}

// WithLabels appends label pairs to a metric name:
// WithLabels("foo", "k", "v") => `foo{k="v"}`.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i := 0; i < len(kvs); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", kvs[i], kvs[i+1])
	}
	b.WriteByte('}')
	return b.String()
}

func baseName(name string) string {
	if i := strings.IndexByte(name, '{'); i != -1 {
		return name[:i]
	}
	return name
}

// labelSuffix returns the `,k="v"` tail of a labelled name, or "".
func labelSuffix(name string) string {
	i := strings.IndexByte(name, '{')
	if i == -1 {
		return ""
	}
	inner := name[i+1 : len(name)-1]
	if inner == "" {
		return ""
	}
	return "," + inner
}

func wrapLabels(suffix string) string {
	if suffix == "" {
		return ""
	}
	return "{" + suffix[1:] + "}"
}

// Render returns the registry in Prometheus text exposition format.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, base := range r.order {
		typ := r.types[base]
		if h, ok := r.help[base]; ok {
			fmt.Fprintf(&b, "# HELP %s %s\n", base, h)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", base, typ)

		switch typ {
		case "counter":
			for _, n := range seriesOf(r.counters, base) {
				fmt.Fprintf(&b, "%s %d\n", n, r.counters[n].Value())
			}
		case "gauge":
			for _, n := range seriesOf(r.gauges, base) {
				fmt.Fprintf(&b, "%s %d\n", n, r.gauges[n].Value())
			}
		case "histogram":
			for _, n := range seriesOf(r.histograms, base) {
				h := r.histograms[n]
				h.mu.Lock()
				labels := labelSuffix(n)
				cumulative := uint64(0)
				for i, bk := range h.buckets {
					cumulative += h.counts[i]
					fmt.Fprintf(&b, "%s_bucket{le=\"%g\"%s} %d\n", base, bk, labels, cumulative)
				}
				fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"%s} %d\n", base, labels, h.count)
				fmt.Fprintf(&b, "%s_sum%s %g\n", base, wrapLabels(labels), h.sum)
				fmt.Fprintf(&b, "%s_count%s %d\n", base, wrapLabels(labels), h.count)
				h.mu.Unlock()
			}
		}
	}
	return b.String()
}

func seriesOf[M any](m map[string]M, base string) []string {
	var out []string
	for n := range m {
		if baseName(n) == base {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Handler serves the registry at the mounted path.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(r.Render()))
	})
}

// Serve blocks serving /metrics on the given port.
func (r *Registry) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// ServeAsync starts the metrics server in a goroutine.
func (r *Registry) ServeAsync(port int) {
	go func() {
		if err := r.Serve(port); err != nil {
			fmt.Printf("metrics server error on port %d: %v\n", port, err)
		}
	}()
}
