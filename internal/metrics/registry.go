// Package metrics implements Routex's name/label-driven metrics registry
// (C2), exposed as Prometheus text exposition on a private registry —
// grounded on the teacher's internal/metrics/prometheus.go, restructured from
// hardcoded instrument fields into a generic counter/gauge/histogram/summary
// API keyed by arbitrary name+label tuples (spec §4.2).
package metrics

import (
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry is a private Prometheus registry addressed by arbitrary metric
// names and label sets, rather than the teacher's fixed instrument fields.
type Registry struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	summaries  map[string]*prometheus.SummaryVec

	start   time.Time
	handler fasthttp.RequestHandler
}

// New creates a Registry with the Go/process collectors and default
// instrument set registered, exactly as the teacher's Registry does.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		summaries:  make(map[string]*prometheus.SummaryVec),
		start:      time.Now(),
	}
	r.handler = fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)
	r.registerDefaults()
	return r
}

// labelNames returns the sorted keys of labels — label-set identity is
// canonicalized this way everywhere in this package (spec §4.2).
func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, labels map[string]string) []string {
	vals := make([]string, len(names))
	for i, n := range names {
		vals[i] = labels[n]
	}
	return vals
}

// counterVec returns the counter vector registered under name, registering
// it on first use. Vectors are keyed by name alone — registering a name twice
// with differing label keys is a caller bug, so the first registration wins
// and is reused.
func (r *Registry) counterVec(name, help string, labels map[string]string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.counters[name]; ok {
		return v
	}
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labelNames(labels))
	r.reg.MustRegister(v)
	r.counters[name] = v
	return v
}

func (r *Registry) gaugeVec(name, help string, labels map[string]string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.gauges[name]; ok {
		return v
	}
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames(labels))
	r.reg.MustRegister(v)
	r.gauges[name] = v
	return v
}

func (r *Registry) histogramVec(name, help string, buckets []float64, labels map[string]string) *prometheus.HistogramVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.histograms[name]; ok {
		return v
	}
	// An empty Buckets slice is replaced by client_golang's DefBuckets, and the
	// +Inf bucket is always implicit — library behavior, not special-cased
	// here (DESIGN.md Open Question a).
	v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labelNames(labels))
	r.reg.MustRegister(v)
	r.histograms[name] = v
	return v
}

func (r *Registry) summaryVec(name, help string, objectives map[float64]float64, labels map[string]string) *prometheus.SummaryVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.summaries[name]; ok {
		return v
	}
	v := prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: name, Help: help, Objectives: objectives}, labelNames(labels))
	r.reg.MustRegister(v)
	r.summaries[name] = v
	return v
}

// IncCounter increments (or registers then increments) a named counter.
func (r *Registry) IncCounter(name, help string, delta float64, labels map[string]string) {
	v := r.counterVec(name, help, labels)
	names := labelNames(labels)
	v.WithLabelValues(labelValues(names, labels)...).Add(delta)
}

// SetGauge sets a named gauge to value.
func (r *Registry) SetGauge(name, help string, value float64, labels map[string]string) {
	v := r.gaugeVec(name, help, labels)
	names := labelNames(labels)
	v.WithLabelValues(labelValues(names, labels)...).Set(value)
}

// IncGauge / DecGauge adjust a named gauge by 1.
func (r *Registry) IncGauge(name, help string, labels map[string]string) {
	v := r.gaugeVec(name, help, labels)
	names := labelNames(labels)
	v.WithLabelValues(labelValues(names, labels)...).Inc()
}

func (r *Registry) DecGauge(name, help string, labels map[string]string) {
	v := r.gaugeVec(name, help, labels)
	names := labelNames(labels)
	v.WithLabelValues(labelValues(names, labels)...).Dec()
}

// ObserveHistogram records value into a named histogram with the given
// bucket bounds (honored only on first registration of name).
func (r *Registry) ObserveHistogram(name, help string, buckets []float64, value float64, labels map[string]string) {
	v := r.histogramVec(name, help, buckets, labels)
	names := labelNames(labels)
	v.WithLabelValues(labelValues(names, labels)...).Observe(value)
}

// ObserveSummary records value into a named summary with the given quantile
// objectives (honored only on first registration of name).
func (r *Registry) ObserveSummary(name, help string, objectives map[float64]float64, value float64, labels map[string]string) {
	v := r.summaryVec(name, help, objectives, labels)
	names := labelNames(labels)
	v.WithLabelValues(labelValues(names, labels)...).Observe(value)
}

// Handler serves the Prometheus 0.0.4 text exposition format.
func (r *Registry) Handler() fasthttp.RequestHandler { return r.handler }

// PromRegistry exposes the underlying private registry, e.g. for tests.
func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }

// defaultObjectives mirrors common p50/p90/p99 summary quantiles, used by
// the default request-latency summary.
var defaultObjectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

func (r *Registry) registerDefaults() {
	r.counterVec("routex_requests_total", "Total proxy requests", map[string]string{"channel": "", "status": ""})
	r.counterVec("routex_tokens_total", "Total tokens by direction", map[string]string{"channel": "", "direction": ""})
	r.histogramVec("routex_request_duration_seconds", "End-to-end proxy request duration", defaultDurationBuckets, map[string]string{"channel": ""})
	r.gaugeVec("routex_channel_status", "Channel status as a gauge (1=enabled)", map[string]string{"channel": ""})
	r.counterVec("routex_circuit_breaker_open_total", "Circuit breaker open transitions", map[string]string{"channel": ""})
	r.gaugeVec("routex_circuit_breaker_open", "Current circuit breaker open state (1=open)", map[string]string{"channel": ""})
	r.counterVec("routex_store_cache_hits_total", "Row cache hits", map[string]string{"kind": ""})
	r.counterVec("routex_store_cache_misses_total", "Row cache misses", map[string]string{"kind": ""})
	r.counterVec("routex_retry_exhausted_total", "Requests exhausting all retries", map[string]string{"channel": ""})
	r.counterVec("routex_tee_failed_total", "Failed tee deliveries", map[string]string{"destination": ""})
}

// ObserveRuntimeMemory refreshes per-memory-region byte gauges on export, as
// the default instrument set requires (spec §4.2).
func (r *Registry) ObserveRuntimeMemory() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.SetGauge("routex_process_heap_alloc_bytes", "Heap bytes allocated and in use", float64(m.HeapAlloc), nil)
	r.SetGauge("routex_process_heap_sys_bytes", "Heap bytes obtained from the OS", float64(m.HeapSys), nil)
	r.SetGauge("routex_process_stack_sys_bytes", "Stack bytes obtained from the OS", float64(m.StackSys), nil)
	r.SetGauge("routex_uptime_seconds", "Seconds since the process started", time.Since(r.start).Seconds(), nil)
}

// Sample is one label-set/value pair within a metric family, for the JSON
// view served at GET /api/metrics (as opposed to the Prometheus text
// exposition format served at GET /metrics).
type Sample struct {
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Family is one named metric and its samples.
type Family struct {
	Name    string   `json:"name"`
	Help    string   `json:"help"`
	Type    string   `json:"type"`
	Samples []Sample `json:"samples"`
}

// Snapshot gathers every registered metric into a JSON-friendly shape, for
// the internal admin view (GET /api/metrics, /api/metrics/all) that sits
// alongside the Prometheus text endpoint.
func (r *Registry) Snapshot() ([]Family, error) {
	mfs, err := r.reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make([]Family, 0, len(mfs))
	for _, mf := range mfs {
		f := Family{Name: mf.GetName(), Help: mf.GetHelp(), Type: mf.GetType().String()}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			var v float64
			switch {
			case m.Counter != nil:
				v = m.Counter.GetValue()
			case m.Gauge != nil:
				v = m.Gauge.GetValue()
			case m.Histogram != nil:
				v = m.Histogram.GetSampleSum()
			case m.Summary != nil:
				v = m.Summary.GetSampleSum()
			}
			f.Samples = append(f.Samples, Sample{Labels: labels, Value: v})
		}
		out = append(out, f)
	}
	return out, nil
}

// Reset clears every recorded value (all label combinations) while keeping
// instrument registration intact, for POST /api/metrics/reset.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.counters {
		v.Reset()
	}
	for _, v := range r.gauges {
		v.Reset()
	}
	for _, v := range r.histograms {
		v.Reset()
	}
	for _, v := range r.summaries {
		v.Reset()
	}
}

// EscapeLabelValue escapes backslash, double-quote and newline per the
// Prometheus text exposition format (spec §4.2) — client_golang already
// performs this on export; exported here only for components that hand-build
// label values before handing them to this registry (e.g. trimming request
// paths), so the escaping rule lives in one documented place.
func EscapeLabelValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return v
}
